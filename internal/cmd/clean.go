package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/masahif/pwcdb/internal/spam"
	"github.com/masahif/pwcdb/internal/storage"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove advertising rows from methods and datasets",
	Long: `clean scans every method and dataset row for advertising text
(support-line phone numbers, booking offers and the like) and deletes
the rows that match. Links to deleted rows are removed with them.

Use --dry-run to list the matches without deleting anything.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().Bool("dry-run", false, "List matching rows without deleting them")
}

// cleanResult counts the rows flagged and removed by one clean
type cleanResult struct {
	Methods         []int64
	Datasets        []int64
	MethodsDeleted  int64
	DatasetsDeleted int64
}

func runClean(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	store, err := openExisting(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	res, err := clean(cmd.OutOrStdout(), store, dryRun)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Dry run: %d methods and %d datasets would be deleted\n",
			len(res.Methods), len(res.Datasets))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d methods and %d datasets\n", res.MethodsDeleted, res.DatasetsDeleted)
	return nil
}

// clean flags spam rows, printing each match to w, and deletes them
// unless dryRun is set
func clean(w io.Writer, store *storage.SQLiteStorage, dryRun bool) (*cleanResult, error) {
	res := &cleanResult{}

	err := store.EachMethodText(func(m storage.MethodText) {
		if match, ok := spam.Method(m.Name, m.FullName, m.Description); ok {
			fmt.Fprintf(w, "method %d %q: %s (%s)\n", m.ID, m.Name, match.Family, match.Pattern)
			res.Methods = append(res.Methods, m.ID)
		}
	})
	if err != nil {
		return nil, err
	}

	err = store.EachDatasetText(func(d storage.DatasetText) {
		if match, ok := spam.Dataset(d.Name, d.Homepage, d.Description); ok {
			fmt.Fprintf(w, "dataset %d %q: %s (%s)\n", d.ID, d.Name, match.Family, match.Pattern)
			res.Datasets = append(res.Datasets, d.ID)
		}
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Spam scan finished", "methods", len(res.Methods), "datasets", len(res.Datasets), "dry_run", dryRun)
	if dryRun {
		return res, nil
	}

	if res.MethodsDeleted, err = store.DeleteMethods(res.Methods); err != nil {
		return nil, err
	}
	if res.DatasetsDeleted, err = store.DeleteDatasets(res.Datasets); err != nil {
		return nil, err
	}
	slog.Info("Spam rows deleted", "methods", res.MethodsDeleted, "datasets", res.DatasetsDeleted)
	return res, nil
}
