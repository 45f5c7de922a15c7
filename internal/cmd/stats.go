package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/masahif/pwcdb/internal/storage"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts and the method hierarchy of a loaded database",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

// statsReport is printed as YAML
type statsReport struct {
	Database  string                `yaml:"database"`
	Size      string                `yaml:"size"`
	LastRun   *lastRun              `yaml:"last_run,omitempty"`
	Tables    []storage.TableCount  `yaml:"tables"`
	Hierarchy []storage.AreaSummary `yaml:"hierarchy"`
}

type lastRun struct {
	RunID      string `yaml:"run_id"`
	Status     string `yaml:"status"`
	StartedAt  string `yaml:"started_at"`
	FinishedAt string `yaml:"finished_at,omitempty"`
}

// openExisting opens a database that must already exist
func openExisting(path string) (*storage.SQLiteStorage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no database found at %s: %w", path, err)
	}
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return store, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openExisting(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return writeStats(cmd.OutOrStdout(), store)
}

func writeStats(w io.Writer, store *storage.SQLiteStorage) error {
	report := statsReport{Database: store.Path()}

	size, err := store.FileSize()
	if err != nil {
		return err
	}
	report.Size = humanize.Bytes(uint64(size))

	if report.Tables, err = store.TableCounts(); err != nil {
		return err
	}
	if report.Hierarchy, err = store.HierarchySummary(); err != nil {
		return err
	}

	run, err := store.LastRun()
	if err != nil {
		return err
	}
	if run != nil {
		report.LastRun = &lastRun{
			RunID:     run.RunID,
			Status:    run.Status,
			StartedAt: run.StartedAt.Format(time.RFC3339),
		}
		if !run.FinishedAt.IsZero() {
			report.LastRun.FinishedAt = run.FinishedAt.Format(time.RFC3339)
		}
	}

	out, err := yaml.Marshal(&report)
	if err != nil {
		return fmt.Errorf("failed to marshal stats to YAML: %w", err)
	}
	_, err = w.Write(out)
	return err
}
