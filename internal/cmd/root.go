// Package cmd provides the command-line interface for pwcdb.
// It handles command parsing, configuration loading, and load execution.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masahif/pwcdb/internal/config"
	"github.com/masahif/pwcdb/internal/loader"
	"github.com/masahif/pwcdb/internal/logging"
	"github.com/masahif/pwcdb/internal/source"
)

var (
	cfgFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pwcdb",
	Short: "Load Papers with Code dumps into a SQLite database",
	Long: `pwcdb loads the Papers with Code JSON dumps (papers, methods, datasets,
evaluation tables and code links) into a single relational SQLite database.

Sources may be local files or s3:// objects, plain or gzip-compressed.
Re-running a load over an existing database is safe: rows are keyed by
their natural keys and existing ids are reused.`,
	Args:          cobra.NoArgs,
	RunE:          runLoad,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Configuration file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./pwcdb.yml)")

	// Flags shared with the subcommands
	rootCmd.PersistentFlags().StringP("database", "d", "./pwc.db", "Path to SQLite database file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format: json or text")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this file, rotated by size")

	// Configuration management flags
	rootCmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Source flags
	rootCmd.Flags().String("papers", "", "Papers with abstracts dump (path or s3:// URL)")
	rootCmd.Flags().String("methods", "", "Methods dump (path or s3:// URL)")
	rootCmd.Flags().String("datasets", "", "Datasets dump (path or s3:// URL)")
	rootCmd.Flags().String("evaluations", "", "Evaluation tables dump (path or s3:// URL)")
	rootCmd.Flags().String("code-links", "", "Links between papers and code dump (path or s3:// URL)")

	// S3 flags
	rootCmd.Flags().String("s3-region", "", "AWS region for s3:// sources")
	rootCmd.Flags().String("s3-endpoint", "", "S3-compatible endpoint URL")
	rootCmd.Flags().String("s3-profile", "", "AWS shared config profile")

	// Load flags
	rootCmd.Flags().Bool("drop-existing", false, "Delete all existing rows before loading")
	rootCmd.Flags().IntP("batch-size", "b", 2000, "Rows per insert transaction")
	rootCmd.Flags().Int("progress-every", 10000, "Log progress every N records (0=off)")
	rootCmd.Flags().Duration("progress-interval", 10*time.Second, "Log progress at least this often (0=off)")
	rootCmd.Flags().Bool("recount-method-papers", false, "Derive methods.num_papers from paper links")
	rootCmd.Flags().String("metrics-textfile", "", "Write Prometheus metrics to this file after the run")

	// Bind flags to viper
	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{"database_path", "database"},
		{"log.level", "log-level"},
		{"log.format", "log-format"},
		{"log.file", "log-file"},
		{"sources.papers", "papers"},
		{"sources.methods", "methods"},
		{"sources.datasets", "datasets"},
		{"sources.evaluations", "evaluations"},
		{"sources.code_links", "code-links"},
		{"s3.region", "s3-region"},
		{"s3.endpoint", "s3-endpoint"},
		{"s3.profile", "s3-profile"},
		{"drop_existing", "drop-existing"},
		{"batch_size", "batch-size"},
		{"progress_every", "progress-every"},
		{"progress_interval", "progress-interval"},
		{"recount_method_papers", "recount-method-papers"},
		{"metrics_textfile", "metrics-textfile"},
	}

	for _, bind := range bindFlags {
		flag := rootCmd.Flags().Lookup(bind.flagName)
		if flag == nil {
			flag = rootCmd.PersistentFlags().Lookup(bind.flagName)
		}
		if err := viper.BindPFlag(bind.viperKey, flag); err != nil {
			// Log the error but continue - non-critical for operation
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}

	rootCmd.AddCommand(statsCmd, cleanCmd)
}

// initConfig reads in config file, .env and ENV variables if set.
func initConfig() {
	// A missing .env is not an error
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("pwcdb")
	}

	viper.AutomaticEnv() // read in environment variables that match
	viper.SetEnvPrefix("PWCDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults with the config file, environment and flags
func loadConfig() (*config.LoadConfig, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// setupLogging installs the default logger for the run
func setupLogging(cfg *config.LoadConfig) (io.Closer, error) {
	closer, err := logging.SetDefault(cfg.LoggingConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return closer, nil
}

func showCurrentConfig(w io.Writer, cfg *config.LoadConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	// Validate configuration before showing it
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	// Never print secrets
	shown := *cfg
	if shown.S3.SecretAccessKey != "" {
		shown.S3.SecretAccessKey = "********"
	}

	yamlData, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current pwcdb Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./pwcdb.yml\n")
	fmt.Fprintf(w, "# Environment variables prefix: PWCDB_\n\n")

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (PWCDB_ prefix, .env is read first)\n")
	fmt.Fprintf(w, "# 3. Configuration file (pwcdb.yml)\n")
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")

	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Handle --show-config: display current configuration and exit
	if showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cfg)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opener, err := newOpener(ctx, cfg)
	if err != nil {
		return err
	}

	summary, err := loader.New(cfg, opener).Run(ctx)
	if summary != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Load %s: run %s in %s\n",
			summary.Status, summary.RunID, summary.Duration.Round(time.Millisecond))
	}
	return err
}

// newOpener creates the source opener, with an S3 client only when a
// source needs one
func newOpener(ctx context.Context, cfg *config.LoadConfig) (*source.Opener, error) {
	opener := &source.Opener{}
	if !cfg.UsesS3() {
		return opener, nil
	}
	client, err := source.NewS3Client(ctx, cfg.S3Config())
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	opener.S3 = client
	return opener, nil
}
