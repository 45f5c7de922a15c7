package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/masahif/pwcdb/internal/config"
	"github.com/masahif/pwcdb/internal/loader"
	"github.com/masahif/pwcdb/internal/source"
)

const testMethods = `[
  {"url": "https://paperswithcode.com/method/adam", "name": "Adam", "full_name": "Adam Optimizer",
   "description": "An adaptive learning rate optimizer.", "collections": [{"collection": "Stochastic Optimization", "area": "General"}]},
  {"url": "https://paperswithcode.com/method/delta-help", "name": "How to reach Delta",
   "description": "Call customer service any time.", "collections": ["Stochastic Optimization"]}
]`

const testDatasets = `[
  {"url": "https://paperswithcode.com/dataset/imagenet", "name": "ImageNet", "homepage": "https://image-net.org",
   "description": "A large image dataset."},
  {"url": "https://paperswithcode.com/dataset/cheap-flights", "name": "Cheap flights", "homepage": "",
   "description": "Book now."}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestSetVersionInfo(t *testing.T) {
	version := "1.2.3"
	buildTime := "2024-05-01T10:00:00Z"

	SetVersionInfo(version, buildTime)

	expected := "1.2.3 (built 2024-05-01T10:00:00Z)"
	if rootCmd.Version != expected {
		t.Errorf("Expected version %s, got %s", expected, rootCmd.Version)
	}
}

func TestRootCmd(t *testing.T) {
	if rootCmd.Use != "pwcdb" {
		t.Errorf("Expected use 'pwcdb', got %s", rootCmd.Use)
	}
	if rootCmd.RunE == nil {
		t.Error("RunE should be set to runLoad")
	}

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"stats", "clean"} {
		if !names[want] {
			t.Errorf("Expected subcommand %s", want)
		}
	}

	if rootCmd.PersistentFlags().Lookup("database") == nil {
		t.Error("Expected persistent --database flag")
	}
	if cleanCmd.Flags().Lookup("dry-run") == nil {
		t.Error("Expected --dry-run flag on clean")
	}
}

func TestInitConfig(t *testing.T) {
	tempDir := t.TempDir()
	configFile := writeFile(t, tempDir, "pwcdb.yml", `
database_path: /tmp/pwc-test.db
batch_size: 500
sources:
  papers: data/papers.json.gz
log:
  level: debug
`)

	cfgFile = configFile
	defer func() {
		cfgFile = ""
		viper.Reset()
	}()

	initConfig()

	if viper.ConfigFileUsed() != configFile {
		t.Errorf("Expected config file %s, got %s", configFile, viper.ConfigFileUsed())
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.DatabasePath != "/tmp/pwc-test.db" {
		t.Errorf("DatabasePath = %s", cfg.DatabasePath)
	}
	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.BatchSize)
	}
	if cfg.Sources.Papers != "data/papers.json.gz" {
		t.Errorf("Sources.Papers = %s", cfg.Sources.Papers)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s", cfg.Log.Level)
	}
	// untouched keys keep their defaults
	if cfg.ProgressEvery != 10000 {
		t.Errorf("ProgressEvery = %d, want default 10000", cfg.ProgressEvery)
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("PWCDB_BATCH_SIZE", "77")
	t.Setenv("PWCDB_SOURCES_METHODS", "methods.json")
	defer viper.Reset()

	initConfig()
	// keys only present in the environment must be known to viper
	viper.SetDefault("batch_size", 2000)
	viper.SetDefault("sources.methods", "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.BatchSize != 77 {
		t.Errorf("BatchSize = %d, want 77", cfg.BatchSize)
	}
	if cfg.Sources.Methods != "methods.json" {
		t.Errorf("Sources.Methods = %q", cfg.Sources.Methods)
	}
}

func TestShowCurrentConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sources.Papers = "papers.json"
	cfg.S3.SecretAccessKey = "very-secret"

	var buf bytes.Buffer
	if err := showCurrentConfig(&buf, cfg); err != nil {
		t.Fatalf("showCurrentConfig() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{"database_path: ./pwc.db", "papers: papers.json", "PWCDB_"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q", want)
		}
	}
	if strings.Contains(out, "very-secret") {
		t.Error("Secret access key printed")
	}
	if cfg.S3.SecretAccessKey != "very-secret" {
		t.Error("showCurrentConfig modified the configuration")
	}

	if err := showCurrentConfig(&buf, nil); err == nil {
		t.Error("Expected error for nil configuration")
	}
}

func TestRunLoad(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "pwc.db")

	viper.Reset()
	defer viper.Reset()
	viper.Set("database_path", dbPath)
	viper.Set("sources.methods", writeFile(t, tempDir, "methods.json", testMethods))
	viper.Set("log.level", "error")

	cmd := &cobra.Command{}
	cmd.Flags().Bool("show-config", false, "")
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runLoad(cmd, nil); err != nil {
		t.Fatalf("runLoad() error = %v", err)
	}
	if !strings.Contains(out.String(), "Load completed") {
		t.Errorf("Unexpected output: %s", out.String())
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Database not created: %v", err)
	}
}

func TestRunLoadInvalidConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("database_path", filepath.Join(t.TempDir(), "pwc.db"))

	cmd := &cobra.Command{}
	cmd.Flags().Bool("show-config", false, "")
	cmd.SetContext(context.Background())

	err := runLoad(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected invalid configuration error, got %v", err)
	}
}

// loadFixture builds a database with one spam method and one spam dataset
func loadFixture(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DatabasePath = filepath.Join(tempDir, "pwc.db")
	cfg.Log.Level = "error"
	cfg.Sources.Methods = writeFile(t, tempDir, "methods.json", testMethods)
	cfg.Sources.Datasets = writeFile(t, tempDir, "datasets.json", testDatasets)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if _, err := loader.New(cfg, &source.Opener{}).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return cfg.DatabasePath
}

func TestClean(t *testing.T) {
	dbPath := loadFixture(t)
	store, err := openExisting(dbPath)
	if err != nil {
		t.Fatalf("openExisting() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	var out bytes.Buffer
	res, err := clean(&out, store, true)
	if err != nil {
		t.Fatalf("clean(dry run) error = %v", err)
	}
	if len(res.Methods) != 1 || len(res.Datasets) != 1 {
		t.Fatalf("Expected 1 method and 1 dataset flagged, got %d and %d", len(res.Methods), len(res.Datasets))
	}
	if !strings.Contains(out.String(), "customer_service") {
		t.Errorf("Expected match family in output: %s", out.String())
	}

	var methods int64
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM methods").Scan(&methods); err != nil {
		t.Fatal(err)
	}
	if methods != 2 {
		t.Errorf("Dry run deleted rows: %d methods left", methods)
	}

	res, err = clean(&out, store, false)
	if err != nil {
		t.Fatalf("clean() error = %v", err)
	}
	if res.MethodsDeleted != 1 || res.DatasetsDeleted != 1 {
		t.Errorf("Deleted %d methods and %d datasets, want 1 and 1", res.MethodsDeleted, res.DatasetsDeleted)
	}

	var links int64
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM method_categories_rel").Scan(&links); err != nil {
		t.Fatal(err)
	}
	if links != 1 {
		t.Errorf("Expected the spam method's category link removed, %d left", links)
	}
}

func TestWriteStats(t *testing.T) {
	dbPath := loadFixture(t)
	store, err := openExisting(dbPath)
	if err != nil {
		t.Fatalf("openExisting() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	var out bytes.Buffer
	if err := writeStats(&out, store); err != nil {
		t.Fatalf("writeStats() error = %v", err)
	}
	for _, want := range []string{"tables:", "table: methods", "Stochastic Optimization", "status: completed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected stats to contain %q:\n%s", want, out.String())
		}
	}
}

func TestOpenExistingMissing(t *testing.T) {
	if _, err := openExisting(filepath.Join(t.TempDir(), "none.db")); err == nil {
		t.Error("Expected error for a missing database")
	}
}
