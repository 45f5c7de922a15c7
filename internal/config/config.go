// Package config provides configuration management for a load run.
// It defines the configuration structure, default values and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/masahif/pwcdb/internal/logging"
	"github.com/masahif/pwcdb/internal/source"
)

// Source names, in load order
const (
	SourceMethods     = "methods"
	SourceDatasets    = "datasets"
	SourcePapers      = "papers"
	SourceEvaluations = "evaluations"
	SourceCodeLinks   = "code_links"
)

// Sources holds the location of each dump. Any may be empty.
type Sources struct {
	Papers      string `mapstructure:"papers" yaml:"papers"`           // papers with abstracts
	Methods     string `mapstructure:"methods" yaml:"methods"`         // methods
	Datasets    string `mapstructure:"datasets" yaml:"datasets"`       // datasets
	Evaluations string `mapstructure:"evaluations" yaml:"evaluations"` // evaluation tables
	CodeLinks   string `mapstructure:"code_links" yaml:"code_links"`   // links between papers and code
}

// NamedSource is a configured source with its name
type NamedSource struct {
	Name     string
	Location string
}

// Ordered returns the configured sources in load order, skipping empty ones
func (s Sources) Ordered() []NamedSource {
	all := []NamedSource{
		{SourceMethods, s.Methods},
		{SourceDatasets, s.Datasets},
		{SourcePapers, s.Papers},
		{SourceEvaluations, s.Evaluations},
		{SourceCodeLinks, s.CodeLinks},
	}
	out := all[:0]
	for _, ns := range all {
		if ns.Location != "" {
			out = append(out, ns)
		}
	}
	return out
}

// S3 contains the settings for s3:// sources
type S3 struct {
	Region             string `mapstructure:"region" yaml:"region"`                               // AWS region
	Endpoint           string `mapstructure:"endpoint" yaml:"endpoint"`                           // S3-compatible endpoint URL
	Profile            string `mapstructure:"profile" yaml:"profile"`                             // Shared config profile
	AccessKeyID        string `mapstructure:"access_key_id" yaml:"access_key_id"`                 // Static access key
	SecretAccessKey    string `mapstructure:"secret_access_key" yaml:"secret_access_key"`         // Static secret key
	AccessKeyIDEnv     string `mapstructure:"access_key_id_env" yaml:"access_key_id_env"`         // Environment variable for the access key
	SecretAccessKeyEnv string `mapstructure:"secret_access_key_env" yaml:"secret_access_key_env"` // Environment variable for the secret key
}

// Log contains logging settings
type Log struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"`           // json or text
	File       string `mapstructure:"file" yaml:"file"`               // Build log path
	MaxSizeMB  int64  `mapstructure:"max_size_mb" yaml:"max_size_mb"` // Rotate the build log at this size
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // Rotated build logs to keep
	Console    bool   `mapstructure:"console" yaml:"console"`         // Also log to stderr
}

// LoadConfig holds the configuration of a load run
type LoadConfig struct {
	// Store
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"` // Path to SQLite database file
	DropExisting bool   `mapstructure:"drop_existing" yaml:"drop_existing"` // Delete all rows before loading

	// Inputs
	Sources Sources `mapstructure:"sources" yaml:"sources"`
	S3      S3      `mapstructure:"s3" yaml:"s3"`

	// Loading
	BatchSize           int           `mapstructure:"batch_size" yaml:"batch_size"`                       // Rows per transaction
	ProgressEvery       int           `mapstructure:"progress_every" yaml:"progress_every"`               // Log progress every N records
	ProgressInterval    time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`         // and at least this often
	RecountMethodPapers bool          `mapstructure:"recount_method_papers" yaml:"recount_method_papers"` // Derive methods.num_papers from links

	// Observability
	Log             Log    `mapstructure:"log" yaml:"log"`
	MetricsTextfile string `mapstructure:"metrics_textfile" yaml:"metrics_textfile"` // Prometheus textfile output
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *LoadConfig {
	return &LoadConfig{
		DatabasePath:     "./pwc.db",
		BatchSize:        2000,
		ProgressEvery:    10000,
		ProgressInterval: 10 * time.Second,
		Log: Log{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			Console:    true,
		},
	}
}

// maxBatchSize keeps a batch within SQLite's default statement memory
const maxBatchSize = 100000

// Validate checks if the configuration is valid
func (c *LoadConfig) Validate() error {
	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}

	sources := c.Sources.Ordered()
	if len(sources) == 0 {
		return ErrNoSources
	}
	for _, s := range sources {
		if _, err := source.ParseLocation(s.Location); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidSource, s.Name, err)
		}
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.BatchSize > maxBatchSize {
		c.BatchSize = maxBatchSize
	}

	if c.ProgressEvery < 0 || c.ProgressInterval < 0 {
		return ErrInvalidProgress
	}
	// Progress would never be reported
	if c.ProgressEvery == 0 && c.ProgressInterval == 0 {
		c.ProgressInterval = 10 * time.Second
	}

	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		return ErrInvalidLogRotation
	}

	return nil
}

// UsesS3 reports whether any source is an S3 location
func (c *LoadConfig) UsesS3() bool {
	for _, s := range c.Sources.Ordered() {
		if loc, err := source.ParseLocation(s.Location); err == nil && loc.IsS3() {
			return true
		}
	}
	return false
}

// GetS3Credentials returns the static S3 credentials, resolving
// environment variables if specified
func (c *LoadConfig) GetS3Credentials() (accessKeyID, secretAccessKey string) {
	if c.S3.AccessKeyIDEnv != "" {
		accessKeyID = os.Getenv(c.S3.AccessKeyIDEnv)
	} else {
		accessKeyID = c.S3.AccessKeyID
	}

	if c.S3.SecretAccessKeyEnv != "" {
		secretAccessKey = os.Getenv(c.S3.SecretAccessKeyEnv)
	} else {
		secretAccessKey = c.S3.SecretAccessKey
	}

	return accessKeyID, secretAccessKey
}

// S3Config returns the client settings for the source package
func (c *LoadConfig) S3Config() source.S3Config {
	id, secret := c.GetS3Credentials()
	return source.S3Config{
		Region:          c.S3.Region,
		Endpoint:        c.S3.Endpoint,
		Profile:         c.S3.Profile,
		AccessKeyID:     id,
		SecretAccessKey: secret,
	}
}

// LoggingConfig converts the log settings for the logging package
func (c *LoadConfig) LoggingConfig() logging.Config {
	return logging.Config{
		Level:      logging.ParseLevel(c.Log.Level),
		Format:     c.Log.Format,
		FilePath:   c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		Console:    c.Log.Console,
	}
}
