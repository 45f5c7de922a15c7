package config

import "errors"

var (
	// ErrEmptyDatabasePath is returned when database path is empty
	ErrEmptyDatabasePath = errors.New("database_path cannot be empty")
	// ErrNoSources is returned when no source location is configured
	ErrNoSources = errors.New("no sources configured")
	// ErrInvalidSource is returned when a source location cannot be parsed
	ErrInvalidSource = errors.New("invalid source location")
	// ErrInvalidBatchSize is returned when batch size is not greater than 0
	ErrInvalidBatchSize = errors.New("batch_size must be greater than 0")
	// ErrInvalidProgress is returned when a progress setting is negative
	ErrInvalidProgress = errors.New("progress_every and progress_interval cannot be negative")
	// ErrInvalidLogLevel is returned for an unknown log level
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogRotation is returned when a build log has no size limit
	ErrInvalidLogRotation = errors.New("log.max_size_mb must be greater than 0 when log.file is set")
)
