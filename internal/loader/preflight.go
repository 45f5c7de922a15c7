package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/masahif/pwcdb/internal/config"
	"github.com/masahif/pwcdb/internal/source"
)

var (
	// ErrSourceMissing is returned when a configured source does not exist
	ErrSourceMissing = errors.New("source missing")
	// ErrTargetNotWritable is returned when the database directory cannot be written
	ErrTargetNotWritable = errors.New("database directory is not writable")
)

// Source is a configured input that passed the startup checks
type Source struct {
	Name     string
	Location source.Location
	Size     int64
}

// Preflight validates every input before any work is done: each
// configured source must exist, and the database directory must be
// creatable and writable. Sources that are not configured are skipped
// with a warning.
func Preflight(ctx context.Context, cfg *config.LoadConfig, opener *source.Opener) ([]Source, error) {
	configured := make(map[string]bool)
	var sources []Source

	for _, ns := range cfg.Sources.Ordered() {
		configured[ns.Name] = true

		loc, err := source.ParseLocation(ns.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", config.ErrInvalidSource, ns.Name, err)
		}
		size, err := opener.Stat(ctx, loc)
		if err != nil {
			if errors.Is(err, source.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s at %s", ErrSourceMissing, ns.Name, loc)
			}
			return nil, fmt.Errorf("failed to check source %s: %w", ns.Name, err)
		}
		slog.Info("Source found", "source", ns.Name, "location", loc.String(), "size", humanize.Bytes(uint64(size)))
		sources = append(sources, Source{Name: ns.Name, Location: loc, Size: size})
	}

	for _, name := range []string{
		config.SourceMethods, config.SourceDatasets, config.SourcePapers,
		config.SourceEvaluations, config.SourceCodeLinks,
	} {
		if !configured[name] {
			slog.Warn("Source not configured, skipping", "source", name)
		}
	}

	if err := checkWritable(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}
	return sources, nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTargetNotWritable, dir, err)
	}
	f, err := os.CreateTemp(dir, ".pwcdb-write-check-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTargetNotWritable, dir, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}
