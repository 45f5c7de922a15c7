// Package source locates and streams the JSON dump files. A dump is a
// single top-level JSON array, optionally gzip-compressed, on the local
// filesystem or in an S3 bucket.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is returned when a source location does not exist
var ErrNotFound = errors.New("source not found")

// Location is a parsed source path
type Location struct {
	Raw    string
	Path   string // local path, empty for S3
	Bucket string
	Key    string
}

// ParseLocation accepts a local path, a file:// URL or s3://bucket/key
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("empty source location")
	}

	switch {
	case strings.HasPrefix(raw, "s3://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Location{}, fmt.Errorf("invalid s3 location %q: %w", raw, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, fmt.Errorf("invalid s3 location %q: want s3://bucket/key", raw)
		}
		return Location{Raw: raw, Bucket: u.Host, Key: key}, nil

	case strings.HasPrefix(raw, "file://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Location{}, fmt.Errorf("invalid file location %q: %w", raw, err)
		}
		if u.Path == "" {
			return Location{}, fmt.Errorf("invalid file location %q: empty path", raw)
		}
		return Location{Raw: raw, Path: u.Path}, nil

	case strings.Contains(raw, "://"):
		return Location{}, fmt.Errorf("unsupported source scheme in %q", raw)
	}

	return Location{Raw: raw, Path: raw}, nil
}

// IsS3 reports whether the location is an S3 object
func (l Location) IsS3() bool {
	return l.Bucket != ""
}

// Name returns the base file name, used to label log lines and metrics
func (l Location) Name() string {
	p := l.Path
	if l.IsS3() {
		p = l.Key
	}
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

func (l Location) String() string {
	return l.Raw
}
