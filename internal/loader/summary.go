package loader

import (
	"log/slog"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/encoding/json"

	"github.com/masahif/pwcdb/internal/intern"
	"github.com/masahif/pwcdb/internal/storage"
)

// Run statuses recorded in load_runs
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// SourceStats counts the records of one source
type SourceStats struct {
	Name       string           `json:"name"`
	Location   string           `json:"location"`
	Read       int64            `json:"read"`
	Loaded     int64            `json:"loaded"`
	Duplicates int64            `json:"duplicates"`
	Rejected   map[string]int64 `json:"rejected,omitempty"` // by reason
	Error      string           `json:"error,omitempty"`    // set when the stream ended early
	Duration   time.Duration    `json:"duration"`

	// Size is the stored size of the source. UnreadBytes is the part a
	// stream that ended early never reached.
	Size        int64 `json:"size"`
	UnreadBytes int64 `json:"unread_bytes,omitempty"`

	// papers only
	UnresolvedMethods int64 `json:"unresolved_methods,omitempty"`
	EmbeddedMethods   int64 `json:"embedded_methods,omitempty"`
}

// RejectedTotal sums rejections over all reasons
func (s *SourceStats) RejectedTotal() int64 {
	var n int64
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// HierarchyStats reports how categories were bound to areas
type HierarchyStats struct {
	Classified  int `json:"classified"`
	FromSource  int `json:"from_source"`
	Conflicting int `json:"conflicting"`
}

// Summary reports a load run. A run that stops early still returns the
// counts gathered so far.
type Summary struct {
	RunID      string        `json:"run_id"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	Sources   []*SourceStats           `json:"sources"`
	Tables    []storage.TableStats     `json:"tables"`
	Failures  int                      `json:"failed_batches"`
	Counts    []storage.TableCount     `json:"counts,omitempty"`
	Interner  map[string]intern.Counts `json:"interner"`
	Hierarchy HierarchyStats           `json:"hierarchy"`
	Areas     []storage.AreaSummary    `json:"areas,omitempty"`

	CodeLinks               storage.LinkResolution `json:"code_links"`
	EvaluationResultsLinked int64                  `json:"evaluation_results_linked"`
	MethodsRecounted        int64                  `json:"methods_recounted"`
	DatabaseSize            int64                  `json:"database_size"`
}

// Source returns the stats of the named source, or nil
func (s *Summary) Source(name string) *SourceStats {
	for _, st := range s.Sources {
		if st.Name == name {
			return st
		}
	}
	return nil
}

// Count returns the final row count of a table, or -1 when unknown
func (s *Summary) Count(table string) int64 {
	for _, c := range s.Counts {
		if c.Table == table {
			return c.Rows
		}
	}
	return -1
}

// JSON renders the summary for load_runs
func (s *Summary) JSON() string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(b)
}

// Log writes the summary as structured log records
func (s *Summary) Log() {
	slog.Info("Load summary",
		"run_id", s.RunID,
		"status", s.Status,
		"duration", s.Duration.Round(time.Millisecond).String(),
		"failed_batches", s.Failures,
		"database_size", humanize.Bytes(uint64(max(s.DatabaseSize, 0))))

	for _, src := range s.Sources {
		reasons := make([]string, 0, len(src.Rejected))
		for r := range src.Rejected {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		attrs := []any{
			"source", src.Name,
			"read", humanize.Comma(src.Read),
			"loaded", humanize.Comma(src.Loaded),
			"duplicates", humanize.Comma(src.Duplicates),
			"rejected", humanize.Comma(src.RejectedTotal()),
		}
		for _, r := range reasons {
			attrs = append(attrs, "rejected_"+r, src.Rejected[r])
		}
		if src.Name == "papers" {
			attrs = append(attrs, "unresolved_methods", src.UnresolvedMethods, "embedded_methods", src.EmbeddedMethods)
		}
		if src.Error != "" {
			attrs = append(attrs, "error", src.Error,
				"unread", humanize.Bytes(uint64(src.UnreadBytes)))
		}
		slog.Info("Source summary", attrs...)
	}

	for _, c := range s.Counts {
		slog.Info("Table count", "table", c.Table, "rows", humanize.Comma(c.Rows))
	}

	if s.Status == StatusCompleted {
		slog.Info("Code links resolved",
			"by_url", s.CodeLinks.ByURL,
			"by_title", s.CodeLinks.ByTitle,
			"by_arxiv_id", s.CodeLinks.ByArxivID,
			"unmatched", s.CodeLinks.Unmatched)
	}
}
