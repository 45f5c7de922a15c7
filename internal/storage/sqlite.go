// Package storage provides the SQLite store the loader writes into.
// It owns the schema, the batched writer, the post-load index build and
// the finalization queries that run once all sources are consumed.
package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"

	"github.com/masahif/pwcdb/internal/intern"
)

// SQLiteStorage is the relational store
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// connection pragmas, applied through the DSN so they hold for every
// connection the pool opens
var dsnPragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"cache_size(-64000)", // 64MB cache
	"temp_store(MEMORY)",
	"busy_timeout(30000)", // 30 second timeout for locks
}

// NewSQLiteStorage opens (creating if needed) the store at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	q := url.Values{}
	for _, p := range dsnPragmas {
		q.Add("_pragma", p)
	}

	// Open database with the pragmas in the DSN
	db, err := sql.Open("sqlite", "file:"+dbPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection, the loader is the only writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	storage := &SQLiteStorage{db: db, path: dbPath}

	// Initialize schema
	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// InitSchema creates the tables and views
func (s *SQLiteStorage) InitSchema() error {
	// Check that the DSN pragmas took effect
	var fk int
	if err := s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		return fmt.Errorf("failed to read pragma foreign_keys: %w", err)
	}
	if fk != 1 {
		return fmt.Errorf("foreign key enforcement is not enabled")
	}

	// Create schema
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Record schema version
	return s.SetMeta("schema_version", SchemaVersion)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *SQLiteStorage) Path() string {
	return s.path
}

// DB exposes the handle for read-only reporting queries
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM store_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil // Key not set
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

// preloadQueries read the natural key -> id pairs of each interned kind
var preloadQueries = []struct {
	kind  intern.Kind
	query string
}{
	{intern.Paper, "SELECT id, paper_url FROM papers"},
	{intern.Author, "SELECT id, name FROM authors"},
	{intern.Task, "SELECT id, name FROM tasks"},
	{intern.Method, "SELECT id, url FROM methods"},
	{intern.Area, "SELECT id, area_id FROM method_areas"},
	{intern.Category, "SELECT id, name FROM method_categories"},
	{intern.Dataset, "SELECT id, url FROM datasets"},
	{intern.Evaluation, "SELECT id, task FROM evaluations"},
	{intern.EvalCategory, "SELECT id, name FROM evaluation_categories"},
}

// Preload seeds the interner with every id already in the store so a
// re-run reuses them instead of creating duplicates.
func (s *SQLiteStorage) Preload(in *intern.Interner) error {
	// Kinds keyed by a single column
	for _, pq := range preloadQueries {
		if err := s.scanKeys(pq.query, func(id int64, key string) {
			in.Preload(pq.kind, key, id)
		}); err != nil {
			return fmt.Errorf("failed to preload %s ids: %w", pq.kind, err)
		}
	}

	// Leaderboards are keyed by evaluation and name
	rows, err := s.db.Query("SELECT id, evaluation_id, name FROM evaluation_datasets")
	if err != nil {
		return fmt.Errorf("failed to preload evaluation datasets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, evalID int64
		var name string
		if err := rows.Scan(&id, &evalID, &name); err != nil {
			return fmt.Errorf("failed to scan evaluation dataset: %w", err)
		}
		in.Preload(intern.EvalDataset, intern.EvalDatasetKey(evalID, name), id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to preload evaluation datasets: %w", err)
	}

	return s.preloadEvalResults(in)
}

// preloadEvalResults seeds leaderboard row ids, keyed by leaderboard,
// model and paper URL
func (s *SQLiteStorage) preloadEvalResults(in *intern.Interner) error {
	rows, err := s.db.Query("SELECT id, dataset_id, model_name, paper_url FROM evaluation_results")
	if err != nil {
		return fmt.Errorf("failed to preload evaluation results: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, datasetID int64
		var model, paperURL string
		if err := rows.Scan(&id, &datasetID, &model, &paperURL); err != nil {
			return fmt.Errorf("failed to scan evaluation result: %w", err)
		}
		in.Preload(intern.EvalResult, intern.EvalResultKey(datasetID, model, paperURL), id)
	}
	return rows.Err()
}

func (s *SQLiteStorage) scanKeys(query string, fn func(id int64, key string)) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var key string
		if err := rows.Scan(&id, &key); err != nil {
			return err
		}
		fn(id, key)
	}
	return rows.Err()
}

// CategoryBindings calls fn for every stored category with the slug of
// its area.
func (s *SQLiteStorage) CategoryBindings(fn func(categoryID int64, areaSlug string)) error {
	rows, err := s.db.Query(`
		SELECT c.id, a.area_id
		FROM method_categories c
		JOIN method_areas a ON a.id = c.area_id
	`)
	if err != nil {
		return fmt.Errorf("failed to query category bindings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var slug string
		if err := rows.Scan(&id, &slug); err != nil {
			return fmt.Errorf("failed to scan category binding: %w", err)
		}
		fn(id, slug)
	}
	return rows.Err()
}

// MethodNames calls fn with the id, name and full name of every stored
// method.
func (s *SQLiteStorage) MethodNames(fn func(id int64, name, fullName string)) error {
	rows, err := s.db.Query("SELECT id, COALESCE(name, ''), COALESCE(full_name, '') FROM methods")
	if err != nil {
		return fmt.Errorf("failed to query method names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name, fullName string
		if err := rows.Scan(&id, &name, &fullName); err != nil {
			return fmt.Errorf("failed to scan method name: %w", err)
		}
		fn(id, name, fullName)
	}
	return rows.Err()
}

// ResetData deletes every row so the store can be rebuilt from scratch.
// Schema and indexes are kept.
func (s *SQLiteStorage) ResetData() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// junctions and dependents first
	for i := len(countedTables) - 1; i >= 0; i-- {
		if _, err := tx.Exec("DELETE FROM " + countedTables[i]); err != nil {
			return fmt.Errorf("failed to clear %s: %w", countedTables[i], err)
		}
	}
	return tx.Commit()
}

// TableCount is the row count of one table
type TableCount struct {
	Table string `json:"table" yaml:"table"`
	Rows  int64  `json:"rows" yaml:"rows"`
}

// TableCounts returns the row count of every summary table
func (s *SQLiteStorage) TableCounts() ([]TableCount, error) {
	counts := make([]TableCount, 0, len(countedTables))
	for _, table := range countedTables {
		var n int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts = append(counts, TableCount{Table: table, Rows: n})
	}
	return counts, nil
}

// RunRecord is one row of load_runs
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Summary    string // JSON
}

// RecordRun inserts or updates a load_runs row
func (s *SQLiteStorage) RecordRun(r RunRecord) error {
	// A running load has no finish time yet
	var finished any
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO load_runs (run_id, started_at, finished_at, status, summary)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			summary = excluded.summary
	`, r.RunID, r.StartedAt.UTC(), finished, r.Status, nullString(r.Summary))
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// LastRun returns the most recently started run, or nil
func (s *SQLiteStorage) LastRun() (*RunRecord, error) {
	var r RunRecord
	var finished sql.NullTime
	var summary sql.NullString
	err := s.db.QueryRow(`
		SELECT run_id, started_at, finished_at, status, summary
		FROM load_runs ORDER BY started_at DESC LIMIT 1
	`).Scan(&r.RunID, &r.StartedAt, &finished, &r.Status, &summary)
	if err == sql.ErrNoRows {
		return nil, nil // No runs yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}
	r.FinishedAt = finished.Time
	r.Summary = summary.String
	return &r, nil
}

// nullString maps the empty string to NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullID maps a zero id to NULL
func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
