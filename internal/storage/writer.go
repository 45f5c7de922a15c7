package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/masahif/pwcdb/internal/hierarchy"
	"github.com/masahif/pwcdb/internal/normalize"
)

// DefaultBatchSize is the number of rows per transaction
const DefaultBatchSize = 2000

// Table identifies a table written by the Writer
type Table int

// Tables in dependency order: a table only depends on tables before it
const (
	MethodAreas Table = iota
	MethodCategories
	Methods
	MethodCategoriesRel
	Datasets
	Papers
	Authors
	Tasks
	PaperAuthors
	PaperTasks
	PaperMethods
	Evaluations
	EvaluationCategories
	EvaluationCategoriesRel
	EvaluationDatasets
	EvaluationDatasetLinks
	EvaluationResults
	EvaluationMetrics
	EvaluationResultLinks
	CodeLinks
	numTables
)

type tableSpec struct {
	name   string
	insert string
	deps   []Table // flushed before this table
}

var tableSpecs = [numTables]tableSpec{
	MethodAreas: {
		name:   "method_areas",
		insert: insertSQL("method_areas", "id", "area_id", "area_name"),
	},
	MethodCategories: {
		name:   "method_categories",
		insert: insertSQL("method_categories", "id", "name", "area_id"),
		deps:   []Table{MethodAreas},
	},
	Methods: {
		name: "methods",
		insert: insertSQL("methods", "id", "url", "name", "full_name", "description",
			"introduced_year", "num_papers", "paper_title", "paper_arxiv_id", "paper_url_abs",
			"paper_url_pdf", "paper_url", "source_url", "source_title", "code_snippet_url"),
	},
	MethodCategoriesRel: {
		name:   "method_categories_rel",
		insert: insertSQL("method_categories_rel", "method_id", "category_id"),
		deps:   []Table{Methods, MethodCategories},
	},
	Datasets: {
		name: "datasets",
		insert: insertSQL("datasets", "id", "url", "name", "full_name", "homepage",
			"description", "short_description", "parent_dataset", "image"),
	},
	Papers: {
		name: "papers",
		insert: insertSQL("papers", "id", "paper_url", "arxiv_id", "nips_id", "openreview_id",
			"title", "abstract", "short_abstract", "url_abs", "url_pdf", "proceeding", "date",
			"conference_url_abs", "conference_url_pdf", "conference", "reproduces_paper"),
	},
	Authors: {
		name:   "authors",
		insert: insertSQL("authors", "id", "name"),
	},
	Tasks: {
		name:   "tasks",
		insert: insertSQL("tasks", "id", "name"),
	},
	PaperAuthors: {
		name:   "paper_authors",
		insert: insertSQL("paper_authors", "paper_id", "author_id", "author_order"),
		deps:   []Table{Papers, Authors},
	},
	PaperTasks: {
		name:   "paper_tasks",
		insert: insertSQL("paper_tasks", "paper_id", "task_id"),
		deps:   []Table{Papers, Tasks},
	},
	PaperMethods: {
		name:   "paper_methods",
		insert: insertSQL("paper_methods", "paper_id", "method_id"),
		deps:   []Table{Papers, Methods},
	},
	Evaluations: {
		name:   "evaluations",
		insert: insertSQL("evaluations", "id", "task", "task_id", "parent_id", "description", "source_link"),
		deps:   []Table{Tasks},
	},
	EvaluationCategories: {
		name:   "evaluation_categories",
		insert: insertSQL("evaluation_categories", "id", "name"),
	},
	EvaluationCategoriesRel: {
		name:   "evaluation_categories_rel",
		insert: insertSQL("evaluation_categories_rel", "evaluation_id", "category_id"),
		deps:   []Table{Evaluations, EvaluationCategories},
	},
	EvaluationDatasets: {
		name:   "evaluation_datasets",
		insert: insertSQL("evaluation_datasets", "id", "evaluation_id", "parent_id", "name", "description"),
		deps:   []Table{Evaluations},
	},
	EvaluationDatasetLinks: {
		name:   "evaluation_dataset_links",
		insert: insertSQL("evaluation_dataset_links", "dataset_id", "kind", "url", "title"),
		deps:   []Table{EvaluationDatasets},
	},
	EvaluationResults: {
		name: "evaluation_results",
		insert: insertSQL("evaluation_results", "id", "dataset_id", "model_name", "paper_url",
			"paper_title", "paper_date", "uses_additional_data", "metrics"),
		deps: []Table{EvaluationDatasets},
	},
	EvaluationMetrics: {
		name:   "evaluation_metrics",
		insert: insertSQL("evaluation_metrics", "result_id", "metric_name", "metric_value"),
		deps:   []Table{EvaluationResults},
	},
	EvaluationResultLinks: {
		name:   "evaluation_result_links",
		insert: insertSQL("evaluation_result_links", "result_id", "kind", "url", "title"),
		deps:   []Table{EvaluationResults},
	},
	CodeLinks: {
		name: "code_links",
		insert: insertSQL("code_links", "paper_ref", "paper_url", "paper_title", "paper_arxiv_id",
			"paper_url_abs", "paper_url_pdf", "repo_url", "is_official", "mentioned_in_paper", "framework"),
	},
}

func (t Table) String() string {
	if t < 0 || t >= numTables {
		return fmt.Sprintf("table(%d)", int(t))
	}
	return tableSpecs[t].name
}

func insertSQL(table string, cols ...string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders)
}

// Position locates the source record a row came from
type Position struct {
	Source string
	Offset int64 // zero-based record index within the source
}

// TableStats counts rows for one table over a run
type TableStats struct {
	Table         string `json:"table" yaml:"table"`
	Attempted     int64  `json:"attempted" yaml:"attempted"`
	Committed     int64  `json:"committed" yaml:"committed"` // rows in committed batches
	Inserted      int64  `json:"inserted" yaml:"inserted"`   // rows that were not already present
	Failed        int64  `json:"failed" yaml:"failed"`       // rows in rolled back batches
	Batches       int    `json:"batches" yaml:"batches"`
	FailedBatches int    `json:"failed_batches" yaml:"failed_batches"`
}

// Observer is notified after every batch
type Observer interface {
	ObserveBatch(table string, rows int, inserted int64, elapsed time.Duration, failed bool)
}

type buffer struct {
	rows  [][]any
	first Position
	last  Position
}

// Writer buffers rows per table and writes each full buffer as one
// transaction. Flushing a table first flushes the tables it references,
// so a junction row is never written before the rows it points to.
type Writer struct {
	store     *SQLiteStorage
	batchSize int
	buffers   [numTables]buffer
	stats     [numTables]TableStats
	failures  []*BatchError
	observer  Observer
}

// NewWriter creates a Writer over store
func NewWriter(store *SQLiteStorage, batchSize int) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	w := &Writer{store: store, batchSize: batchSize}
	for t := Table(0); t < numTables; t++ {
		w.stats[t].Table = tableSpecs[t].name
	}
	return w
}

// SetObserver registers a batch observer
func (w *Writer) SetObserver(o Observer) {
	w.observer = o
}

// Add buffers one row for table t and flushes when the buffer is full.
// Only storage failures are returned.
func (w *Writer) Add(t Table, pos Position, args ...any) error {
	buf := &w.buffers[t]
	if len(buf.rows) == 0 {
		buf.first = pos
	}
	buf.last = pos
	buf.rows = append(buf.rows, args)
	w.stats[t].Attempted++

	if len(buf.rows) >= w.batchSize {
		return w.Flush(t)
	}
	return nil
}

// Flush writes the buffered rows of t after those of its dependencies
func (w *Writer) Flush(t Table) error {
	for _, dep := range tableSpecs[t].deps {
		if err := w.Flush(dep); err != nil {
			return err
		}
	}
	return w.flushTable(t)
}

// FlushAll writes every buffered row, in dependency order
func (w *Writer) FlushAll() error {
	for t := Table(0); t < numTables; t++ {
		if err := w.flushTable(t); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) flushTable(t Table) error {
	buf := &w.buffers[t]
	n := len(buf.rows)
	if n == 0 {
		return nil
	}
	spec := tableSpecs[t]
	st := &w.stats[t]

	start := time.Now()
	inserted, err := w.store.execBatch(spec.insert, buf.rows)
	elapsed := time.Since(start)
	first, last := buf.first, buf.last

	// reuse the backing array for the next batch
	clear(buf.rows)
	buf.rows = buf.rows[:0]

	st.Batches++
	if err == nil {
		st.Committed += int64(n)
		st.Inserted += inserted
		if w.observer != nil {
			w.observer.ObserveBatch(spec.name, n, inserted, elapsed, false)
		}
		slog.Debug("Batch committed", "table", spec.name, "rows", n, "inserted", inserted, "duration", elapsed)
		return nil
	}

	if !isBatchLevel(err) {
		return storageError("write "+spec.name+" batch", err)
	}

	st.Failed += int64(n)
	st.FailedBatches++
	batchErr := &BatchError{
		Table:       spec.name,
		Source:      first.Source,
		FirstOffset: first.Offset,
		LastOffset:  last.Offset,
		Rows:        n,
		Err:         err,
	}
	w.failures = append(w.failures, batchErr)
	if w.observer != nil {
		w.observer.ObserveBatch(spec.name, n, 0, elapsed, true)
	}
	slog.Error("Batch failed, continuing with next batch",
		"table", spec.name,
		"source", first.Source,
		"first_offset", first.Offset,
		"last_offset", last.Offset,
		"rows", n,
		"error", err)
	return nil
}

// Stats returns per-table counters in dependency order
func (w *Writer) Stats() []TableStats {
	out := make([]TableStats, numTables)
	copy(out, w.stats[:])
	return out
}

// TableStats returns the counters of one table
func (w *Writer) TableStats(t Table) TableStats {
	return w.stats[t]
}

// Failures returns every batch that was rolled back
func (w *Writer) Failures() []*BatchError {
	return w.failures
}

// Pending returns the number of buffered rows
func (w *Writer) Pending() int {
	n := 0
	for i := range w.buffers {
		n += len(w.buffers[i].rows)
	}
	return n
}

// execBatch inserts rows in one transaction with a prepared statement
// and returns the number of rows actually inserted.
func (s *SQLiteStorage) execBatch(query string, rows [][]any) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	// Ignored rows report zero rows affected
	var inserted int64
	for _, args := range rows {
		res, err := stmt.Exec(args...)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

// Typed helpers, one per table

// AddArea buffers a method_areas row
func (w *Writer) AddArea(pos Position, a hierarchy.AreaRow) error {
	return w.Add(MethodAreas, pos, a.ID, a.Slug, a.Name)
}

// AddCategory buffers a method_categories row
func (w *Writer) AddCategory(pos Position, c hierarchy.CategoryRow) error {
	return w.Add(MethodCategories, pos, c.ID, c.Name, c.AreaID)
}

// AddMethod buffers a methods row
func (w *Writer) AddMethod(pos Position, id int64, m *normalize.Method) error {
	return w.Add(Methods, pos, id, m.URL,
		nullString(m.Name), nullString(m.FullName), nullString(m.Description),
		m.IntroducedYear, m.NumPapers,
		nullString(m.PaperTitle), nullString(m.PaperArxivID), nullString(m.PaperURLAbs),
		nullString(m.PaperURLPDF), nullString(m.PaperURL),
		nullString(m.SourceURL), nullString(m.SourceTitle), nullString(m.CodeSnippetURL))
}

// AddMethodCategory buffers a method_categories_rel row
func (w *Writer) AddMethodCategory(pos Position, l hierarchy.Link) error {
	return w.Add(MethodCategoriesRel, pos, l.MethodID, l.CategoryID)
}

// AddDataset buffers a datasets row
func (w *Writer) AddDataset(pos Position, id int64, d *normalize.Dataset) error {
	return w.Add(Datasets, pos, id, d.URL,
		nullString(d.Name), nullString(d.FullName), nullString(d.Homepage),
		nullString(d.Description), nullString(d.ShortDescription),
		nullString(d.ParentDataset), nullString(d.Image))
}

// AddPaper buffers a papers row
func (w *Writer) AddPaper(pos Position, id int64, p *normalize.Paper) error {
	return w.Add(Papers, pos, id, p.URL,
		nullString(p.ArxivID), nullString(p.NipsID), nullString(p.OpenReviewID),
		nullString(p.Title), nullString(p.Abstract), nullString(p.ShortAbstract),
		nullString(p.URLAbs), nullString(p.URLPDF), nullString(p.Proceeding),
		nullString(p.Date),
		nullString(p.ConferenceURLAbs), nullString(p.ConferenceURLPDF), nullString(p.Conference),
		nullString(p.ReproducesPaper))
}

// AddAuthor buffers an authors row
func (w *Writer) AddAuthor(pos Position, id int64, name string) error {
	return w.Add(Authors, pos, id, name)
}

// AddTask buffers a tasks row
func (w *Writer) AddTask(pos Position, id int64, name string) error {
	return w.Add(Tasks, pos, id, name)
}

// AddPaperAuthor buffers a paper_authors row; order is zero-based
func (w *Writer) AddPaperAuthor(pos Position, paperID, authorID int64, order int) error {
	return w.Add(PaperAuthors, pos, paperID, authorID, order)
}

// AddPaperTask buffers a paper_tasks row
func (w *Writer) AddPaperTask(pos Position, paperID, taskID int64) error {
	return w.Add(PaperTasks, pos, paperID, taskID)
}

// AddPaperMethod buffers a paper_methods row
func (w *Writer) AddPaperMethod(pos Position, paperID, methodID int64) error {
	return w.Add(PaperMethods, pos, paperID, methodID)
}

// AddEvaluation buffers an evaluations row. parentID is zero for a
// top-level table.
func (w *Writer) AddEvaluation(pos Position, id, taskID, parentID int64, e *normalize.Evaluation) error {
	return w.Add(Evaluations, pos, id, e.Task, nullID(taskID), nullID(parentID),
		nullString(e.Description), nullString(e.SourceLink))
}

// AddEvaluationCategory buffers an evaluation_categories row
func (w *Writer) AddEvaluationCategory(pos Position, id int64, name string) error {
	return w.Add(EvaluationCategories, pos, id, name)
}

// AddEvaluationCategoryRel buffers an evaluation_categories_rel row
func (w *Writer) AddEvaluationCategoryRel(pos Position, evaluationID, categoryID int64) error {
	return w.Add(EvaluationCategoriesRel, pos, evaluationID, categoryID)
}

// Link kinds of evaluation_dataset_links and evaluation_result_links
const (
	LinkDataset  = "link"
	LinkCitation = "citation"
	LinkCode     = "code"
	LinkModel    = "model"
)

// AddEvaluationDataset buffers an evaluation_datasets row. parentID is
// zero for a top-level leaderboard.
func (w *Writer) AddEvaluationDataset(pos Position, id, evaluationID, parentID int64, d *normalize.EvalDataset) error {
	return w.Add(EvaluationDatasets, pos, id, evaluationID, nullID(parentID), d.Name, nullString(d.Description))
}

// AddEvaluationDatasetLink buffers an evaluation_dataset_links row
func (w *Writer) AddEvaluationDatasetLink(pos Position, datasetID int64, kind string, l normalize.Link) error {
	return w.Add(EvaluationDatasetLinks, pos, datasetID, kind, l.URL, l.Title)
}

// AddEvaluationResult buffers an evaluation_results row
func (w *Writer) AddEvaluationResult(pos Position, id, datasetID int64, r *normalize.EvalResult) error {
	return w.Add(EvaluationResults, pos, id, datasetID, r.ModelName, r.PaperURL,
		nullString(r.PaperTitle), nullString(r.PaperDate), r.UsesAdditionalData, nullString(r.Metrics))
}

// AddEvaluationMetric buffers an evaluation_metrics row
func (w *Writer) AddEvaluationMetric(pos Position, resultID int64, m normalize.Metric) error {
	return w.Add(EvaluationMetrics, pos, resultID, m.Name, m.Value)
}

// AddEvaluationResultLink buffers an evaluation_result_links row
func (w *Writer) AddEvaluationResultLink(pos Position, resultID int64, kind string, l normalize.Link) error {
	return w.Add(EvaluationResultLinks, pos, resultID, kind, l.URL, l.Title)
}

// AddCodeLink buffers a code_links row
func (w *Writer) AddCodeLink(pos Position, c *normalize.CodeLink) error {
	return w.Add(CodeLinks, pos, c.PaperRef(),
		nullString(c.PaperURL), nullString(c.PaperTitle), nullString(c.PaperArxivID),
		nullString(c.PaperURLAbs), nullString(c.PaperURLPDF), c.RepoURL,
		c.IsOfficial, c.MentionedInPaper, nullString(c.Framework))
}
