package storage

import (
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/masahif/pwcdb/internal/hierarchy"
	"github.com/masahif/pwcdb/internal/intern"
	"github.com/masahif/pwcdb/internal/normalize"
)

func init() {
	// Set log level to ERROR for tests to reduce noise
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	slog.SetDefault(logger)
}

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func countRows(t *testing.T, s *SQLiteStorage, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := s.DB().QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to count with %q: %v", query, err)
	}
	return n
}

var pos = Position{Source: "test.json"}

func TestSQLiteStorage(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "pwc.db")

	storage, err := NewSQLiteStorage(dbFile)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	t.Run("ForeignKeysEnabled", func(t *testing.T) {
		var fk int
		if err := storage.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("Failed to read pragma: %v", err)
		}
		if fk != 1 {
			t.Errorf("foreign_keys = %d, want 1", fk)
		}
	})

	t.Run("SchemaVersion", func(t *testing.T) {
		v, err := storage.GetMeta("schema_version")
		if err != nil {
			t.Fatalf("GetMeta() error = %v", err)
		}
		if v != SchemaVersion {
			t.Errorf("schema_version = %q, want %q", v, SchemaVersion)
		}
	})

	t.Run("MissingMeta", func(t *testing.T) {
		v, err := storage.GetMeta("nope")
		if err != nil || v != "" {
			t.Errorf("GetMeta(nope) = %q, %v; want empty, nil", v, err)
		}
	})

	t.Run("EmptyTableCounts", func(t *testing.T) {
		counts, err := storage.TableCounts()
		if err != nil {
			t.Fatalf("TableCounts() error = %v", err)
		}
		if len(counts) != len(countedTables) {
			t.Fatalf("TableCounts() returned %d tables, want %d", len(counts), len(countedTables))
		}
		for _, c := range counts {
			if c.Rows != 0 {
				t.Errorf("%s has %d rows, want 0", c.Table, c.Rows)
			}
		}
	})

	if err := storage.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	t.Run("Reopen", func(t *testing.T) {
		reopened, err := NewSQLiteStorage(dbFile)
		if err != nil {
			t.Fatalf("Failed to reopen storage: %v", err)
		}
		defer reopened.Close()
		if reopened.Path() != dbFile {
			t.Errorf("Path() = %q, want %q", reopened.Path(), dbFile)
		}
	})
}

func writeMethodFixture(t *testing.T, w *Writer) {
	t.Helper()
	steps := []error{
		w.AddArea(pos, hierarchy.AreaRow{ID: 1, Area: hierarchy.General}),
		w.AddArea(pos, hierarchy.AreaRow{ID: 2, Area: hierarchy.NaturalLanguageProcessing}),
		w.AddCategory(pos, hierarchy.CategoryRow{ID: 1, Name: "Transformers", AreaID: 2}),
		w.AddMethod(pos, 1, &normalize.Method{URL: "https://pwc/method/bert", Name: "BERT"}),
		w.AddMethod(pos, 2, &normalize.Method{URL: "https://pwc/method/gpt", Name: "GPT"}),
		w.AddMethodCategory(pos, hierarchy.Link{MethodID: 1, CategoryID: 1}),
		w.AddMethodCategory(pos, hierarchy.Link{MethodID: 2, CategoryID: 1}),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := w.FlushAll(); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}
}

func TestWriterIdempotentReinsert(t *testing.T) {
	storage := newTestStorage(t)

	first := NewWriter(storage, 10)
	writeMethodFixture(t, first)
	if got := first.TableStats(Methods).Inserted; got != 2 {
		t.Errorf("first run inserted %d methods, want 2", got)
	}

	second := NewWriter(storage, 10)
	writeMethodFixture(t, second)
	for _, st := range second.Stats() {
		if st.Inserted != 0 {
			t.Errorf("second run inserted %d rows into %s, want 0", st.Inserted, st.Table)
		}
		if st.Failed != 0 {
			t.Errorf("second run failed %d rows in %s", st.Failed, st.Table)
		}
	}

	if n := countRows(t, storage, "SELECT COUNT(*) FROM method_categories_rel"); n != 2 {
		t.Errorf("method_categories_rel has %d rows, want 2", n)
	}
}

func TestWriterBatchFailureContinues(t *testing.T) {
	storage := newTestStorage(t)
	w := NewWriter(storage, 1)

	if err := w.AddArea(pos, hierarchy.AreaRow{ID: 1, Area: hierarchy.General}); err != nil {
		t.Fatalf("AddArea() error = %v", err)
	}
	// category 99 references an area that does not exist
	bad := Position{Source: "methods.json", Offset: 7}
	if err := w.AddCategory(bad, hierarchy.CategoryRow{ID: 99, Name: "Orphan", AreaID: 42}); err != nil {
		t.Fatalf("AddCategory() returned a fatal error for a constraint violation: %v", err)
	}
	if err := w.AddCategory(pos, hierarchy.CategoryRow{ID: 1, Name: "Optimization", AreaID: 1}); err != nil {
		t.Fatalf("AddCategory() error = %v", err)
	}
	if err := w.FlushAll(); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}

	st := w.TableStats(MethodCategories)
	if st.FailedBatches != 1 || st.Failed != 1 {
		t.Errorf("failed batches = %d, failed rows = %d; want 1, 1", st.FailedBatches, st.Failed)
	}
	if st.Committed != 1 {
		t.Errorf("committed = %d, want 1", st.Committed)
	}

	failures := w.Failures()
	if len(failures) != 1 {
		t.Fatalf("Failures() returned %d, want 1", len(failures))
	}
	f := failures[0]
	if f.Table != "method_categories" || f.Source != "methods.json" || f.FirstOffset != 7 || f.LastOffset != 7 {
		t.Errorf("unexpected batch error: %+v", f)
	}

	if n := countRows(t, storage, "SELECT COUNT(*) FROM method_categories"); n != 1 {
		t.Errorf("method_categories has %d rows, want 1", n)
	}
}

func TestWriterFlushesDependenciesFirst(t *testing.T) {
	storage := newTestStorage(t)
	w := NewWriter(storage, 2)

	// the junction rows fill their buffer before the paper buffer does
	if err := w.AddPaper(pos, 1, &normalize.Paper{URL: "https://pwc/paper/a", Title: "A"}); err != nil {
		t.Fatalf("AddPaper() error = %v", err)
	}
	if err := w.AddAuthor(pos, 1, "Alice"); err != nil {
		t.Fatalf("AddAuthor() error = %v", err)
	}
	if err := w.AddAuthor(pos, 2, "Bob"); err != nil {
		t.Fatalf("AddAuthor() error = %v", err)
	}
	if err := w.AddPaperAuthor(pos, 1, 1, 0); err != nil {
		t.Fatalf("AddPaperAuthor() error = %v", err)
	}
	if err := w.AddPaperAuthor(pos, 1, 2, 1); err != nil {
		t.Fatalf("AddPaperAuthor() error = %v", err)
	}

	if len(w.Failures()) != 0 {
		t.Fatalf("unexpected batch failures: %v", w.Failures()[0])
	}
	if w.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", w.Pending())
	}
	if n := countRows(t, storage, "SELECT COUNT(*) FROM paper_authors"); n != 2 {
		t.Errorf("paper_authors has %d rows, want 2", n)
	}
	var order int
	if err := storage.DB().QueryRow("SELECT author_order FROM paper_authors WHERE author_id = 2").Scan(&order); err != nil {
		t.Fatalf("Failed to read author order: %v", err)
	}
	if order != 1 {
		t.Errorf("author_order = %d, want 1", order)
	}
}

func TestPreload(t *testing.T) {
	storage := newTestStorage(t)
	w := NewWriter(storage, 100)
	writeMethodFixture(t, w)
	if err := w.AddEvaluation(pos, 5, 0, 0, &normalize.Evaluation{Task: "Image Classification"}); err != nil {
		t.Fatalf("AddEvaluation() error = %v", err)
	}
	if err := w.AddEvaluationDataset(pos, 3, 5, 0, &normalize.EvalDataset{Name: "ImageNet"}); err != nil {
		t.Fatalf("AddEvaluationDataset() error = %v", err)
	}
	if err := w.AddEvaluationResult(pos, 7, 3, &normalize.EvalResult{ModelName: "ResNet-50", PaperURL: "u"}); err != nil {
		t.Fatalf("AddEvaluationResult() error = %v", err)
	}
	if err := w.FlushAll(); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}

	in := intern.New()
	if err := storage.Preload(in); err != nil {
		t.Fatalf("Preload() error = %v", err)
	}

	if id, ok := in.Lookup(intern.Method, "https://pwc/method/gpt"); !ok || id != 2 {
		t.Errorf("Lookup(gpt) = %d, %v; want 2, true", id, ok)
	}
	if id, ok := in.Lookup(intern.EvalDataset, intern.EvalDatasetKey(5, "ImageNet")); !ok || id != 3 {
		t.Errorf("Lookup(ImageNet) = %d, %v; want 3, true", id, ok)
	}
	if id, ok := in.Lookup(intern.EvalResult, intern.EvalResultKey(3, "ResNet-50", "u")); !ok || id != 7 {
		t.Errorf("Lookup(ResNet-50) = %d, %v; want 7, true", id, ok)
	}
	// new ids continue after the preloaded maximum
	if id, created := in.Intern(intern.Method, "https://pwc/method/new"); !created || id != 3 {
		t.Errorf("Intern(new) = %d, %v; want 3, true", id, created)
	}

	bindings := map[int64]string{}
	if err := storage.CategoryBindings(func(id int64, slug string) { bindings[id] = slug }); err != nil {
		t.Fatalf("CategoryBindings() error = %v", err)
	}
	if bindings[1] != hierarchy.NaturalLanguageProcessing.Slug {
		t.Errorf("category 1 bound to %q, want %q", bindings[1], hierarchy.NaturalLanguageProcessing.Slug)
	}

	names := map[string]int64{}
	if err := storage.MethodNames(func(id int64, name, _ string) { names[name] = id }); err != nil {
		t.Fatalf("MethodNames() error = %v", err)
	}
	if names["BERT"] != 1 {
		t.Errorf("MethodNames()[BERT] = %d, want 1", names["BERT"])
	}
}

func TestResolveCodeLinks(t *testing.T) {
	storage := newTestStorage(t)
	w := NewWriter(storage, 100)

	papers := []*normalize.Paper{
		{URL: "https://pwc/paper/a", Title: "Paper A", ArxivID: "1111.1111"},
		{URL: "https://pwc/paper/b", Title: "Paper B", ArxivID: "2222.2222"},
		{URL: "https://pwc/paper/c", Title: "Paper C", ArxivID: "3333.3333"},
	}
	for i, p := range papers {
		if err := w.AddPaper(pos, int64(i+1), p); err != nil {
			t.Fatalf("AddPaper() error = %v", err)
		}
	}
	links := []*normalize.CodeLink{
		{PaperURL: "https://pwc/paper/a", PaperTitle: "Different title", RepoURL: "https://github.com/x/a"},
		{PaperTitle: "Paper B", RepoURL: "https://github.com/x/b"},
		{PaperArxivID: "3333.3333", RepoURL: "https://github.com/x/c"},
		{PaperTitle: "Unknown", RepoURL: "https://github.com/x/d"},
	}
	for _, l := range links {
		if err := w.AddCodeLink(pos, l); err != nil {
			t.Fatalf("AddCodeLink() error = %v", err)
		}
	}
	if err := w.FlushAll(); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}

	res, err := storage.ResolveCodeLinks()
	if err != nil {
		t.Fatalf("ResolveCodeLinks() error = %v", err)
	}
	want := LinkResolution{ByURL: 1, ByTitle: 1, ByArxivID: 1, Unmatched: 1}
	if res != want {
		t.Errorf("ResolveCodeLinks() = %+v, want %+v", res, want)
	}

	tests := []struct {
		repo    string
		paperID sql.NullInt64
		match   sql.NullString
	}{
		{"https://github.com/x/a", sql.NullInt64{Int64: 1, Valid: true}, sql.NullString{String: "url", Valid: true}},
		{"https://github.com/x/b", sql.NullInt64{Int64: 2, Valid: true}, sql.NullString{String: "title", Valid: true}},
		{"https://github.com/x/c", sql.NullInt64{Int64: 3, Valid: true}, sql.NullString{String: "arxiv", Valid: true}},
		{"https://github.com/x/d", sql.NullInt64{}, sql.NullString{}},
	}
	for _, tt := range tests {
		t.Run(tt.repo, func(t *testing.T) {
			var id sql.NullInt64
			var match sql.NullString
			err := storage.DB().QueryRow("SELECT paper_id, paper_match FROM code_links WHERE repo_url = ?", tt.repo).
				Scan(&id, &match)
			if err != nil {
				t.Fatalf("Failed to read link: %v", err)
			}
			if id != tt.paperID || match != tt.match {
				t.Errorf("link = (%v, %v), want (%v, %v)", id, match, tt.paperID, tt.match)
			}
		})
	}

	// a second pass matches nothing new
	again, err := storage.ResolveCodeLinks()
	if err != nil {
		t.Fatalf("ResolveCodeLinks() error = %v", err)
	}
	if again.ByURL+again.ByTitle+again.ByArxivID != 0 || again.Unmatched != 1 {
		t.Errorf("second ResolveCodeLinks() = %+v", again)
	}
}

func TestLeaderboardDetails(t *testing.T) {
	storage := newTestStorage(t)
	w := NewWriter(storage, 2)

	if err := w.AddEvaluation(pos, 1, 0, 0, &normalize.Evaluation{Task: "QA"}); err != nil {
		t.Fatalf("AddEvaluation() error = %v", err)
	}
	squad := normalize.Link{Title: "Homepage", URL: "https://squad.example"}
	steps := []error{
		w.AddEvaluationDataset(pos, 1, 1, 0, &normalize.EvalDataset{Name: "SQuAD"}),
		w.AddEvaluationDataset(pos, 2, 1, 1, &normalize.EvalDataset{Name: "SQuAD dev"}),
		w.AddEvaluationDatasetLink(pos, 1, LinkDataset, squad),
		w.AddEvaluationDatasetLink(pos, 1, LinkDataset, squad),
		w.AddEvaluationDatasetLink(pos, 1, LinkCitation, normalize.Link{Title: "SQuAD paper"}),
		w.AddEvaluationResult(pos, 10, 2, &normalize.EvalResult{ModelName: "BERT"}),
		w.AddEvaluationMetric(pos, 10, normalize.Metric{Name: "EM", Value: "85.0"}),
		w.AddEvaluationMetric(pos, 10, normalize.Metric{Name: "F1", Value: "91.2"}),
		w.AddEvaluationResultLink(pos, 10, LinkCode, normalize.Link{URL: "https://github.com/google-research/bert"}),
		w.AddEvaluationResultLink(pos, 10, LinkModel, normalize.Link{Title: "ckpt", URL: "https://models.example/bert"}),
		w.FlushAll(),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d error = %v", i, err)
		}
	}

	checks := []struct {
		query string
		want  int64
	}{
		{"SELECT parent_id FROM evaluation_datasets WHERE name = 'SQuAD dev'", 1},
		{"SELECT COUNT(*) FROM evaluation_dataset_links WHERE kind = 'link'", 1},
		{"SELECT COUNT(*) FROM evaluation_dataset_links WHERE kind = 'citation' AND url = ''", 1},
		{"SELECT COUNT(*) FROM evaluation_metrics WHERE result_id = 10", 2},
		{"SELECT COUNT(*) FROM evaluation_result_links WHERE result_id = 10", 2},
		{"SELECT COUNT(*) FROM evaluation_datasets WHERE parent_id IS NULL", 1},
	}
	for _, c := range checks {
		if n := countRows(t, storage, c.query); n != c.want {
			t.Errorf("%s = %d, want %d", c.query, n, c.want)
		}
	}
	if failures := w.Failures(); len(failures) != 0 {
		t.Errorf("unexpected failed batches: %v", failures[0])
	}

	// deleting the parent leaderboard removes everything below it
	if _, err := storage.DB().Exec("DELETE FROM evaluation_datasets WHERE id = 1"); err != nil {
		t.Fatalf("delete leaderboard: %v", err)
	}
	for _, table := range []string{"evaluation_datasets", "evaluation_dataset_links", "evaluation_results", "evaluation_metrics", "evaluation_result_links"} {
		if n := countRows(t, storage, "SELECT COUNT(*) FROM "+table); n != 0 {
			t.Errorf("%s has %d rows after cascade, want 0", table, n)
		}
	}
}

func TestFinalizeHelpers(t *testing.T) {
	storage := newTestStorage(t)
	w := NewWriter(storage, 100)
	writeMethodFixture(t, w)

	if err := w.AddPaper(pos, 1, &normalize.Paper{URL: "https://pwc/paper/a"}); err != nil {
		t.Fatalf("AddPaper() error = %v", err)
	}
	if err := w.AddPaperMethod(pos, 1, 1); err != nil {
		t.Fatalf("AddPaperMethod() error = %v", err)
	}
	if err := w.AddEvaluation(pos, 1, 0, 0, &normalize.Evaluation{Task: "QA"}); err != nil {
		t.Fatalf("AddEvaluation() error = %v", err)
	}
	if err := w.AddEvaluationDataset(pos, 1, 1, 0, &normalize.EvalDataset{Name: "SQuAD"}); err != nil {
		t.Fatalf("AddEvaluationDataset() error = %v", err)
	}
	results := []*normalize.EvalResult{
		{ModelName: "BERT", PaperURL: "https://pwc/paper/a", Metrics: `{"F1":"93.2"}`},
		{ModelName: "Other", PaperURL: "https://pwc/paper/zzz"},
	}
	for i, r := range results {
		if err := w.AddEvaluationResult(pos, int64(i+1), 1, r); err != nil {
			t.Fatalf("AddEvaluationResult() error = %v", err)
		}
	}
	if err := w.FlushAll(); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}

	t.Run("RecountMethodPapers", func(t *testing.T) {
		changed, err := storage.RecountMethodPapers()
		if err != nil {
			t.Fatalf("RecountMethodPapers() error = %v", err)
		}
		if changed != 1 {
			t.Errorf("RecountMethodPapers() changed %d rows, want 1", changed)
		}
		if n := countRows(t, storage, "SELECT num_papers FROM methods WHERE id = 1"); n != 1 {
			t.Errorf("num_papers = %d, want 1", n)
		}
	})

	t.Run("ResolveEvaluationResults", func(t *testing.T) {
		linked, err := storage.ResolveEvaluationResults()
		if err != nil {
			t.Fatalf("ResolveEvaluationResults() error = %v", err)
		}
		if linked != 1 {
			t.Errorf("ResolveEvaluationResults() = %d, want 1", linked)
		}
	})

	t.Run("Indexes", func(t *testing.T) {
		if err := storage.CreateIndexes(); err != nil {
			t.Fatalf("CreateIndexes() error = %v", err)
		}
		names, err := storage.IndexNames()
		if err != nil {
			t.Fatalf("IndexNames() error = %v", err)
		}
		if len(names) != len(indexes) {
			t.Errorf("found %d indexes, want %d", len(names), len(indexes))
		}
		if err := storage.DropIndexes(); err != nil {
			t.Fatalf("DropIndexes() error = %v", err)
		}
		names, _ = storage.IndexNames()
		if len(names) != 0 {
			t.Errorf("found %d indexes after drop, want 0", len(names))
		}
	})

	t.Run("HierarchySummary", func(t *testing.T) {
		areas, err := storage.HierarchySummary()
		if err != nil {
			t.Fatalf("HierarchySummary() error = %v", err)
		}
		if len(areas) != 2 {
			t.Fatalf("HierarchySummary() returned %d areas, want 2", len(areas))
		}
		nlp := areas[1]
		if nlp.Slug != hierarchy.NaturalLanguageProcessing.Slug || nlp.Methods != 2 {
			t.Errorf("NLP summary = %+v", nlp)
		}
		if len(nlp.Categories) != 1 || nlp.Categories[0].Name != "Transformers" || nlp.Categories[0].Methods != 2 {
			t.Errorf("NLP categories = %+v", nlp.Categories)
		}
		if len(areas[0].Categories) != 0 {
			t.Errorf("General categories = %+v, want none", areas[0].Categories)
		}
	})

	t.Run("MethodAreas", func(t *testing.T) {
		names, err := storage.MethodAreas(1)
		if err != nil {
			t.Fatalf("MethodAreas() error = %v", err)
		}
		if len(names) != 1 || names[0] != hierarchy.NaturalLanguageProcessing.Name {
			t.Errorf("MethodAreas(1) = %v", names)
		}
	})

	t.Run("Analyze", func(t *testing.T) {
		if err := storage.Analyze(); err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if size, err := storage.FileSize(); err != nil || size <= 0 {
			t.Errorf("FileSize() = %d, %v", size, err)
		}
	})
}

func TestDeleteMethodsCascades(t *testing.T) {
	storage := newTestStorage(t)
	w := NewWriter(storage, 100)
	writeMethodFixture(t, w)
	if err := w.AddPaper(pos, 1, &normalize.Paper{URL: "https://pwc/paper/a"}); err != nil {
		t.Fatalf("AddPaper() error = %v", err)
	}
	if err := w.AddPaperMethod(pos, 1, 2); err != nil {
		t.Fatalf("AddPaperMethod() error = %v", err)
	}
	if err := w.FlushAll(); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}

	var seen []string
	if err := storage.EachMethodText(func(m MethodText) { seen = append(seen, m.Name) }); err != nil {
		t.Fatalf("EachMethodText() error = %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("EachMethodText() saw %v", seen)
	}

	deleted, err := storage.DeleteMethods([]int64{2})
	if err != nil {
		t.Fatalf("DeleteMethods() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteMethods() = %d, want 1", deleted)
	}
	if n := countRows(t, storage, "SELECT COUNT(*) FROM paper_methods"); n != 0 {
		t.Errorf("paper_methods has %d rows after delete, want 0", n)
	}
	if n := countRows(t, storage, "SELECT COUNT(*) FROM method_categories_rel WHERE method_id = 2"); n != 0 {
		t.Errorf("method_categories_rel still has rows for method 2")
	}

	if n, err := storage.DeleteDatasets(nil); err != nil || n != 0 {
		t.Errorf("DeleteDatasets(nil) = %d, %v", n, err)
	}
}

func TestResetData(t *testing.T) {
	storage := newTestStorage(t)
	writeMethodFixture(t, NewWriter(storage, 100))

	if err := storage.ResetData(); err != nil {
		t.Fatalf("ResetData() error = %v", err)
	}
	counts, err := storage.TableCounts()
	if err != nil {
		t.Fatalf("TableCounts() error = %v", err)
	}
	for _, c := range counts {
		if c.Rows != 0 {
			t.Errorf("%s has %d rows after reset", c.Table, c.Rows)
		}
	}
}

func TestRecordRun(t *testing.T) {
	storage := newTestStorage(t)

	last, err := storage.LastRun()
	if err != nil || last != nil {
		t.Fatalf("LastRun() on empty store = %v, %v", last, err)
	}

	started := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	run := RunRecord{RunID: "run-1", StartedAt: started, Status: "running"}
	if err := storage.RecordRun(run); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	run.Status = "completed"
	run.FinishedAt = started.Add(time.Minute)
	run.Summary = `{"ok":true}`
	if err := storage.RecordRun(run); err != nil {
		t.Fatalf("RecordRun() update error = %v", err)
	}

	last, err = storage.LastRun()
	if err != nil {
		t.Fatalf("LastRun() error = %v", err)
	}
	if last.RunID != "run-1" || last.Status != "completed" || last.Summary != `{"ok":true}` {
		t.Errorf("LastRun() = %+v", last)
	}
	if !last.FinishedAt.Equal(run.FinishedAt) {
		t.Errorf("FinishedAt = %v, want %v", last.FinishedAt, run.FinishedAt)
	}

	bad := RunRecord{RunID: "run-2", StartedAt: started, Status: "bogus"}
	if err := storage.RecordRun(bad); err == nil {
		t.Error("RecordRun() accepted an invalid status")
	}
}

func TestIsBatchLevel(t *testing.T) {
	if isBatchLevel(errors.New("disk I/O error")) {
		t.Error("plain error classified as batch-level")
	}
	err := storageError("write papers batch", errors.New("boom"))
	if !errors.Is(err, ErrStorage) {
		t.Errorf("storageError() does not wrap ErrStorage: %v", err)
	}
}
