// Package loader drives a load run: it streams every source through the
// normalizer, the interner and the hierarchy builder into the batched
// writer, then finalizes the store and reports a summary.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/masahif/pwcdb/internal/config"
	"github.com/masahif/pwcdb/internal/hierarchy"
	"github.com/masahif/pwcdb/internal/intern"
	"github.com/masahif/pwcdb/internal/metrics"
	"github.com/masahif/pwcdb/internal/normalize"
	"github.com/masahif/pwcdb/internal/source"
	"github.com/masahif/pwcdb/internal/storage"
)

// Loader runs one load. It owns the interner, the hierarchy builder and
// the writer for the duration of Run; none of them outlive it.
type Loader struct {
	config  *config.LoadConfig
	opener  *source.Opener
	metrics *metrics.Metrics

	// Now is the run clock, shared with the normalizer's date window
	Now func() time.Time

	// per-run state, set up by Run
	store       *storage.SQLiteStorage
	writer      *storage.Writer
	interner    *intern.Interner
	builder     *hierarchy.Builder
	normalizer  *normalize.Normalizer
	methodNames map[string]int64 // lower-cased name or full name -> method id
	codeLinks   map[string]struct{}
	summary     *Summary
}

// New creates a Loader
func New(cfg *config.LoadConfig, opener *source.Opener) *Loader {
	if opener == nil {
		opener = &source.Opener{}
	}
	return &Loader{
		config:  cfg,
		opener:  opener,
		metrics: metrics.New(),
		Now:     time.Now,
	}
}

// Metrics returns the run metrics
func (l *Loader) Metrics() *metrics.Metrics {
	return l.metrics
}

// Run performs the load. The returned summary is never nil once the
// store has been opened, even when an error is returned. Cancelling ctx
// stops the run between records; rows already read are still written.
func (l *Loader) Run(ctx context.Context) (*Summary, error) {
	started := l.Now()
	l.summary = &Summary{
		RunID:     uuid.NewString(),
		Status:    StatusRunning,
		StartedAt: started,
		Interner:  make(map[string]intern.Counts),
	}
	log := slog.With("run_id", l.summary.RunID)
	log.Info("Starting load", "database", l.config.DatabasePath, "batch_size", l.config.BatchSize)

	sources, err := Preflight(ctx, l.config, l.opener)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(l.config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close database", "error", err)
		}
	}()
	l.store = store

	if err := l.record(StatusRunning); err != nil {
		return l.summary, err
	}

	runErr := l.load(ctx, sources)

	status := StatusCompleted
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = StatusCancelled
	default:
		status = StatusFailed
	}

	if status == StatusFailed {
		// Leave the store queryable
		if err := l.store.CreateIndexes(); err != nil {
			log.Error("Failed to recreate indexes after failed load", "error", err)
		}
	} else if err := l.finalize(status == StatusCompleted); err != nil {
		runErr = errors.Join(runErr, err)
		status = StatusFailed
	}

	finished := l.Now()
	l.summary.Status = status
	l.summary.FinishedAt = finished
	l.summary.Duration = finished.Sub(started)
	l.collect()

	if err := l.record(status); err != nil {
		log.Error("Failed to record run", "error", err)
	}

	l.metrics.Finish(l.summary.Duration, status == StatusCompleted, finished)
	if path := l.config.MetricsTextfile; path != "" {
		if err := l.metrics.WriteTextfile(path); err != nil {
			log.Error("Failed to write metrics", "path", path, "error", err)
		}
	}

	l.summary.Log()
	return l.summary, runErr
}

// load sets up the per-run state and streams every source
func (l *Loader) load(ctx context.Context, sources []Source) error {
	if l.config.DropExisting {
		slog.Warn("Deleting all existing rows", "database", l.config.DatabasePath)
		if err := l.store.ResetData(); err != nil {
			return err
		}
	}

	// indexes are rebuilt once after the bulk load
	if err := l.store.DropIndexes(); err != nil {
		return err
	}

	l.interner = intern.New()
	if err := l.store.Preload(l.interner); err != nil {
		return err
	}
	l.builder = hierarchy.NewBuilder(l.interner, hierarchy.NewClassifier())
	if err := l.store.CategoryBindings(l.builder.Bind); err != nil {
		return err
	}
	l.methodNames = make(map[string]int64)
	if err := l.store.MethodNames(l.rememberMethodName); err != nil {
		return err
	}
	l.codeLinks = make(map[string]struct{})

	l.normalizer = normalize.New()
	l.normalizer.Now = l.Now

	l.writer = storage.NewWriter(l.store, l.config.BatchSize)
	l.writer.SetObserver(l.metrics)

	for _, row := range l.builder.AreaRows() {
		if err := l.writer.AddArea(storage.Position{Source: "areas"}, row); err != nil {
			return err
		}
	}

	for _, src := range sources {
		if err := l.loadSource(ctx, src); err != nil {
			// rows already buffered are still written
			if flushErr := l.writer.FlushAll(); flushErr != nil {
				return errors.Join(err, flushErr)
			}
			return err
		}
	}

	return l.writer.FlushAll()
}

// loadSource streams one source. A stream that breaks off (a syntax
// error the decoder cannot skip) is logged and recorded; the run goes on
// with the next source. Storage failures and cancellation are returned.
func (l *Loader) loadSource(ctx context.Context, src Source) error {
	st := &SourceStats{
		Name:     src.Name,
		Location: src.Location.String(),
		Size:     src.Size,
		Rejected: make(map[string]int64),
	}
	l.summary.Sources = append(l.summary.Sources, st)
	start := l.Now()
	defer func() { st.Duration = l.Now().Sub(start) }()

	log := slog.With("source", src.Name, "run_id", l.summary.RunID)
	log.Info("Loading source", "location", src.Location.String())

	stream, err := l.opener.Open(ctx, src.Location)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		st.Error = err.Error()
		st.UnreadBytes = src.Size
		log.Error("Failed to open source", "error", err)
		return nil
	}
	defer stream.Close()

	handle := l.handlerFor(src.Name)
	reader := source.NewArrayReader(stream)
	progress := rate.Sometimes{Every: l.config.ProgressEvery, Interval: l.config.ProgressInterval}
	fileName := src.Location.Name()

	for {
		if err := ctx.Err(); err != nil {
			log.Warn("Load cancelled", "read", st.Read)
			return err
		}

		rec, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			st.Error = err.Error()
			st.Rejected[normalize.ReasonMalformed]++
			st.UnreadBytes = unreadBytes(src.Size, stream, reader)
			l.metrics.RecordRejected(src.Name, normalize.ReasonMalformed)
			log.Error("Source stream ended early",
				"offset", reader.Count(),
				"unread", humanize.Bytes(uint64(st.UnreadBytes)),
				"size", humanize.Bytes(uint64(src.Size)),
				"error", err)
			break
		}

		st.Read++
		l.metrics.RecordRead(src.Name)

		pos := storage.Position{Source: fileName, Offset: rec.Offset}
		if err := handle(pos, rec.Raw, st); err != nil {
			var reject *normalize.RejectError
			if errors.As(err, &reject) {
				st.Rejected[reject.Reason]++
				l.metrics.RecordRejected(src.Name, reject.Reason)
				log.Debug("Record rejected", "offset", rec.Offset, "reason", reject.Reason)
				continue
			}
			return err
		}

		progress.Do(func() {
			elapsed := l.Now().Sub(start).Seconds()
			rps := 0.0
			if elapsed > 0 {
				rps = float64(st.Read) / elapsed
			}
			log.Info("Load progress",
				"read", humanize.Comma(st.Read),
				"rejected", humanize.Comma(st.RejectedTotal()),
				"duplicates", humanize.Comma(st.Duplicates),
				"bytes", humanize.Bytes(uint64(reader.BytesRead())),
				"records_per_sec", humanize.FormatFloat("#,###.", rps))
		})
	}

	log.Info("Source loaded",
		"read", humanize.Comma(st.Read),
		"loaded", humanize.Comma(st.Loaded),
		"rejected", humanize.Comma(st.RejectedTotal()),
		"duplicates", humanize.Comma(st.Duplicates))
	return nil
}

// unreadBytes estimates how much of a source was never reached. Plain
// input is measured at the decoder; gzip input at the compressed stream,
// which includes the decoder's read-ahead.
func unreadBytes(size int64, stream *source.Stream, reader *source.ArrayReader) int64 {
	consumed := reader.BytesRead()
	if stream.Compressed {
		consumed = stream.StoredOffset()
	}
	return max(size-consumed, 0)
}

type recordHandler func(pos storage.Position, raw []byte, st *SourceStats) error

func (l *Loader) handlerFor(name string) recordHandler {
	switch name {
	case config.SourceMethods:
		return l.loadMethod
	case config.SourceDatasets:
		return l.loadDataset
	case config.SourcePapers:
		return l.loadPaper
	case config.SourceEvaluations:
		return l.loadEvaluation
	case config.SourceCodeLinks:
		return l.loadCodeLink
	}
	panic("loader: no handler for source " + name)
}

func (l *Loader) loadMethod(pos storage.Position, raw []byte, st *SourceStats) error {
	m, err := l.normalizer.DecodeMethod(raw)
	if err != nil {
		return err
	}
	id, first := l.interner.Claim(intern.Method, m.URL)
	if !first {
		st.Duplicates++
		l.metrics.RecordDuplicate(st.Name)
		return nil
	}
	if err := l.writeMethod(pos, id, m); err != nil {
		return err
	}
	st.Loaded++
	return nil
}

// writeMethod emits a method row with its categories and links
func (l *Loader) writeMethod(pos storage.Position, id int64, m *normalize.Method) error {
	if err := l.writer.AddMethod(pos, id, m); err != nil {
		return err
	}
	l.rememberMethodName(id, m.Name, m.FullName)

	assignment := l.builder.Assign(id, m.Labels)
	for _, c := range assignment.NewCategories {
		if err := l.writer.AddCategory(pos, c); err != nil {
			return err
		}
	}
	for _, link := range assignment.Links {
		if err := l.writer.AddMethodCategory(pos, link); err != nil {
			return err
		}
	}
	return nil
}

// rememberMethodName indexes a method by its names; the first method to
// use a name keeps it.
func (l *Loader) rememberMethodName(id int64, name, fullName string) {
	for _, n := range []string{name, fullName} {
		key := strings.ToLower(n)
		if key == "" {
			continue
		}
		if _, ok := l.methodNames[key]; !ok {
			l.methodNames[key] = id
		}
	}
}

func (l *Loader) loadDataset(pos storage.Position, raw []byte, st *SourceStats) error {
	d, err := l.normalizer.DecodeDataset(raw)
	if err != nil {
		return err
	}
	id, first := l.interner.Claim(intern.Dataset, d.URL)
	if !first {
		st.Duplicates++
		l.metrics.RecordDuplicate(st.Name)
		return nil
	}
	if err := l.writer.AddDataset(pos, id, d); err != nil {
		return err
	}
	st.Loaded++
	return nil
}

// loadPaper writes a paper with its authors, tasks and methods. A paper
// URL seen earlier in the run is skipped entirely, relationships
// included, so the first record for a paper defines it.
func (l *Loader) loadPaper(pos storage.Position, raw []byte, st *SourceStats) error {
	p, err := l.normalizer.DecodePaper(raw)
	if err != nil {
		return err
	}
	paperID, first := l.interner.Claim(intern.Paper, p.URL)
	if !first {
		st.Duplicates++
		l.metrics.RecordDuplicate(st.Name)
		return nil
	}
	if err := l.writer.AddPaper(pos, paperID, p); err != nil {
		return err
	}

	for i, name := range p.Authors {
		authorID, created := l.interner.Intern(intern.Author, name)
		if created {
			if err := l.writer.AddAuthor(pos, authorID, name); err != nil {
				return err
			}
		}
		if err := l.writer.AddPaperAuthor(pos, paperID, authorID, i); err != nil {
			return err
		}
	}

	for _, name := range p.Tasks {
		taskID, err := l.internTask(pos, name)
		if err != nil {
			return err
		}
		if err := l.writer.AddPaperTask(pos, paperID, taskID); err != nil {
			return err
		}
	}

	linked := make(map[int64]bool, len(p.Methods))
	for i := range p.Methods {
		methodID, ok, err := l.resolveMethod(pos, &p.Methods[i], st)
		if err != nil {
			return err
		}
		if !ok {
			st.UnresolvedMethods++
			continue
		}
		if linked[methodID] {
			continue
		}
		linked[methodID] = true
		if err := l.writer.AddPaperMethod(pos, paperID, methodID); err != nil {
			return err
		}
	}

	st.Loaded++
	return nil
}

// resolveMethod finds the method a paper refers to: by URL, then by
// name or full name, then by creating it from the embedded record.
func (l *Loader) resolveMethod(pos storage.Position, ref *normalize.MethodRef, st *SourceStats) (int64, bool, error) {
	if ref.URL != "" {
		if id, ok := l.interner.Lookup(intern.Method, ref.URL); ok {
			return id, true, nil
		}
	}
	for _, n := range []string{ref.Name, ref.FullName} {
		if id, ok := l.methodNames[strings.ToLower(n)]; ok && n != "" {
			return id, true, nil
		}
	}
	if ref.Method == nil {
		return 0, false, nil
	}

	id, first := l.interner.Claim(intern.Method, ref.Method.URL)
	if first {
		if err := l.writeMethod(pos, id, ref.Method); err != nil {
			return 0, false, err
		}
		st.EmbeddedMethods++
	}
	return id, true, nil
}

func (l *Loader) internTask(pos storage.Position, name string) (int64, error) {
	id, created := l.interner.Intern(intern.Task, name)
	if created {
		if err := l.writer.AddTask(pos, id, name); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (l *Loader) loadEvaluation(pos storage.Position, raw []byte, st *SourceStats) error {
	e, err := l.normalizer.DecodeEvaluation(raw)
	if err != nil {
		return err
	}
	written, err := l.writeEvaluation(pos, e, 0, st)
	if err != nil {
		return err
	}
	if written {
		st.Loaded++
	}
	return nil
}

// writeEvaluation emits an evaluation table and, recursively, its
// subtasks. It reports false when the task was already loaded this run.
func (l *Loader) writeEvaluation(pos storage.Position, e *normalize.Evaluation, parentID int64, st *SourceStats) (bool, error) {
	id, first := l.interner.Claim(intern.Evaluation, e.Task)
	if !first {
		st.Duplicates++
		l.metrics.RecordDuplicate(st.Name)
		return false, nil
	}

	taskID, err := l.internTask(pos, e.Task)
	if err != nil {
		return false, err
	}
	if err := l.writer.AddEvaluation(pos, id, taskID, parentID, e); err != nil {
		return false, err
	}

	for _, name := range e.Categories {
		catID, created := l.interner.Intern(intern.EvalCategory, name)
		if created {
			if err := l.writer.AddEvaluationCategory(pos, catID, name); err != nil {
				return false, err
			}
		}
		if err := l.writer.AddEvaluationCategoryRel(pos, id, catID); err != nil {
			return false, err
		}
	}

	for i := range e.Datasets {
		if err := l.writeLeaderboard(pos, id, 0, &e.Datasets[i]); err != nil {
			return false, err
		}
	}

	for i := range e.Subtasks {
		if _, err := l.writeEvaluation(pos, &e.Subtasks[i], id, st); err != nil {
			return false, err
		}
	}
	return true, nil
}

// writeLeaderboard emits one leaderboard with its links, rows and
// subdatasets.
func (l *Loader) writeLeaderboard(pos storage.Position, evaluationID, parentID int64, ds *normalize.EvalDataset) error {
	dsID, _ := l.interner.Intern(intern.EvalDataset, intern.EvalDatasetKey(evaluationID, ds.Name))
	if err := l.writer.AddEvaluationDataset(pos, dsID, evaluationID, parentID, ds); err != nil {
		return err
	}
	for _, link := range ds.Links {
		if err := l.writer.AddEvaluationDatasetLink(pos, dsID, storage.LinkDataset, link); err != nil {
			return err
		}
	}
	for _, link := range ds.Citations {
		if err := l.writer.AddEvaluationDatasetLink(pos, dsID, storage.LinkCitation, link); err != nil {
			return err
		}
	}

	for i := range ds.Results {
		r := &ds.Results[i]
		resultID, _ := l.interner.Intern(intern.EvalResult, intern.EvalResultKey(dsID, r.ModelName, r.PaperURL))
		if err := l.writer.AddEvaluationResult(pos, resultID, dsID, r); err != nil {
			return err
		}
		for _, m := range r.MetricValues {
			if err := l.writer.AddEvaluationMetric(pos, resultID, m); err != nil {
				return err
			}
		}
		for _, link := range r.CodeLinks {
			if err := l.writer.AddEvaluationResultLink(pos, resultID, storage.LinkCode, link); err != nil {
				return err
			}
		}
		for _, link := range r.ModelLinks {
			if err := l.writer.AddEvaluationResultLink(pos, resultID, storage.LinkModel, link); err != nil {
				return err
			}
		}
	}

	for i := range ds.Subdatasets {
		if err := l.writeLeaderboard(pos, evaluationID, dsID, &ds.Subdatasets[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) loadCodeLink(pos storage.Position, raw []byte, st *SourceStats) error {
	c, err := l.normalizer.DecodeCodeLink(raw)
	if err != nil {
		return err
	}
	key := c.PaperRef() + "\x00" + c.RepoURL
	if _, seen := l.codeLinks[key]; seen {
		st.Duplicates++
		l.metrics.RecordDuplicate(st.Name)
		return nil
	}
	l.codeLinks[key] = struct{}{}

	if err := l.writer.AddCodeLink(pos, c); err != nil {
		return err
	}
	st.Loaded++
	return nil
}

// finalize builds indexes and, for a complete run, resolves the
// cross-source joins. A cancelled run only gets its indexes back.
func (l *Loader) finalize(complete bool) error {
	if err := l.store.CreateIndexes(); err != nil {
		return err
	}
	if !complete {
		return nil
	}

	links, err := l.store.ResolveCodeLinks()
	if err != nil {
		return err
	}
	l.summary.CodeLinks = links

	if l.summary.EvaluationResultsLinked, err = l.store.ResolveEvaluationResults(); err != nil {
		return err
	}

	if l.config.RecountMethodPapers {
		if l.summary.MethodsRecounted, err = l.store.RecountMethodPapers(); err != nil {
			return err
		}
	}

	if err := l.store.Analyze(); err != nil {
		return err
	}

	areas, err := l.store.HierarchySummary()
	if err != nil {
		return err
	}
	l.summary.Areas = areas
	return nil
}

// collect copies the per-run counters into the summary
func (l *Loader) collect() {
	if l.writer != nil {
		l.summary.Tables = l.writer.Stats()
		l.summary.Failures = len(l.writer.Failures())
	}
	if l.interner != nil {
		for _, k := range intern.Kinds() {
			l.summary.Interner[k.String()] = l.interner.Counts(k)
		}
	}
	if l.builder != nil {
		l.summary.Hierarchy = HierarchyStats{
			Classified:  l.builder.Classified,
			FromSource:  l.builder.FromSource,
			Conflicting: l.builder.Conflicting,
		}
	}

	counts, err := l.store.TableCounts()
	if err != nil {
		slog.Error("Failed to count tables", "error", err)
	} else {
		l.summary.Counts = counts
		for _, c := range counts {
			l.metrics.SetTableRows(c.Table, c.Rows)
		}
	}
	if size, err := l.store.FileSize(); err == nil {
		l.summary.DatabaseSize = size
	}
}

// record upserts the load_runs row for this run
func (l *Loader) record(status string) error {
	run := storage.RunRecord{
		RunID:     l.summary.RunID,
		StartedAt: l.summary.StartedAt,
		Status:    status,
	}
	if status != StatusRunning {
		run.FinishedAt = l.summary.FinishedAt
		run.Summary = l.summary.JSON()
	}
	return l.store.RecordRun(run)
}
