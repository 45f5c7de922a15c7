// Package normalize converts raw dump records into canonical rows.
// Each source collection has its own raw variant type and its own
// normalization method; malformed records come back as *RejectError.
package normalize

import (
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/masahif/pwcdb/internal/parser"
)

// Collection kinds, also used as the source names in summaries
const (
	KindPaper      = "papers"
	KindMethod     = "methods"
	KindDataset    = "datasets"
	KindEvaluation = "evaluations"
	KindCodeLink   = "code_links"
)

// Normalizer turns raw records into canonical rows
type Normalizer struct {
	// Now is the clock used for the date window
	Now  func() time.Time
	text *parser.TextParser
}

// New creates a Normalizer using the wall clock
func New() *Normalizer {
	return &Normalizer{
		Now:  time.Now,
		text: parser.NewTextParser(),
	}
}

// DecodePaper decodes and normalizes one papers record
func (n *Normalizer) DecodePaper(raw []byte) (*Paper, error) {
	var r RawPaper
	if err := decode(KindPaper, raw, &r); err != nil {
		return nil, err
	}
	return n.Paper(&r)
}

// Paper normalizes a raw paper
func (n *Normalizer) Paper(r *RawPaper) (*Paper, error) {
	url := r.PaperURL.String()
	if url == "" {
		url = r.URL.String()
	}
	if url == "" {
		return nil, &RejectError{Kind: KindPaper, Reason: ReasonMissingURL}
	}

	now := n.Now()
	p := &Paper{
		URL:              url,
		ArxivID:          r.ArxivID.String(),
		NipsID:           r.NipsID.String(),
		OpenReviewID:     r.OpenReviewID.String(),
		Title:            parser.CollapseSpace(string(r.Title)),
		Abstract:         n.text.Text(string(r.Abstract)),
		ShortAbstract:    n.text.Text(string(r.ShortAbstract)),
		URLAbs:           r.URLAbs.String(),
		URLPDF:           r.URLPDF.String(),
		Proceeding:       r.Proceeding.String(),
		Date:             SanitizeDate(string(r.Date), now),
		ConferenceURLAbs: r.ConferenceURLAbs.String(),
		ConferenceURLPDF: r.ConferenceURLPDF.String(),
		Conference:       r.Conference.String(),
		ReproducesPaper:  r.ReproducesPaper.String(),
		Authors:          dedupe(r.Authors),
		Tasks:            dedupe(r.Tasks),
	}

	for i := range r.Methods {
		ref := n.methodRef(&r.Methods[i], now)
		if ref.URL == "" && ref.Name == "" && ref.FullName == "" {
			continue
		}
		p.Methods = append(p.Methods, ref)
	}

	return p, nil
}

func (n *Normalizer) methodRef(r *RawMethodRef, now time.Time) MethodRef {
	ref := MethodRef{
		URL:      r.URL.String(),
		Name:     parser.CollapseSpace(string(r.Name)),
		FullName: parser.CollapseSpace(string(r.FullName)),
	}
	if ref.URL == "" {
		return ref
	}

	m := &Method{
		URL:            ref.URL,
		Name:           ref.Name,
		FullName:       ref.FullName,
		Description:    parser.CollapseSpace(string(r.Description)),
		IntroducedYear: sanitizeYear(r.IntroducedYear, now),
		SourceURL:      r.SourceURL.String(),
		SourceTitle:    r.SourceTitle.String(),
		CodeSnippetURL: r.CodeSnippetURL.String(),
	}
	if lbl := r.MainCollection.Label; lbl.Name != "" {
		m.Labels = []Label{lbl}
	}
	ref.Method = m
	return ref
}

// DecodeMethod decodes and normalizes one methods record
func (n *Normalizer) DecodeMethod(raw []byte) (*Method, error) {
	var r RawMethod
	if err := decode(KindMethod, raw, &r); err != nil {
		return nil, err
	}
	return n.Method(&r)
}

// Method normalizes a raw method. Labels from `collections` and
// `categories` are merged, first occurrence of a name wins.
func (n *Normalizer) Method(r *RawMethod) (*Method, error) {
	url := r.URL.String()
	if url == "" {
		return nil, &RejectError{Kind: KindMethod, Reason: ReasonMissingURL}
	}

	m := &Method{
		URL:            url,
		Name:           parser.CollapseSpace(string(r.Name)),
		FullName:       parser.CollapseSpace(string(r.FullName)),
		Description:    parser.CollapseSpace(string(r.Description)),
		IntroducedYear: sanitizeYear(r.IntroducedYear, n.Now()),
		SourceURL:      r.SourceURL.String(),
		SourceTitle:    r.SourceTitle.String(),
		CodeSnippetURL: r.CodeSnippetURL.String(),
	}
	if r.NumPapers.Valid && r.NumPapers.Value > 0 {
		m.NumPapers = r.NumPapers.Value
	}
	if r.Paper != nil {
		m.PaperTitle = parser.CollapseSpace(string(r.Paper.Title))
		m.PaperArxivID = r.Paper.ArxivID.String()
		m.PaperURLAbs = r.Paper.URLAbs.String()
		m.PaperURLPDF = r.Paper.URLPDF.String()
		m.PaperURL = r.Paper.URL.String()
	}

	seen := make(map[string]bool)
	for _, labels := range []LabelList{r.Collections, r.Categories} {
		for _, lbl := range labels {
			lbl.Name = parser.CollapseSpace(lbl.Name)
			if lbl.Name == "" || seen[lbl.Name] {
				continue
			}
			seen[lbl.Name] = true
			m.Labels = append(m.Labels, lbl)
		}
	}

	return m, nil
}

// DecodeDataset decodes and normalizes one datasets record
func (n *Normalizer) DecodeDataset(raw []byte) (*Dataset, error) {
	var r RawDataset
	if err := decode(KindDataset, raw, &r); err != nil {
		return nil, err
	}
	return n.Dataset(&r)
}

// Dataset normalizes a raw dataset
func (n *Normalizer) Dataset(r *RawDataset) (*Dataset, error) {
	url := r.URL.String()
	if url == "" {
		return nil, &RejectError{Kind: KindDataset, Reason: ReasonMissingURL}
	}

	return &Dataset{
		URL:              url,
		Name:             parser.CollapseSpace(string(r.Name)),
		FullName:         parser.CollapseSpace(string(r.FullName)),
		Homepage:         r.Homepage.String(),
		Description:      n.text.Text(string(r.Description)),
		ShortDescription: n.text.Text(string(r.ShortDescription)),
		ParentDataset:    r.ParentDataset.String(),
		Image:            r.Image.String(),
	}, nil
}

// DecodeEvaluation decodes and normalizes one evaluation-tables record
func (n *Normalizer) DecodeEvaluation(raw []byte) (*Evaluation, error) {
	var r RawEvaluation
	if err := decode(KindEvaluation, raw, &r); err != nil {
		return nil, err
	}
	return n.Evaluation(&r)
}

// Evaluation normalizes a raw evaluation table. Subtasks without a task
// name are dropped; the parent is kept.
func (n *Normalizer) Evaluation(r *RawEvaluation) (*Evaluation, error) {
	task := parser.CollapseSpace(string(r.Task))
	if task == "" {
		return nil, &RejectError{Kind: KindEvaluation, Reason: ReasonMissingTask}
	}

	now := n.Now()
	e := &Evaluation{
		Task:        task,
		Description: n.text.Text(string(r.Description)),
		SourceLink:  r.SourceLink.String(),
		Categories:  dedupe(r.Categories),
	}

	for i := range r.Subtasks {
		sub, err := n.Evaluation(&r.Subtasks[i])
		if err != nil {
			continue
		}
		e.Subtasks = append(e.Subtasks, *sub)
	}

	for i := range r.Datasets {
		if ds, ok := n.evalDataset(&r.Datasets[i], now); ok {
			e.Datasets = append(e.Datasets, ds)
		}
	}

	return e, nil
}

// evalDataset normalizes one leaderboard and its subdatasets. A
// leaderboard without a name is dropped together with its rows.
func (n *Normalizer) evalDataset(rd *RawEvalDataset, now time.Time) (EvalDataset, bool) {
	name := parser.CollapseSpace(string(rd.Dataset))
	if name == "" {
		return EvalDataset{}, false
	}
	ds := EvalDataset{
		Name:        name,
		Description: n.text.Text(string(rd.Description)),
		Links:       dedupeLinks(rd.DatasetLinks),
		Citations:   dedupeLinks(rd.DatasetCitations),
	}
	for _, row := range rd.Sota.Rows {
		ds.Results = append(ds.Results, EvalResult{
			PaperURL:           row.PaperURL.String(),
			PaperTitle:         parser.CollapseSpace(string(row.PaperTitle)),
			PaperDate:          SanitizeDate(string(row.PaperDate), now),
			ModelName:          parser.CollapseSpace(string(row.ModelName)),
			UsesAdditionalData: row.UsesAdditionalData.Value,
			Metrics:            encodeMetrics(row.Metrics),
			MetricValues:       metricValues(row.Metrics),
			CodeLinks:          dedupeLinks(row.CodeLinks),
			ModelLinks:         dedupeLinks(row.ModelLinks),
		})
	}
	for i := range rd.Subdatasets {
		if sub, ok := n.evalDataset(&rd.Subdatasets[i], now); ok {
			ds.Subdatasets = append(ds.Subdatasets, sub)
		}
	}
	return ds, true
}

// DecodeCodeLink decodes and normalizes one code-links record
func (n *Normalizer) DecodeCodeLink(raw []byte) (*CodeLink, error) {
	var r RawCodeLink
	if err := decode(KindCodeLink, raw, &r); err != nil {
		return nil, err
	}
	return n.CodeLink(&r)
}

// CodeLink normalizes a raw code link. A link needs a repository URL
// and at least one paper identifier.
func (n *Normalizer) CodeLink(r *RawCodeLink) (*CodeLink, error) {
	c := &CodeLink{
		PaperURL:         r.PaperURL.String(),
		PaperTitle:       parser.CollapseSpace(string(r.PaperTitle)),
		PaperArxivID:     r.PaperArxivID.String(),
		PaperURLAbs:      r.PaperURLAbs.String(),
		PaperURLPDF:      r.PaperURLPDF.String(),
		RepoURL:          r.RepoURL.String(),
		IsOfficial:       sql.NullBool{Bool: r.IsOfficial.Value, Valid: r.IsOfficial.Valid},
		MentionedInPaper: sql.NullBool{Bool: r.MentionedInPaper.Value, Valid: r.MentionedInPaper.Valid},
		Framework:        r.Framework.String(),
	}
	if c.RepoURL == "" {
		return nil, &RejectError{Kind: KindCodeLink, Reason: ReasonMissingRepo}
	}
	if c.PaperRef() == "" {
		return nil, &RejectError{Kind: KindCodeLink, Reason: ReasonMissingPaperRef}
	}
	return c, nil
}

func sanitizeYear(v FlexInt, now time.Time) sql.NullInt64 {
	if !v.Valid {
		return sql.NullInt64{}
	}
	year, ok := SanitizeYear(v.Value, now)
	return sql.NullInt64{Int64: year, Valid: ok}
}

// dedupe drops repeated names while keeping first-seen order.
func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = parser.CollapseSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// metricValues lists leaderboard metrics by name. Blank names are
// dropped.
func metricValues(metrics map[string]FlexString) []Metric {
	if len(metrics) == 0 {
		return nil
	}
	out := make([]Metric, 0, len(metrics))
	for k, v := range metrics {
		name := strings.TrimSpace(k)
		if name == "" {
			continue
		}
		out = append(out, Metric{Name: name, Value: v.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// dedupeLinks drops repeated links while keeping first-seen order
func dedupeLinks(links LinkList) []Link {
	if len(links) == 0 {
		return nil
	}
	seen := make(map[Link]bool, len(links))
	out := make([]Link, 0, len(links))
	for _, l := range links {
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// encodeMetrics renders leaderboard metrics as a JSON object. Map keys
// are marshaled in sorted order.
func encodeMetrics(metrics map[string]FlexString) string {
	if len(metrics) == 0 {
		return ""
	}
	clean := make(map[string]string, len(metrics))
	for k, v := range metrics {
		clean[k] = v.String()
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return ""
	}
	return string(b)
}
