package normalize

import "database/sql"

// Canonical rows produced by the Normalizer. Empty strings stand for
// NULL; the storage layer converts them on write.

// Paper is a normalized paper record
type Paper struct {
	URL              string // natural key
	ArxivID          string
	NipsID           string
	OpenReviewID     string
	Title            string
	Abstract         string
	ShortAbstract    string
	URLAbs           string
	URLPDF           string
	Proceeding       string
	Date             string // YYYY-MM-DD or empty
	ConferenceURLAbs string
	ConferenceURLPDF string
	Conference       string
	ReproducesPaper  string
	Authors          []string // in author order
	Tasks            []string
	Methods          []MethodRef
}

// MethodRef is a paper's reference to a method. Method is set when the
// reference carries enough data to create the method row itself.
type MethodRef struct {
	URL      string
	Name     string
	FullName string
	Method   *Method
}

// Method is a normalized method record
type Method struct {
	URL            string // natural key
	Name           string
	FullName       string
	Description    string
	IntroducedYear sql.NullInt64
	NumPapers      int64
	PaperTitle     string
	PaperArxivID   string
	PaperURLAbs    string
	PaperURLPDF    string
	PaperURL       string
	SourceURL      string
	SourceTitle    string
	CodeSnippetURL string
	Labels         []Label // category labels, deduplicated by name
}

// Dataset is a normalized dataset record
type Dataset struct {
	URL              string // natural key
	Name             string
	FullName         string
	Homepage         string
	Description      string
	ShortDescription string
	ParentDataset    string
	Image            string
}

// Evaluation is a normalized evaluation-table entry
type Evaluation struct {
	Task        string // natural key
	Description string
	SourceLink  string
	Categories  []string
	Subtasks    []Evaluation
	Datasets    []EvalDataset
}

// EvalDataset is one leaderboard of an evaluation
type EvalDataset struct {
	Name        string
	Description string
	Links       []Link
	Citations   []Link
	Results     []EvalResult
	Subdatasets []EvalDataset
}

// EvalResult is one leaderboard row
type EvalResult struct {
	PaperURL           string
	PaperTitle         string
	PaperDate          string
	ModelName          string
	UsesAdditionalData bool
	Metrics            string   // JSON object, keys sorted
	MetricValues       []Metric // same values, sorted by name
	CodeLinks          []Link
	ModelLinks         []Link
}

// Metric is one named leaderboard value, kept as text
type Metric struct {
	Name  string
	Value string
}

// Link is a titled URL
type Link struct {
	Title string
	URL   string
}

// CodeLink is a normalized paper to repository link
type CodeLink struct {
	PaperURL         string
	PaperTitle       string
	PaperArxivID     string
	PaperURLAbs      string
	PaperURLPDF      string
	RepoURL          string
	IsOfficial       sql.NullBool
	MentionedInPaper sql.NullBool
	Framework        string
}

// PaperRef returns the identifier the link is keyed by: the paper title
// when present, otherwise the paper URL, otherwise the arXiv id.
func (c *CodeLink) PaperRef() string {
	for _, ref := range []string{c.PaperTitle, c.PaperURL, c.PaperArxivID} {
		if ref != "" {
			return ref
		}
	}
	return ""
}
