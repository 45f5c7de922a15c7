package normalize

import (
	"bytes"

	"github.com/segmentio/encoding/json"
)

// Raw record variants, one per source collection. Every field is
// optional at this level; required keys are checked by the Normalizer.

// RawPaper is one entry of the papers-with-abstracts dump
type RawPaper struct {
	PaperURL         FlexString     `json:"paper_url"`
	URL              FlexString     `json:"url"`
	ArxivID          FlexString     `json:"arxiv_id"`
	NipsID           FlexString     `json:"nips_id"`
	OpenReviewID     FlexString     `json:"openreview_id"`
	Title            FlexString     `json:"title"`
	Abstract         FlexString     `json:"abstract"`
	ShortAbstract    FlexString     `json:"short_abstract"`
	URLAbs           FlexString     `json:"url_abs"`
	URLPDF           FlexString     `json:"url_pdf"`
	Proceeding       FlexString     `json:"proceeding"`
	Date             FlexString     `json:"date"`
	ConferenceURLAbs FlexString     `json:"conference_url_abs"`
	ConferenceURLPDF FlexString     `json:"conference_url_pdf"`
	Conference       FlexString     `json:"conference"`
	ReproducesPaper  FlexString     `json:"reproduces_paper"`
	Authors          NameList       `json:"authors"`
	Tasks            NameList       `json:"tasks"`
	Methods          []RawMethodRef `json:"methods"`
}

// RawMethodRef is a method as embedded in a paper record
type RawMethodRef struct {
	URL            FlexString     `json:"url"`
	Name           FlexString     `json:"name"`
	FullName       FlexString     `json:"full_name"`
	Description    FlexString     `json:"description"`
	IntroducedYear FlexInt        `json:"introduced_year"`
	SourceURL      FlexString     `json:"source_url"`
	SourceTitle    FlexString     `json:"source_title"`
	CodeSnippetURL FlexString     `json:"code_snippet_url"`
	MainCollection MainCollection `json:"main_collection"`
}

// UnmarshalJSON accepts either a method object or a bare method name.
func (r *RawMethodRef) UnmarshalJSON(b []byte) error {
	*r = RawMethodRef{}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		type plain RawMethodRef
		var p plain
		if err := json.Unmarshal(b, &p); err != nil {
			return err
		}
		*r = RawMethodRef(p)
		return nil
	}
	return r.Name.UnmarshalJSON(b)
}

// RawMethodPaper is the introducing paper attached to a method
type RawMethodPaper struct {
	Title   FlexString `json:"title"`
	ArxivID FlexString `json:"arxiv_id"`
	URLAbs  FlexString `json:"url_abs"`
	URLPDF  FlexString `json:"url_pdf"`
	URL     FlexString `json:"url"`
}

// RawMethod is one entry of the methods dump
type RawMethod struct {
	URL            FlexString      `json:"url"`
	Name           FlexString      `json:"name"`
	FullName       FlexString      `json:"full_name"`
	Description    FlexString      `json:"description"`
	IntroducedYear FlexInt         `json:"introduced_year"`
	NumPapers      FlexInt         `json:"num_papers"`
	SourceURL      FlexString      `json:"source_url"`
	SourceTitle    FlexString      `json:"source_title"`
	CodeSnippetURL FlexString      `json:"code_snippet_url"`
	Paper          *RawMethodPaper `json:"paper"`
	Collections    LabelList       `json:"collections"`
	Categories     LabelList       `json:"categories"`
}

// RawDataset is one entry of the datasets dump
type RawDataset struct {
	URL              FlexString `json:"url"`
	Name             FlexString `json:"name"`
	FullName         FlexString `json:"full_name"`
	Homepage         FlexString `json:"homepage"`
	Description      FlexString `json:"description"`
	ShortDescription FlexString `json:"short_description"`
	ParentDataset    FlexString `json:"parent_dataset"`
	Image            FlexString `json:"image"`
}

// RawEvaluation is one entry of the evaluation-tables dump. Subtasks
// share the same shape.
type RawEvaluation struct {
	Task        FlexString       `json:"task"`
	Description FlexString       `json:"description"`
	SourceLink  FlexString       `json:"source_link"`
	Categories  NameList         `json:"categories"`
	Subtasks    []RawEvaluation  `json:"subtasks"`
	Datasets    []RawEvalDataset `json:"datasets"`
}

// RawEvalDataset is one leaderboard inside an evaluation table.
// Subdatasets share the same shape.
type RawEvalDataset struct {
	Dataset          FlexString       `json:"dataset"`
	Description      FlexString       `json:"description"`
	DatasetLinks     LinkList         `json:"dataset_links"`
	DatasetCitations LinkList         `json:"dataset_citations"`
	Subdatasets      []RawEvalDataset `json:"subdatasets"`
	Sota             struct {
		Rows []RawSotaRow `json:"rows"`
	} `json:"sota"`
}

// RawSotaRow is one leaderboard row
type RawSotaRow struct {
	PaperURL           FlexString            `json:"paper_url"`
	PaperTitle         FlexString            `json:"paper_title"`
	PaperDate          FlexString            `json:"paper_date"`
	ModelName          FlexString            `json:"model_name"`
	UsesAdditionalData FlexBool              `json:"uses_additional_data"`
	Metrics            map[string]FlexString `json:"metrics"`
	CodeLinks          LinkList              `json:"code_links"`
	ModelLinks         LinkList              `json:"model_links"`
}

// RawCodeLink is one entry of the links-between-papers-and-code dump
type RawCodeLink struct {
	PaperURL         FlexString `json:"paper_url"`
	PaperTitle       FlexString `json:"paper_title"`
	PaperArxivID     FlexString `json:"paper_arxiv_id"`
	PaperURLAbs      FlexString `json:"paper_url_abs"`
	PaperURLPDF      FlexString `json:"paper_url_pdf"`
	RepoURL          FlexString `json:"repo_url"`
	IsOfficial       FlexBool   `json:"is_official"`
	MentionedInPaper FlexBool   `json:"mentioned_in_paper"`
	Framework        FlexString `json:"framework"`
}

// decode unmarshals one raw JSON record into v, reporting a malformed
// record as a rejection.
func decode(kind string, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &RejectError{Kind: kind, Reason: ReasonMalformed, Err: err}
	}
	return nil
}
