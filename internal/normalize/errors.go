package normalize

import "fmt"

// Rejection reasons reported in the run summary
const (
	ReasonMalformed       = "malformed_json"
	ReasonMissingURL      = "missing_url"
	ReasonMissingRepo     = "missing_repo_url"
	ReasonMissingPaperRef = "missing_paper_ref"
	ReasonMissingTask     = "missing_task"
)

// RejectError is returned for a record that cannot be normalized. The
// record is skipped and counted; it never aborts a run.
type RejectError struct {
	Kind   string
	Reason string
	Err    error
}

func (e *RejectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s record rejected (%s): %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s record rejected (%s)", e.Kind, e.Reason)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}
