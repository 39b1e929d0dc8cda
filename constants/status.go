package constants

// DocumentState is the lifecycle state of an intake document.
type DocumentState string

// Stable values (store these exact strings).
const (
	StateReceived     DocumentState = "received"
	StateOCRRunning   DocumentState = "ocr_running"
	StateOCROK        DocumentState = "ocr_ok"
	StateOCRFailed    DocumentState = "ocr_failed"
	StateOCRTimeout   DocumentState = "ocr_timeout"
	StateClassifiedOK DocumentState = "classified_ok"
	StateNeedsReview  DocumentState = "needs_review"
	StateArchived     DocumentState = "archived"
	StateDeleted      DocumentState = "deleted"
)

var allStates = []DocumentState{
	StateReceived,
	StateOCRRunning,
	StateOCROK,
	StateOCRFailed,
	StateOCRTimeout,
	StateClassifiedOK,
	StateNeedsReview,
	StateArchived,
	StateDeleted,
}

// States returns every lifecycle state in pipeline order.
func States() []DocumentState {
	out := make([]DocumentState, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState reports whether s names a known state.
func ParseState(s string) (DocumentState, bool) {
	for _, st := range allStates {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Pending is true for states still waiting on the worker.
func (s DocumentState) Pending() bool {
	return s == StateReceived || s == StateOCRRunning || s == StateOCROK
}

// Terminal is true once the record can no longer change.
func (s DocumentState) Terminal() bool {
	return s == StateArchived || s == StateDeleted
}

// Priority orders queue tasks.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// Source is where a document came from.
type Source string

const (
	SourceUpload Source = "upload"
	SourceEmail  Source = "email"
)

// OCRStatus mirrors the job status reported by the OCR collaborator.
type OCRStatus string

const (
	OCRStatusQueued    OCRStatus = "queued"
	OCRStatusRunning   OCRStatus = "running"
	OCRStatusSucceeded OCRStatus = "succeeded"
	OCRStatusFailed    OCRStatus = "failed"
	OCRStatusTimeout   OCRStatus = "timeout"
)

// Done is true when the job will not change anymore.
func (s OCRStatus) Done() bool {
	return s == OCRStatusSucceeded || s == OCRStatusFailed || s == OCRStatusTimeout
}
