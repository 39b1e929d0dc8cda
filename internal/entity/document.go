package entity

import (
	"time"

	"github.com/joseph-ayodele/finance-intake/constants"
)

// IntakeDocument is the unit of work owned by the intake service.
type IntakeDocument struct {
	ID           string                  `json:"id"`
	Source       constants.Source        `json:"source"`
	Filename     string                  `json:"filename"`
	MimeType     string                  `json:"mime_type"`
	Size         int64                   `json:"size"`
	DeclaredType constants.DocType       `json:"declared_type"`
	BlobKey      string                  `json:"blob_key"`
	State        constants.DocumentState `json:"state"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
	ExpiresAt    *time.Time              `json:"expires_at,omitempty"`
	ErrorMessage *string                 `json:"error_message,omitempty"`
	ReviewReason string                  `json:"review_reason,omitempty"`

	OCR            OCRRecord       `json:"ocr"`
	Classification Classification  `json:"classification"`
	Fingerprint    Fingerprint     `json:"fingerprint"`
	Match          *MatchResult    `json:"match,omitempty"`
	DestinationRef *DestinationRef `json:"destination_ref,omitempty"`
	Logs           []LogEntry      `json:"logs"`
}

// OCRRecord holds what the OCR collaborator returned and how it scored.
type OCRRecord struct {
	JobID            string              `json:"job_id,omitempty"`
	Status           constants.OCRStatus `json:"status,omitempty"`
	Text             string              `json:"text,omitempty"`
	Fields           ExtractedFields     `json:"fields"`
	FieldConfidence  map[string]float64  `json:"field_confidence,omitempty"`
	GlobalConfidence float64             `json:"global_confidence"`
	Tier             string              `json:"tier,omitempty"`
	Missing          []string            `json:"missing,omitempty"`
	Warnings         []string            `json:"warnings,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// Classification is the classifier verdict.
type Classification struct {
	DocType    constants.DocType `json:"doc_type"`
	Subtype    constants.Subtype `json:"subtype"`
	Confidence float64           `json:"confidence"`
	Keywords   []string          `json:"keywords,omitempty"`
}

// Fingerprint identifies the logical business document.
type Fingerprint struct {
	FileHash       string     `json:"file_hash"`
	DocFingerprint string     `json:"doc_fingerprint,omitempty"`
	Revision       int        `json:"revision"`
	ComputedFor    int        `json:"computed_for"`
	ComputedAt     *time.Time `json:"computed_at,omitempty"`
}

// Computed reports whether the fingerprint belongs to the current revision.
func (f Fingerprint) Computed() bool {
	return f.DocFingerprint != "" && f.ComputedFor == f.Revision
}

// DestinationKind names the ledger record a document ended up in.
type DestinationKind string

const (
	DestinationExpense     DestinationKind = "expense"
	DestinationMovement    DestinationKind = "movement"
	DestinationImportBatch DestinationKind = "import_batch"
)

// DestinationRef points at the ledger entry created from a document.
type DestinationRef struct {
	Kind DestinationKind `json:"kind"`
	ID   string          `json:"id"`
	Path string          `json:"path"`
}

// LogEntry is one line of a document audit trail.
type LogEntry struct {
	At       time.Time      `json:"at"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AppendLog records an audit line. Existing entries are never touched.
func (d *IntakeDocument) AppendLog(at time.Time, code, message string, metadata map[string]any) {
	d.Logs = append(d.Logs, LogEntry{At: at, Code: code, Message: message, Metadata: metadata})
}

// Clone returns a deep copy safe to mutate outside the index lock.
func (d *IntakeDocument) Clone() *IntakeDocument {
	if d == nil {
		return nil
	}
	c := *d
	if d.ExpiresAt != nil {
		t := *d.ExpiresAt
		c.ExpiresAt = &t
	}
	if d.ErrorMessage != nil {
		s := *d.ErrorMessage
		c.ErrorMessage = &s
	}
	c.OCR.Fields = d.OCR.Fields.Clone()
	if d.OCR.FieldConfidence != nil {
		c.OCR.FieldConfidence = make(map[string]float64, len(d.OCR.FieldConfidence))
		for k, v := range d.OCR.FieldConfidence {
			c.OCR.FieldConfidence[k] = v
		}
	}
	c.OCR.Missing = append([]string(nil), d.OCR.Missing...)
	c.OCR.Warnings = append([]string(nil), d.OCR.Warnings...)
	c.Classification.Keywords = append([]string(nil), d.Classification.Keywords...)
	if d.Fingerprint.ComputedAt != nil {
		t := *d.Fingerprint.ComputedAt
		c.Fingerprint.ComputedAt = &t
	}
	if d.Match != nil {
		m := *d.Match
		c.Match = &m
	}
	if d.DestinationRef != nil {
		r := *d.DestinationRef
		c.DestinationRef = &r
	}
	c.Logs = append([]LogEntry(nil), d.Logs...)
	return &c
}
