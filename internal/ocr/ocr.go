// Package ocr talks to the external OCR collaborator that turns document
// bytes into text and typed fields.
package ocr

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
)

// Error classes. Intake parks ErrTimeout, fails ErrPermanent right away and
// retries everything else.
var (
	ErrTransient = errors.New("ocr transient failure")
	ErrPermanent = errors.New("ocr permanent failure")
	ErrTimeout   = errors.New("ocr timeout")
)

// Request is one document to extract.
type Request struct {
	DocumentID   string
	Filename     string
	MimeType     string
	DeclaredType constants.DocType
	Content      []byte
}

// Response is a finished OCR job.
type Response struct {
	JobID           string                 `json:"job_id"`
	Status          constants.OCRStatus    `json:"status"`
	Text            string                 `json:"text,omitempty"`
	Fields          entity.ExtractedFields `json:"fields"`
	FieldConfidence map[string]float64     `json:"field_confidence,omitempty"`
	Error           string                 `json:"error,omitempty"`
	// Dropped lists what sanitizing removed or renamed.
	Dropped []string `json:"-"`
}

// Client extracts fields from a document. Implementations return errors
// wrapping one of the error classes above.
type Client interface {
	Extract(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

func (f ClientFunc) Extract(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// IsTimeout reports whether err means the OCR call ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsTransient reports whether err may succeed on retry. Errors outside the
// timeout and permanent classes count as transient.
func IsTransient(err error) bool {
	return err != nil && !IsTimeout(err) && !errors.Is(err, ErrPermanent)
}
