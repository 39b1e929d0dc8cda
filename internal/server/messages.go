package server

import (
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/router"
)

type SubmitRequest struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type,omitempty"`
	DeclaredType string `json:"declared_type,omitempty"`
	Source       string `json:"source,omitempty"`
	Content      []byte `json:"content"`
}

type SubmitResponse struct {
	Document     *entity.IntakeDocument `json:"document"`
	Deduplicated bool                   `json:"deduplicated"`
}

// DocumentRequest addresses one document by id.
type DocumentRequest struct {
	ID string `json:"id"`
}

type DocumentResponse struct {
	Document *entity.IntakeDocument `json:"document"`
}

// ListRequest filters by state. An empty list returns every document.
type ListRequest struct {
	States []string `json:"states,omitempty"`
}

type ListResponse struct {
	Documents []*entity.IntakeDocument `json:"documents"`
}

type DeleteResponse struct {
	ID string `json:"id"`
}

type ResolveRequest struct {
	ID         string            `json:"id"`
	Resolution router.Resolution `json:"resolution"`
}

type RemapRequest struct {
	ID      string               `json:"id"`
	Mapping entity.ColumnMapping `json:"mapping"`
}
