package ingest

import (
	"context"
	"time"

	"github.com/joseph-ayodele/finance-intake/internal/intake"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	DocumentID   string
	Deduplicated bool
	HashHex      string
	FileExt      string
	SubmittedAt  time.Time
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Submitter accepts files into the intake pipeline. *intake.Service satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req intake.SubmitRequest) (intake.SubmitResult, error)
}

// Ingestor is the behavior the binaries depend on.
type Ingestor interface {
	// IngestPath submits a single file.
	IngestPath(ctx context.Context, path string) (IngestionResult, error)
	// IngestDirectory submits all matching files under root.
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}
