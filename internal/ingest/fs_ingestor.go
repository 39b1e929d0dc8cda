package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/intake"
)

// FSIngestor reads files from the local filesystem and submits them.
type FSIngestor struct {
	submitter Submitter
	source    constants.Source
	logger    *slog.Logger
}

var _ Ingestor = (*FSIngestor)(nil)

func NewFSIngestor(s Submitter, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{submitter: s, source: constants.SourceUpload, logger: logger}
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	var out IngestionResult

	abs, err := filepath.Abs(path)
	if err != nil {
		i.logger.Error("ingest.abs_path.failed", "path", path, "error", err)
		return out, err
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !constants.IsAllowedExt(ext) {
		i.logger.Warn("ingest.extension.unsupported", "path", abs, "ext", ext)
		return out, fmt.Errorf("unsupported or missing extension %q", ext)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		i.logger.Error("ingest.read.failed", "path", abs, "error", err)
		return out, err
	}

	res, err := i.submitter.Submit(ctx, intake.SubmitRequest{
		Filename: filepath.Base(abs),
		Source:   i.source,
		Content:  content,
	})
	if err != nil {
		i.logger.Error("ingest.submit.failed", "path", abs, "error", err)
		return out, err
	}

	out = IngestionResult{
		SourcePath:   abs,
		DocumentID:   res.Document.ID,
		Deduplicated: res.Deduplicated,
		HashHex:      res.Document.Fingerprint.FileHash,
		FileExt:      ext,
		SubmittedAt:  res.Document.CreatedAt,
	}
	i.logger.Info("ingest.file.submitted", "path", abs, "doc_id", out.DocumentID, "deduplicated", out.Deduplicated)
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested,
// and calls IngestPath for each file. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !constants.IsAllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}

		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.logger.Info("ingest.directory.done", "root", root,
		"matched", stats.Matched, "succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, nil
}
