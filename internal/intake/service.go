package intake

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/fingerprint"
	"github.com/joseph-ayodele/finance-intake/internal/router"
)

// SubmitRequest is a new file entering the pipeline.
type SubmitRequest struct {
	Filename     string
	MimeType     string
	DeclaredType constants.DocType
	Source       constants.Source
	Content      []byte
}

// SubmitResult reports the stored document. Deduplicated is true when the
// bytes matched an active document, which absorbed the submission.
type SubmitResult struct {
	Document     *entity.IntakeDocument
	Deduplicated bool
}

// Submit stores the file, creates a received document and queues it.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	v := common.NewValidator().
		Field("filename", req.Filename, common.Required, common.AllowedFile, common.MaxLength(255)).
		Field("content", req.Content, common.Required).
		Field("source", string(req.Source), common.OneOf(string(constants.SourceUpload), string(constants.SourceEmail)))
	if err := v.Error(); err != nil {
		return SubmitResult{}, err
	}

	filename := filepath.Base(req.Filename)
	source := req.Source
	if source == "" {
		source = constants.SourceUpload
	}
	declared := req.DeclaredType
	if declared == "" {
		declared = constants.DocTypeUnknown
	}
	mime := req.MimeType
	if mime == "" {
		mime = constants.MIMEForExt(filepath.Ext(filename))
	}
	hash := fingerprint.FileHash(req.Content)

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	if doc, err := s.mergeSubmission(ctx, hash, filename); err != nil || doc != nil {
		return SubmitResult{Document: doc, Deduplicated: doc != nil}, err
	}

	id := uuid.NewString()
	key := path.Join("documents", id, filename)
	if err := s.blobs.Put(ctx, key, req.Content, mime); err != nil {
		return SubmitResult{}, fmt.Errorf("store file %s: %w", filename, err)
	}

	now := s.now()
	doc := &entity.IntakeDocument{
		ID:           id,
		Source:       source,
		Filename:     filename,
		MimeType:     mime,
		Size:         int64(len(req.Content)),
		DeclaredType: declared,
		BlobKey:      key,
		CreatedAt:    now,
		Fingerprint:  entity.Fingerprint{FileHash: hash, Revision: 1},
	}
	s.transition(doc, constants.StateReceived, "document received", map[string]any{
		"source": string(source),
		"size":   doc.Size,
	})

	s.mu.Lock()
	if err := s.persist(ctx, doc); err != nil {
		s.mu.Unlock()
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn("intake.blob.cleanup_failed", "doc_id", id, "error", derr)
		}
		return SubmitResult{}, fmt.Errorf("save document: %w", err)
	}
	s.docs[id] = doc
	out := doc.Clone()
	s.mu.Unlock()

	s.enqueue(id, constants.PriorityNormal, 0)
	s.logger.Info("intake.document.received", "doc_id", id, "filename", filename, "source", source, "size", doc.Size)
	return SubmitResult{Document: out}, nil
}

// mergeSubmission folds a resubmitted file into the oldest active document
// holding the same bytes. Returns nil when there is none.
func (s *Service) mergeSubmission(ctx context.Context, hash, filename string) (*entity.IntakeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *entity.IntakeDocument
	for _, doc := range s.docs {
		if doc.Fingerprint.FileHash != hash || doc.State.Terminal() {
			continue
		}
		if target == nil || older(doc, target) {
			target = doc
		}
	}
	if target == nil {
		return nil, nil
	}

	target.Fingerprint.Revision++
	target.UpdatedAt = s.now()
	target.AppendLog(target.UpdatedAt, "duplicate_submission", "same file submitted again", map[string]any{
		"filename": filename,
		"revision": target.Fingerprint.Revision,
	})
	if err := s.persist(ctx, target); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	s.metrics.Deduplicated("file_hash")
	s.logger.Info("intake.document.deduplicated", "doc_id", target.ID, "filename", filename, "revision", target.Fingerprint.Revision)
	return target.Clone(), nil
}

// Get returns a copy of the document.
func (s *Service) Get(_ context.Context, id string) (*entity.IntakeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, common.NotFoundf("document %s", id)
	}
	return doc.Clone(), nil
}

// List returns copies of the documents in the given states, oldest first.
// No states means all of them.
func (s *Service) List(_ context.Context, states ...constants.DocumentState) []*entity.IntakeDocument {
	want := make(map[constants.DocumentState]bool, len(states))
	for _, st := range states {
		want[st] = true
	}

	s.mu.Lock()
	out := make([]*entity.IntakeDocument, 0, len(s.docs))
	for _, doc := range s.docs {
		if len(want) == 0 || want[doc.State] {
			out = append(out, doc.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return older(out[i], out[j]) })
	return out
}

// Reprocess resets a document to received and queues it ahead of normal work.
func (s *Service) Reprocess(ctx context.Context, id string) (*entity.IntakeDocument, error) {
	s.mu.Lock()
	doc, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		return nil, common.NotFoundf("document %s", id)
	}
	if doc.State == constants.StateArchived {
		s.mu.Unlock()
		return nil, common.InvalidStatef("document %s is archived", id)
	}

	previous := doc.State
	doc.Fingerprint.Revision++
	doc.Fingerprint.DocFingerprint = ""
	doc.Fingerprint.ComputedFor = 0
	doc.Fingerprint.ComputedAt = nil
	doc.ErrorMessage = nil
	doc.DestinationRef = nil
	doc.ReviewReason = ""
	doc.ExpiresAt = nil
	doc.Match = nil
	doc.OCR = entity.OCRRecord{}
	doc.Classification = entity.Classification{}
	s.versions[id]++
	s.transition(doc, constants.StateReceived, "reprocess requested", map[string]any{
		"previous_state": string(previous),
		"revision":       doc.Fingerprint.Revision,
	})
	err := s.persist(ctx, doc)
	out := doc.Clone()
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	s.queue.remove(id)
	s.enqueue(id, constants.PriorityHigh, 0)
	s.logger.Info("intake.document.reprocess", "doc_id", id, "previous_state", previous, "revision", out.Fingerprint.Revision)
	return out, nil
}

// Delete removes a non-archived document and its file. Ledger entries it
// produced are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	doc, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		return common.NotFoundf("document %s", id)
	}
	if doc.State == constants.StateArchived {
		s.mu.Unlock()
		return common.InvalidStatef("document %s is archived", id)
	}
	if s.documents != nil {
		if err := s.documents.Delete(ctx, id); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("delete document: %w", err)
		}
	}
	delete(s.docs, id)
	delete(s.versions, id)
	s.mu.Unlock()

	s.queue.remove(id)
	if err := s.blobs.Delete(ctx, doc.BlobKey); err != nil {
		s.logger.Warn("intake.blob.delete_failed", "doc_id", id, "key", doc.BlobKey, "error", err)
	}
	s.metrics.StateEntered(string(constants.StateDeleted))
	s.metrics.QueueDepth(s.queue.len())
	s.logger.Info("intake.document.deleted", "doc_id", id, "previous_state", doc.State)
	return nil
}

// Archive retains a classified document permanently.
func (s *Service) Archive(ctx context.Context, id string) (*entity.IntakeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, common.NotFoundf("document %s", id)
	}
	if doc.State != constants.StateClassifiedOK || s.inFlight[id] {
		return nil, common.InvalidStatef("document %s is %s, only classified_ok can be archived", id, doc.State)
	}

	next := doc.Clone()
	next.ExpiresAt = nil
	s.transition(next, constants.StateArchived, "archived", nil)
	if err := s.persist(ctx, next); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	s.docs[id] = next
	s.logger.Info("intake.document.archived", "doc_id", id)
	return next.Clone(), nil
}

// Resolve completes a review by booking the reviewer's decision and
// archiving the document.
func (s *Service) Resolve(ctx context.Context, id string, res router.Resolution) (*entity.IntakeDocument, error) {
	j, err := s.checkout(id, constants.StateNeedsReview)
	if err != nil {
		return nil, err
	}
	defer s.release(j)

	decision, err := s.router.Commit(ctx, router.InputFromDocument(j.doc), res)
	if err != nil {
		return nil, err
	}

	doc := j.doc
	doc.DestinationRef = decision.Destination
	doc.ReviewReason = ""
	doc.ExpiresAt = nil
	s.transition(doc, constants.StateArchived, "resolved manually", destinationMetadata(decision.Destination))
	if !s.commit(ctx, j) {
		s.logger.Warn("intake.resolve.orphaned", "doc_id", id, "destination_id", decision.Destination.ID)
		return nil, common.InvalidStatef("document %s changed while resolving", id)
	}
	s.logger.Info("intake.document.resolved", "doc_id", id, "destination", decision.Destination.Path)
	return doc.Clone(), nil
}

// Recover loads persisted documents into the index and queues the ones
// that were still in the pipeline. Returns how many were queued.
func (s *Service) Recover(ctx context.Context) (int, error) {
	if s.documents == nil {
		return 0, nil
	}
	docs, err := s.documents.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}

	var queued []string
	s.mu.Lock()
	for _, doc := range docs {
		if _, ok := s.docs[doc.ID]; ok {
			continue
		}
		s.docs[doc.ID] = doc
		if !doc.State.Pending() {
			continue
		}
		if doc.State != constants.StateReceived {
			s.transition(doc, constants.StateReceived, "recovered after restart", map[string]any{
				"previous_state": string(doc.State),
			})
			if err := s.persist(ctx, doc); err != nil {
				s.logger.Error("intake.recover.persist_failed", "doc_id", doc.ID, "error", err)
			}
		}
		queued = append(queued, doc.ID)
	}
	s.mu.Unlock()

	for _, id := range queued {
		s.enqueue(id, constants.PriorityNormal, 0)
	}
	s.logger.Info("intake.recovered", "documents", len(docs), "queued", len(queued))
	return len(queued), nil
}

func older(a, b *entity.IntakeDocument) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func destinationMetadata(ref *entity.DestinationRef) map[string]any {
	if ref == nil {
		return nil
	}
	return map[string]any{
		"destination_kind": string(ref.Kind),
		"destination_id":   ref.ID,
		"path":             ref.Path,
	}
}
