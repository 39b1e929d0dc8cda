package intake

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/classifier"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/fingerprint"
	"github.com/joseph-ayodele/finance-intake/internal/matcher"
	"github.com/joseph-ayodele/finance-intake/internal/metrics"
	"github.com/joseph-ayodele/finance-intake/internal/ocr"
	"github.com/joseph-ayodele/finance-intake/internal/router"
)

// Run drains the queue and purges expired documents until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.drain(ctx)
		return nil
	})
	g.Go(func() error {
		s.sweepLoop(ctx)
		return nil
	})
	return g.Wait()
}

func (s *Service) drain(ctx context.Context) {
	s.logger.Info("intake.worker.started", "queued", s.queue.len())
	for {
		for ctx.Err() == nil {
			t, ok := s.queue.pop()
			if !ok {
				break
			}
			s.handle(ctx, t)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("intake.worker.stopped", "queued", s.queue.len())
			return
		case <-s.queue.wake:
		}
	}
}

// ProcessPending works the queue until it is empty, retries included, and
// returns how many tasks ran.
func (s *Service) ProcessPending(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		t, ok := s.queue.pop()
		if !ok {
			break
		}
		s.handle(ctx, t)
		n++
	}
	return n
}

func (s *Service) handle(ctx context.Context, t Task) {
	s.metrics.QueueDepth(s.queue.len())
	j, err := s.checkout(t.DocID, constants.StateReceived, constants.StateOCRRunning)
	if err != nil {
		s.logger.Debug("intake.task.skipped", "doc_id", t.DocID, "reason", err)
		return
	}
	defer s.release(j)

	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("intake.worker.panic", "doc_id", t.DocID, "panic", r, "stack", string(debug.Stack()))
			s.fail(ctx, j, fmt.Sprintf("internal error: %v", r))
		}
	}()
	s.process(ctx, j, t)
}

func (s *Service) process(ctx context.Context, j *job, t Task) {
	doc := j.doc
	content, err := s.blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		s.fail(ctx, j, fmt.Sprintf("load file: %v", err))
		return
	}

	if t.Attempt == 0 {
		doc.Classification = classifier.Classify(classifier.FromDocument(doc))
	}

	if classifier.IsTabular(doc.Filename, doc.MimeType) {
		parsed, err := s.parser.Parse(doc.Filename, content)
		if err != nil {
			s.fail(ctx, j, fmt.Sprintf("parse statement: %v", err))
			return
		}
		s.importStatement(ctx, j, parsed)
		return
	}

	resp, ok := s.extract(ctx, j, t, content)
	if !ok {
		return
	}
	s.analyze(ctx, j, resp)
}

// extract makes one OCR call. It returns false when the document was
// parked, failed or queued for retry.
func (s *Service) extract(ctx context.Context, j *job, t Task, content []byte) (*ocr.Response, bool) {
	doc := j.doc
	attempt := t.Attempt + 1
	if doc.State != constants.StateOCRRunning {
		s.transition(doc, constants.StateOCRRunning, "ocr started", map[string]any{"attempt": attempt})
		if !s.commit(ctx, j) {
			return nil, false
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.OCRTimeout)
	started := time.Now()
	resp, err := s.callOCR(callCtx, ocr.Request{
		DocumentID:   doc.ID,
		Filename:     doc.Filename,
		MimeType:     doc.MimeType,
		DeclaredType: doc.DeclaredType,
		Content:      content,
	})
	elapsed := time.Since(started)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !ocr.IsTimeout(err) {
		err = fmt.Errorf("%w: %v", ocr.ErrTimeout, err)
	}
	cancel()
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty response", ocr.ErrPermanent)
	}

	if err != nil {
		s.ocrFailed(ctx, j, t, attempt, elapsed, err)
		return nil, false
	}

	s.metrics.OCRCall(metrics.OCROK, elapsed)
	doc.OCR.JobID = resp.JobID
	doc.OCR.Status = resp.Status
	if doc.OCR.Status == "" {
		doc.OCR.Status = constants.OCRStatusSucceeded
	}
	doc.OCR.Text = resp.Text
	doc.OCR.Fields = resp.Fields
	doc.OCR.Error = ""
	doc.ErrorMessage = nil
	s.transition(doc, constants.StateOCROK, "ocr finished", map[string]any{
		"job_id":  resp.JobID,
		"attempt": attempt,
		"dropped": resp.Dropped,
	})
	s.logger.Info("intake.ocr.ok", "doc_id", doc.ID, "job_id", resp.JobID, "attempt", attempt, "elapsed", elapsed)
	return resp, true
}

type ocrResult struct {
	resp      *ocr.Response
	err       error
	recovered any
}

// callOCR bounds a single Extract call by ctx even when the client ignores
// it. A result arriving after the deadline is dropped.
func (s *Service) callOCR(ctx context.Context, req ocr.Request) (*ocr.Response, error) {
	done := make(chan ocrResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- ocrResult{recovered: r}
			}
		}()
		resp, err := s.ocr.Extract(ctx, req)
		done <- ocrResult{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.recovered != nil {
			panic(r.recovered)
		}
		return r.resp, r.err
	case <-ctx.Done():
		s.logger.Warn("intake.ocr.abandoned", "doc_id", req.DocumentID, "error", ctx.Err())
		return nil, fmt.Errorf("%w: %v", ocr.ErrTimeout, ctx.Err())
	}
}

func (s *Service) ocrFailed(ctx context.Context, j *job, t Task, attempt int, elapsed time.Duration, err error) {
	doc := j.doc
	msg := err.Error()
	doc.OCR.Error = msg

	switch {
	case ocr.IsTimeout(err):
		s.metrics.OCRCall(metrics.OCRTimeout, elapsed)
		doc.OCR.Status = constants.OCRStatusTimeout
		doc.ErrorMessage = &msg
		s.transition(doc, constants.StateOCRTimeout, "ocr timed out", map[string]any{
			"attempt": attempt,
			"timeout": s.cfg.OCRTimeout.String(),
		})
		s.logger.Warn("intake.ocr.timeout", "doc_id", doc.ID, "attempt", attempt, "error", err)

	case shouldRetry(err, attempt, s.cfg.MaxRetries):
		s.metrics.OCRCall(metrics.OCRTransient, elapsed)
		doc.AppendLog(s.now(), "ocr_retry", "transient ocr failure, retrying", map[string]any{
			"attempt": attempt,
			"error":   msg,
		})
		s.logger.Warn("intake.ocr.retry", "doc_id", doc.ID, "attempt", attempt, "error", err)
		if s.commit(ctx, j) {
			s.enqueue(doc.ID, t.Priority, attempt)
		}
		return

	default:
		outcome := metrics.OCRPermanent
		if ocr.IsTransient(err) {
			outcome = metrics.OCRTransient
		}
		s.metrics.OCRCall(outcome, elapsed)
		doc.OCR.Status = constants.OCRStatusFailed
		doc.ErrorMessage = &msg
		s.transition(doc, constants.StateOCRFailed, "ocr failed", map[string]any{
			"attempt": attempt,
			"error":   msg,
		})
		s.logger.Error("intake.ocr.failed", "doc_id", doc.ID, "attempt", attempt, "error", err)
	}
	s.commit(ctx, j)
}

// analyze runs everything after a successful OCR call.
func (s *Service) analyze(ctx context.Context, j *job, resp *ocr.Response) {
	doc := j.doc
	doc.Classification = classifier.Classify(classifier.FromDocument(doc))

	docType := doc.DeclaredType
	if docType == "" || docType == constants.DocTypeUnknown {
		docType = doc.Classification.DocType
	}
	res := s.validator.Validate(docType, doc.OCR.Fields, resp.FieldConfidence)
	doc.OCR.FieldConfidence = res.FieldConfidence
	doc.OCR.GlobalConfidence = res.GlobalConfidence
	doc.OCR.Tier = string(res.Tier)
	doc.OCR.Missing = res.Missing
	doc.OCR.Warnings = res.Warnings
	doc.AppendLog(s.now(), "validated", "fields validated", map[string]any{
		"subtype":           string(doc.Classification.Subtype),
		"tier":              string(res.Tier),
		"global_confidence": res.GlobalConfidence,
		"missing":           res.Missing,
		"warnings":          res.Warnings,
	})

	if merged := s.fingerprint(ctx, j); merged != nil {
		if err := s.blobs.Delete(ctx, doc.BlobKey); err != nil {
			s.logger.Warn("intake.blob.delete_failed", "doc_id", doc.ID, "error", err)
		}
		return
	}

	if !res.IsValid {
		doc.ReviewReason = res.Reason()
		s.transition(doc, constants.StateNeedsReview, res.Reason(), map[string]any{"missing": res.Missing})
		s.commit(ctx, j)
		return
	}

	match := s.match(ctx, doc)
	doc.Match = &match
	if match.Matched() {
		doc.AppendLog(s.now(), "matched", "matched "+match.EntityKind, map[string]any{
			"entity_id":  match.EntityID,
			"method":     string(match.Method),
			"confidence": match.Confidence,
		})
	}

	if s.stale(j) {
		s.logger.Info("intake.result.discarded", "doc_id", doc.ID, "state", doc.State)
		return
	}
	decision, err := s.router.Route(ctx, router.InputFromDocument(doc))
	if err != nil {
		s.fail(ctx, j, fmt.Sprintf("route: %v", err))
		return
	}
	s.applyDecision(doc, decision)
	s.commit(ctx, j)
}

// fingerprint computes the business fingerprint once per revision and
// merges the document into an existing one with the same fingerprint.
// Returns the surviving document when a merge happened. The fingerprint
// covers the file hash and Submit already merges identical bytes, so in
// practice this only fires for duplicates persisted before that check,
// reached again through Recover. It is not a cross-file business-key dedupe.
func (s *Service) fingerprint(ctx context.Context, j *job) *entity.IntakeDocument {
	doc := j.doc
	if !doc.Fingerprint.Computed() {
		fp := fingerprint.ComputeWithFileHash(doc.Fingerprint.FileHash, doc.OCR.Fields)
		now := s.now()
		doc.Fingerprint.DocFingerprint = fp.DocFingerprint
		doc.Fingerprint.ComputedFor = doc.Fingerprint.Revision
		doc.Fingerprint.ComputedAt = &now
		doc.AppendLog(now, "fingerprint", "fingerprint computed", map[string]any{
			"doc_fingerprint": fp.DocFingerprint,
			"revision":        doc.Fingerprint.Revision,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok || s.versions[doc.ID] != j.version {
		return nil
	}

	var target *entity.IntakeDocument
	for id, other := range s.docs {
		if id == doc.ID || s.inFlight[id] || other.State.Terminal() {
			continue
		}
		if other.Fingerprint.DocFingerprint != doc.Fingerprint.DocFingerprint {
			continue
		}
		if target == nil || older(other, target) {
			target = other
		}
	}
	if target == nil {
		return nil
	}

	now := s.now()
	target.Fingerprint.Revision++
	target.UpdatedAt = now
	target.AppendLog(now, "duplicate_merged", "merged duplicate document", map[string]any{
		"merged_doc_id": doc.ID,
		"filename":      doc.Filename,
		"revision":      target.Fingerprint.Revision,
	})
	if err := s.persist(ctx, target); err != nil {
		s.logger.Error("intake.persist.failed", "doc_id", target.ID, "error", err)
	}
	if s.documents != nil {
		if err := s.documents.Delete(ctx, doc.ID); err != nil {
			s.logger.Error("intake.delete.failed", "doc_id", doc.ID, "error", err)
		}
	}
	delete(s.docs, doc.ID)
	delete(s.versions, doc.ID)
	s.queue.remove(doc.ID)
	s.metrics.Deduplicated("fingerprint")
	s.logger.Info("intake.document.merged", "doc_id", doc.ID, "into", target.ID, "revision", target.Fingerprint.Revision)
	return target
}

func (s *Service) match(ctx context.Context, doc *entity.IntakeDocument) entity.MatchResult {
	if s.catalog == nil {
		return entity.NoMatch()
	}
	if doc.Classification.Subtype == constants.SubtypePlainReceipt {
		accounts, err := s.catalog.ListAccounts(ctx)
		if err != nil {
			s.logger.Warn("intake.catalog.accounts_failed", "doc_id", doc.ID, "error", err)
			return entity.NoMatch()
		}
		return s.matcher.MatchAccount(doc.OCR.Fields.AccountMasked, accounts)
	}
	properties, err := s.catalog.ListProperties(ctx)
	if err != nil {
		s.logger.Warn("intake.catalog.properties_failed", "doc_id", doc.ID, "error", err)
		return entity.NoMatch()
	}
	return s.matcher.MatchProperty(matcher.PropertyInput{Fields: doc.OCR.Fields, Text: doc.OCR.Text}, properties)
}

// applyDecision moves doc to classified_ok or needs_review.
func (s *Service) applyDecision(doc *entity.IntakeDocument, d router.Decision) {
	if d.Committed() {
		expires := s.now().Add(s.cfg.Retention)
		doc.DestinationRef = d.Destination
		doc.ExpiresAt = &expires
		doc.ReviewReason = ""
		s.transition(doc, constants.StateClassifiedOK, "routed to "+d.Destination.Path, destinationMetadata(d.Destination))
		s.logger.Info("intake.document.classified", "doc_id", doc.ID, "subtype", doc.Classification.Subtype, "destination", d.Destination.Path)
		return
	}
	doc.DestinationRef = nil
	doc.ExpiresAt = nil
	doc.ReviewReason = d.Reason
	s.transition(doc, constants.StateNeedsReview, d.Reason, map[string]any{"subtype": string(doc.Classification.Subtype)})
	s.logger.Info("intake.document.needs_review", "doc_id", doc.ID, "subtype", doc.Classification.Subtype, "reason", d.Reason)
}

// fail marks the document ocr_failed with msg.
func (s *Service) fail(ctx context.Context, j *job, msg string) {
	doc := j.doc
	doc.ErrorMessage = &msg
	doc.DestinationRef = nil
	doc.ExpiresAt = nil
	s.transition(doc, constants.StateOCRFailed, msg, nil)
	s.logger.Error("intake.document.failed", "doc_id", doc.ID, "error", msg)
	s.commit(ctx, j)
}
