package intake

import (
	"context"
	"slices"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
)

// job is a private working copy of one document.
type job struct {
	doc     *entity.IntakeDocument
	version uint64
	// seen is how many index log entries the copy already holds.
	seen int
}

// checkout marks id in flight and hands out a copy, provided the document
// is in one of states.
func (s *Service) checkout(id string, states ...constants.DocumentState) (*job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, common.NotFoundf("document %s", id)
	}
	if s.inFlight[id] {
		return nil, common.InvalidStatef("document %s is being processed", id)
	}
	if !slices.Contains(states, doc.State) {
		return nil, common.InvalidStatef("document %s is %s", id, doc.State)
	}
	s.inFlight[id] = true
	return &job{doc: doc.Clone(), version: s.versions[id], seen: len(doc.Logs)}, nil
}

// release ends a checkout. A document reset while checked out is queued
// again so the reset is not lost.
func (s *Service) release(j *job) {
	s.mu.Lock()
	delete(s.inFlight, j.doc.ID)
	cur, ok := s.docs[j.doc.ID]
	requeue := ok && cur.State == constants.StateReceived && s.versions[j.doc.ID] != j.version
	s.mu.Unlock()
	if requeue {
		s.enqueue(j.doc.ID, constants.PriorityHigh, 0)
	}
}

// stale reports whether the document was reset or removed since checkout.
// Ledger writes are skipped for stale jobs.
func (s *Service) stale(j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[j.doc.ID]
	return !ok || s.versions[j.doc.ID] != j.version
}

// commit stores the working copy back into the index unless the document
// was reset or removed since checkout. Log lines and revision bumps added
// to the index copy in the meantime are carried over.
func (s *Service) commit(ctx context.Context, j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[j.doc.ID]
	if !ok || s.versions[j.doc.ID] != j.version {
		s.logger.Info("intake.result.discarded", "doc_id", j.doc.ID, "state", j.doc.State)
		return false
	}
	if len(cur.Logs) > j.seen {
		j.doc.Logs = append(j.doc.Logs, cur.Logs[j.seen:]...)
	}
	if cur.Fingerprint.Revision > j.doc.Fingerprint.Revision {
		j.doc.Fingerprint.Revision = cur.Fingerprint.Revision
	}
	j.seen = len(j.doc.Logs)

	next := j.doc.Clone()
	if err := s.persist(ctx, next); err != nil {
		s.logger.Error("intake.persist.failed", "doc_id", next.ID, "state", next.State, "error", err)
	}
	s.docs[next.ID] = next
	return true
}
