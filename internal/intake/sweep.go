package intake

import (
	"context"
	"time"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
)

// Sweep purges classified_ok documents whose expiration is strictly before
// now. Documents being processed are left alone. Returns how many went.
func (s *Service) Sweep(ctx context.Context) int {
	now := s.now()

	var purged []*entity.IntakeDocument
	s.mu.Lock()
	for id, doc := range s.docs {
		if doc.State != constants.StateClassifiedOK || doc.ExpiresAt == nil || !doc.ExpiresAt.Before(now) || s.inFlight[id] {
			continue
		}
		if s.documents != nil {
			if err := s.documents.Delete(ctx, id); err != nil {
				s.logger.Error("intake.purge.failed", "doc_id", id, "error", err)
				continue
			}
		}
		delete(s.docs, id)
		delete(s.versions, id)
		purged = append(purged, doc)
	}
	s.mu.Unlock()

	for _, doc := range purged {
		if err := s.blobs.Delete(ctx, doc.BlobKey); err != nil {
			s.logger.Warn("intake.blob.delete_failed", "doc_id", doc.ID, "error", err)
		}
		s.logger.Info("intake.document.purged", "doc_id", doc.ID, "expired_at", doc.ExpiresAt)
	}
	s.metrics.Purged(len(purged))
	return len(purged)
}

func (s *Service) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				s.logger.Info("intake.sweep.done", "purged", n)
			}
		}
	}
}
