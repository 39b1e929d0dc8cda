package intake

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/router"
	"github.com/joseph-ayodele/finance-intake/internal/statement"
)

// importStatement books a parsed statement, or parks it for a manual
// column mapping.
func (s *Service) importStatement(ctx context.Context, j *job, parsed *statement.Result) {
	doc := j.doc
	if parsed.RequiresMapping() {
		md := map[string]any{
			"reason":    parsed.Reason,
			"format":    parsed.Format,
			"encoding":  parsed.Encoding,
			"separator": parsed.Separator,
			"columns":   parsed.Columns,
			"header":    parsed.Header,
		}
		if parsed.Suggested != nil {
			md["suggested_mapping"] = *parsed.Suggested
		}
		doc.DestinationRef = nil
		doc.ExpiresAt = nil
		doc.ReviewReason = router.ReasonColumnMapping
		s.transition(doc, constants.StateNeedsReview, router.ReasonColumnMapping, md)
		s.logger.Info("intake.statement.requires_mapping", "doc_id", doc.ID, "reason", parsed.Reason)
		s.commit(ctx, j)
		return
	}

	match := s.matchStatementAccount(ctx, doc, parsed)
	doc.Match = &match

	if s.stale(j) {
		s.logger.Info("intake.result.discarded", "doc_id", doc.ID, "state", doc.State)
		return
	}
	decision, err := s.router.RouteStatement(ctx, router.StatementInput{
		DocumentID:  doc.ID,
		Filename:    doc.Filename,
		ContentHash: doc.Fingerprint.FileHash,
		AccountID:   match.EntityID,
		Parsed:      parsed,
	})
	if err != nil {
		s.fail(ctx, j, fmt.Sprintf("import statement: %v", err))
		return
	}

	if b := decision.Batch; b != nil {
		if !decision.Reused {
			s.metrics.StatementRows(b.Counts.Imported, b.Counts.Duplicated, b.Counts.Skipped, b.Counts.Errored)
		}
		doc.AppendLog(s.now(), "statement_imported", "statement imported", map[string]any{
			"batch_id":   b.ID,
			"bank":       b.Bank,
			"total":      b.Counts.Total,
			"imported":   b.Counts.Imported,
			"duplicated": b.Counts.Duplicated,
			"skipped":    b.Counts.Skipped,
			"errored":    b.Counts.Errored,
			"reused":     decision.Reused,
		})
	}
	s.applyDecision(doc, decision)
	s.commit(ctx, j)
}

func (s *Service) matchStatementAccount(ctx context.Context, doc *entity.IntakeDocument, parsed *statement.Result) entity.MatchResult {
	identifier := parsed.IBAN
	if identifier == "" {
		identifier = parsed.AccountNumber
	}
	if identifier == "" || s.catalog == nil {
		return entity.NoMatch()
	}
	accounts, err := s.catalog.ListAccounts(ctx)
	if err != nil {
		s.logger.Warn("intake.catalog.accounts_failed", "doc_id", doc.ID, "error", err)
		return entity.NoMatch()
	}
	return s.matcher.MatchAccount(identifier, accounts)
}

// Remap re-parses a statement parked for review with a reviewer supplied
// column mapping and imports it.
func (s *Service) Remap(ctx context.Context, id string, mapping entity.ColumnMapping) (*entity.IntakeDocument, error) {
	j, err := s.checkout(id, constants.StateNeedsReview)
	if err != nil {
		return nil, err
	}
	defer s.release(j)

	doc := j.doc
	if doc.Classification.Subtype != constants.SubtypeBankStatement {
		return nil, common.InvalidStatef("document %s is not a bank statement", id)
	}
	content, err := s.blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("load file: %w", err)
	}
	parsed, err := s.parser.ParseWithMapping(doc.Filename, content, mapping)
	if err != nil {
		return nil, fmt.Errorf("parse statement: %w", err)
	}
	if parsed.RequiresMapping() {
		return nil, common.InvalidInputf("column mapping rejected: %s", parsed.Reason)
	}

	doc.AppendLog(s.now(), "mapping_applied", "manual column mapping applied", map[string]any{"mapping": mapping})
	s.importStatement(ctx, j, parsed)
	return s.Get(ctx, id)
}
