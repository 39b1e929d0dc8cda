package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/statement"
	"github.com/joseph-ayodele/finance-intake/internal/utils"
)

// StatementInput is a parsed tabular statement ready to import.
type StatementInput struct {
	DocumentID  string
	Filename    string
	ContentHash string
	// AccountID is the matched account, empty when none matched.
	AccountID string
	Parsed    *statement.Result
}

// RouteStatement imports a parsed statement as one movement per row under
// an import batch. Importing the same content twice returns the original
// batch without creating movements.
func (r *Router) RouteStatement(ctx context.Context, in StatementInput) (Decision, error) {
	if in.Parsed == nil || in.Parsed.RequiresMapping() {
		return review(ReasonColumnMapping), nil
	}

	if in.ContentHash != "" {
		existing, err := r.batches.FindImportBatch(ctx, in.ContentHash)
		switch {
		case err == nil:
			r.logger.Info("router.statement.already_imported", "batch_id", existing.ID, "doc_id", in.DocumentID)
			return Decision{
				Action:      ActionCommit,
				Destination: batchDestination(*existing),
				Batch:       existing,
				Reused:      true,
			}, nil
		case !errors.Is(err, common.ErrNotFound):
			return Decision{}, fmt.Errorf("find import batch: %w", err)
		}
	}

	p := in.Parsed
	batch := entity.ImportBatch{
		ID:            uuid.NewString(),
		DocumentID:    in.DocumentID,
		Filename:      in.Filename,
		Bank:          p.Bank,
		Format:        p.Format,
		Encoding:      p.Encoding,
		Separator:     p.Separator,
		IBAN:          p.IBAN,
		AccountNumber: p.AccountNumber,
		AccountID:     in.AccountID,
		DateFrom:      p.DateFrom,
		DateTo:        p.DateTo,
		Counts:        p.Counts,
		ContentHash:   in.ContentHash,
		Mapping:       p.Mapping,
		CreatedAt:     r.now().UTC(),
	}

	account := accountRef(in.AccountID, p)
	occurrences := make(map[string]int)
	for _, tx := range p.Transactions {
		base := movementKeyBase(account, tx)
		occurrences[base]++
		key := DedupeKey(base, occurrences[base])

		exists, err := r.batches.MovementExists(ctx, key)
		if err != nil {
			return Decision{}, fmt.Errorf("check movement %s: %w", key, err)
		}
		if exists {
			batch.Counts.Duplicated++
			continue
		}
		mv := entity.Movement{
			AccountID:   in.AccountID,
			Date:        tx.Date,
			Description: tx.Description,
			Amount:      tx.Amount,
			Direction:   tx.Direction,
			Balance:     tx.Balance,
			Currency:    defaultCurrency,
			DedupeKey:   key,
			BatchID:     batch.ID,
			DocumentID:  in.DocumentID,
			CreatedAt:   batch.CreatedAt,
		}
		if _, err := r.ledger.CreateMovement(ctx, mv); err != nil {
			return Decision{}, fmt.Errorf("create movement row %d: %w", tx.Row, err)
		}
		batch.Counts.Imported++
	}

	if _, err := r.batches.CreateImportBatch(ctx, batch); err != nil {
		return Decision{}, fmt.Errorf("create import batch: %w", err)
	}
	r.logger.Info("router.statement.imported",
		"batch_id", batch.ID,
		"doc_id", in.DocumentID,
		"bank", batch.Bank,
		"total", batch.Counts.Total,
		"imported", batch.Counts.Imported,
		"duplicated", batch.Counts.Duplicated,
		"skipped", batch.Counts.Skipped,
		"errored", batch.Counts.Errored,
	)
	return Decision{
		Action:      ActionCommit,
		Destination: batchDestination(batch),
		Batch:       &batch,
	}, nil
}

func batchDestination(b entity.ImportBatch) *entity.DestinationRef {
	bank := b.Bank
	if bank == "" {
		bank = "unknown bank"
	}
	return &entity.DestinationRef{
		Kind: entity.DestinationImportBatch,
		ID:   b.ID,
		Path: path.Join("automatic import", bank, b.ID),
	}
}

func accountRef(accountID string, p *statement.Result) string {
	switch {
	case accountID != "":
		return accountID
	case p.IBAN != "":
		return p.IBAN
	default:
		return p.AccountNumber
	}
}

func movementKeyBase(account string, tx entity.Transaction) string {
	return strings.Join([]string{
		account,
		tx.Date,
		utils.FormatFixed(tx.Amount),
		utils.FoldText(tx.Description),
	}, "|")
}

// DedupeKey identifies the n-th identical row (1-based) for an account, so
// repeated rows inside one statement stay distinct while re-imports collide.
func DedupeKey(base string, occurrence int) string {
	sum := sha256.Sum256([]byte(base + "|" + strconv.Itoa(occurrence)))
	return hex.EncodeToString(sum[:])
}
