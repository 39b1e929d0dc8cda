package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/finance-intake/internal/common"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/store"
)

const (
	indexDocumentID  = "document_id"
	indexDedupeKey   = "dedupe_key"
	indexBatchID     = "batch_id"
	indexContentHash = "content_hash"
)

// Ledger persists expenses, treasury movements and import batch audit records.
type Ledger interface {
	CreateExpense(ctx context.Context, e entity.Expense) (string, error)
	CreateMovement(ctx context.Context, m entity.Movement) (string, error)
	ListExpenses(ctx context.Context) ([]entity.Expense, error)
	ListMovements(ctx context.Context) ([]entity.Movement, error)
	ListMovementsByBatch(ctx context.Context, batchID string) ([]entity.Movement, error)
	MovementExists(ctx context.Context, dedupeKey string) (bool, error)

	FindImportBatch(ctx context.Context, contentHash string) (*entity.ImportBatch, error)
	CreateImportBatch(ctx context.Context, b entity.ImportBatch) (string, error)
	ListImportBatches(ctx context.Context) ([]entity.ImportBatch, error)
}

type ledgerRepository struct {
	store  store.ObjectStore
	logger *slog.Logger
}

func NewLedger(s store.ObjectStore, logger *slog.Logger) Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ledgerRepository{store: s, logger: logger}
}

func (r *ledgerRepository) CreateExpense(ctx context.Context, e entity.Expense) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	idx := store.Indexes{indexDocumentID: e.DocumentID}
	if err := store.Save(ctx, r.store, store.CollectionExpenses, e.ID, e, idx); err != nil {
		r.logger.Error("failed to create expense", "doc_id", e.DocumentID, "error", err)
		return "", err
	}
	return e.ID, nil
}

func (r *ledgerRepository) CreateMovement(ctx context.Context, m entity.Movement) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	idx := store.Indexes{
		indexDocumentID: m.DocumentID,
		indexDedupeKey:  m.DedupeKey,
		indexBatchID:    m.BatchID,
	}
	if err := store.Save(ctx, r.store, store.CollectionMovements, m.ID, m, idx); err != nil {
		r.logger.Error("failed to create movement", "doc_id", m.DocumentID, "batch_id", m.BatchID, "error", err)
		return "", err
	}
	return m.ID, nil
}

func (r *ledgerRepository) ListExpenses(ctx context.Context) ([]entity.Expense, error) {
	return store.LoadAll[entity.Expense](ctx, r.store, store.CollectionExpenses)
}

func (r *ledgerRepository) ListMovements(ctx context.Context) ([]entity.Movement, error) {
	return store.LoadAll[entity.Movement](ctx, r.store, store.CollectionMovements)
}

func (r *ledgerRepository) ListMovementsByBatch(ctx context.Context, batchID string) ([]entity.Movement, error) {
	return store.Query[entity.Movement](ctx, r.store, store.CollectionMovements, indexBatchID, batchID)
}

func (r *ledgerRepository) MovementExists(ctx context.Context, dedupeKey string) (bool, error) {
	if dedupeKey == "" {
		return false, nil
	}
	raws, err := r.store.QueryByIndex(ctx, store.CollectionMovements, indexDedupeKey, dedupeKey)
	if err != nil {
		return false, err
	}
	return len(raws) > 0, nil
}

func (r *ledgerRepository) FindImportBatch(ctx context.Context, contentHash string) (*entity.ImportBatch, error) {
	batches, err := store.Query[entity.ImportBatch](ctx, r.store, store.CollectionImportBatches, indexContentHash, contentHash)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, common.NotFoundf("import batch with content hash %s", contentHash)
	}
	return &batches[0], nil
}

func (r *ledgerRepository) CreateImportBatch(ctx context.Context, b entity.ImportBatch) (string, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	idx := store.Indexes{
		indexContentHash: b.ContentHash,
		indexDocumentID:  b.DocumentID,
	}
	if err := store.Save(ctx, r.store, store.CollectionImportBatches, b.ID, b, idx); err != nil {
		r.logger.Error("failed to create import batch", "batch_id", b.ID, "error", err)
		return "", err
	}
	return b.ID, nil
}

func (r *ledgerRepository) ListImportBatches(ctx context.Context) ([]entity.ImportBatch, error) {
	return store.LoadAll[entity.ImportBatch](ctx, r.store, store.CollectionImportBatches)
}
