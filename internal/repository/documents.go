package repository

import (
	"context"
	"log/slog"
	"sort"

	"github.com/joseph-ayodele/finance-intake/constants"
	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/store"
)

// Document index names.
const (
	indexState          = "state"
	indexFileHash       = "file_hash"
	indexDocFingerprint = "doc_fingerprint"
)

type DocumentRepository interface {
	Save(ctx context.Context, doc *entity.IntakeDocument) error
	Get(ctx context.Context, id string) (*entity.IntakeDocument, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*entity.IntakeDocument, error)
	ListByState(ctx context.Context, state constants.DocumentState) ([]*entity.IntakeDocument, error)
	FindByFileHash(ctx context.Context, hash string) ([]*entity.IntakeDocument, error)
	FindByFingerprint(ctx context.Context, fingerprint string) ([]*entity.IntakeDocument, error)
}

type documentRepository struct {
	store  store.ObjectStore
	logger *slog.Logger
}

func NewDocumentRepository(s store.ObjectStore, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepository{
		store:  s,
		logger: logger,
	}
}

func (r *documentRepository) Save(ctx context.Context, doc *entity.IntakeDocument) error {
	idx := store.Indexes{
		indexState:          string(doc.State),
		indexFileHash:       doc.Fingerprint.FileHash,
		indexDocFingerprint: doc.Fingerprint.DocFingerprint,
	}
	if err := store.Save(ctx, r.store, store.CollectionDocuments, doc.ID, doc, idx); err != nil {
		r.logger.Error("failed to save document", "doc_id", doc.ID, "state", doc.State, "error", err)
		return err
	}
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id string) (*entity.IntakeDocument, error) {
	return store.Load[entity.IntakeDocument](ctx, r.store, store.CollectionDocuments, id)
}

func (r *documentRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, store.CollectionDocuments, id); err != nil {
		r.logger.Error("failed to delete document", "doc_id", id, "error", err)
		return err
	}
	return nil
}

func (r *documentRepository) List(ctx context.Context) ([]*entity.IntakeDocument, error) {
	docs, err := store.LoadAll[entity.IntakeDocument](ctx, r.store, store.CollectionDocuments)
	if err != nil {
		return nil, err
	}
	return byCreation(docs), nil
}

func (r *documentRepository) ListByState(ctx context.Context, state constants.DocumentState) ([]*entity.IntakeDocument, error) {
	return r.query(ctx, indexState, string(state))
}

func (r *documentRepository) FindByFileHash(ctx context.Context, hash string) ([]*entity.IntakeDocument, error) {
	return r.query(ctx, indexFileHash, hash)
}

func (r *documentRepository) FindByFingerprint(ctx context.Context, fingerprint string) ([]*entity.IntakeDocument, error) {
	return r.query(ctx, indexDocFingerprint, fingerprint)
}

func (r *documentRepository) query(ctx context.Context, name, value string) ([]*entity.IntakeDocument, error) {
	docs, err := store.Query[entity.IntakeDocument](ctx, r.store, store.CollectionDocuments, name, value)
	if err != nil {
		r.logger.Error("failed to query documents", "index", name, "error", err)
		return nil, err
	}
	return byCreation(docs), nil
}

// byCreation orders oldest first, id as tie-break.
func byCreation(docs []entity.IntakeDocument) []*entity.IntakeDocument {
	out := make([]*entity.IntakeDocument, len(docs))
	for i := range docs {
		out[i] = &docs[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
