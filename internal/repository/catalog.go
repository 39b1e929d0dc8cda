package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/finance-intake/internal/entity"
	"github.com/joseph-ayodele/finance-intake/internal/store"
)

// CatalogRepository holds the properties and accounts documents are matched against.
type CatalogRepository interface {
	SaveProperty(ctx context.Context, p entity.Property) (string, error)
	ListProperties(ctx context.Context) ([]entity.Property, error)
	SaveAccount(ctx context.Context, a entity.Account) (string, error)
	ListAccounts(ctx context.Context) ([]entity.Account, error)
}

type catalogRepository struct {
	store  store.ObjectStore
	logger *slog.Logger
}

func NewCatalogRepository(s store.ObjectStore, logger *slog.Logger) CatalogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &catalogRepository{store: s, logger: logger}
}

func (r *catalogRepository) SaveProperty(ctx context.Context, p entity.Property) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := store.Save(ctx, r.store, store.CollectionProperties, p.ID, p, nil); err != nil {
		r.logger.Error("failed to save property", "property_id", p.ID, "error", err)
		return "", err
	}
	return p.ID, nil
}

func (r *catalogRepository) ListProperties(ctx context.Context) ([]entity.Property, error) {
	return store.LoadAll[entity.Property](ctx, r.store, store.CollectionProperties)
}

func (r *catalogRepository) SaveAccount(ctx context.Context, a entity.Account) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := store.Save(ctx, r.store, store.CollectionAccounts, a.ID, a, nil); err != nil {
		r.logger.Error("failed to save account", "account_id", a.ID, "error", err)
		return "", err
	}
	return a.ID, nil
}

func (r *catalogRepository) ListAccounts(ctx context.Context) ([]entity.Account, error) {
	return store.LoadAll[entity.Account](ctx, r.store, store.CollectionAccounts)
}
