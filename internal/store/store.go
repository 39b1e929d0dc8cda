// Package store is the persistent object store: JSON documents addressed by
// collection and id, with equality indexes for secondary lookups.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collections used by the repositories.
const (
	CollectionDocuments     = "documents"
	CollectionProperties    = "properties"
	CollectionAccounts      = "accounts"
	CollectionExpenses      = "expenses"
	CollectionMovements     = "movements"
	CollectionImportBatches = "import_batches"
)

// Indexes maps index name to value. Empty values are not indexed.
type Indexes map[string]string

// ObjectStore persists opaque payloads. Get returns an error wrapping
// common.ErrNotFound for missing objects; Delete of a missing object is a no-op.
type ObjectStore interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Put(ctx context.Context, collection, id string, payload []byte, idx Indexes) error
	Delete(ctx context.Context, collection, id string) error
	// QueryByIndex returns payloads whose index name equals value, ordered by id.
	QueryByIndex(ctx context.Context, collection, name, value string) ([][]byte, error)
	// List returns every payload in a collection, ordered by id.
	List(ctx context.Context, collection string) ([][]byte, error)
	Close() error
}

// Load decodes one object into T.
func Load[T any](ctx context.Context, s ObjectStore, collection, id string) (*T, error) {
	raw, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return &v, nil
}

// Save encodes v and writes it with its indexes.
func Save(ctx context.Context, s ObjectStore, collection, id string, v any, idx Indexes) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return s.Put(ctx, collection, id, raw, idx)
}

// Query decodes every object matching an index.
func Query[T any](ctx context.Context, s ObjectStore, collection, name, value string) ([]T, error) {
	raws, err := s.QueryByIndex(ctx, collection, name, value)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](collection, raws)
}

// LoadAll decodes a whole collection.
func LoadAll[T any](ctx context.Context, s ObjectStore, collection string) ([]T, error) {
	raws, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](collection, raws)
}

func decodeAll[T any](collection string, raws [][]byte) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}
