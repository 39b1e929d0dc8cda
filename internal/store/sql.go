package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/finance-intake/internal/common"
)

const (
	tableObjects = "objects"
	tableIndexes = "object_indexes"
)

// SQL is an ObjectStore over database/sql. Queries are built with the ent
// dialect builder so the same code serves SQLite and Postgres.
type SQL struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
	now     func() time.Time
	onClose func()
}

// NewSQL wraps an open database. dialectName is an entgo.io/ent/dialect name.
func NewSQL(db *sql.DB, dialectName string, logger *slog.Logger) *SQL {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQL{db: db, dialect: dialectName, logger: logger, now: time.Now}
}

// DB exposes the underlying handle for health checks.
func (s *SQL) DB() *sql.DB { return s.db }

// Dialect returns the ent dialect name.
func (s *SQL) Dialect() string { return s.dialect }

func (s *SQL) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

func (s *SQL) Get(ctx context.Context, collection, id string) ([]byte, error) {
	b := s.builder()
	query, args := b.Select("payload").
		From(b.Table(tableObjects)).
		Where(entsql.And(entsql.EQ("collection", collection), entsql.EQ("id", id))).
		Query()

	var payload string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundf("%s/%s", collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w: %v", collection, id, common.ErrDatabase, err)
	}
	return []byte(payload), nil
}

func (s *SQL) Put(ctx context.Context, collection, id string, payload []byte, idx Indexes) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		b := s.builder()
		query, args := b.Insert(tableObjects).
			Columns("collection", "id", "payload", "updated_at").
			Values(collection, id, string(payload), s.now().UTC().UnixNano()).
			OnConflict(entsql.ConflictColumns("collection", "id"), entsql.ResolveWithNewValues()).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
		}

		query, args = b.Delete(tableIndexes).
			Where(entsql.And(entsql.EQ("collection", collection), entsql.EQ("id", id))).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clear indexes %s/%s: %w", collection, id, err)
		}

		names := make([]string, 0, len(idx))
		for name, v := range idx {
			if v != "" {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			return nil
		}
		sort.Strings(names)
		ins := b.Insert(tableIndexes).Columns("collection", "id", "name", "value")
		for _, name := range names {
			ins.Values(collection, id, name, idx[name])
		}
		query, args = ins.Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("write indexes %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

func (s *SQL) Delete(ctx context.Context, collection, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		b := s.builder()
		for _, table := range []string{tableIndexes, tableObjects} {
			query, args := b.Delete(table).
				Where(entsql.And(entsql.EQ("collection", collection), entsql.EQ("id", id))).
				Query()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("delete %s/%s from %s: %w", collection, id, table, err)
			}
		}
		return nil
	})
}

func (s *SQL) QueryByIndex(ctx context.Context, collection, name, value string) ([][]byte, error) {
	if value == "" {
		return nil, nil
	}
	b := s.builder()
	o := b.Table(tableObjects).As("o")
	ix := b.Table(tableIndexes).As("ix")
	query, args := b.Select(o.C("payload")).
		From(o).
		Join(ix).
		OnP(entsql.And(
			entsql.ColumnsEQ(o.C("collection"), ix.C("collection")),
			entsql.ColumnsEQ(o.C("id"), ix.C("id")),
		)).
		Where(entsql.And(
			entsql.EQ(ix.C("collection"), collection),
			entsql.EQ(ix.C("name"), name),
			entsql.EQ(ix.C("value"), value),
		)).
		OrderBy(o.C("id")).
		Query()
	return s.queryPayloads(ctx, query, args)
}

func (s *SQL) List(ctx context.Context, collection string) ([][]byte, error) {
	b := s.builder()
	query, args := b.Select("payload").
		From(b.Table(tableObjects)).
		Where(entsql.EQ("collection", collection)).
		OrderBy("id").
		Query()
	return s.queryPayloads(ctx, query, args)
}

func (s *SQL) queryPayloads(ctx context.Context, query string, args []any) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w: %v", common.ErrDatabase, err)
		}
		out = append(out, []byte(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func (s *SQL) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w: %v", common.ErrDatabase, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("store.rollback.failed", "error", rbErr)
		}
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w: %v", common.ErrDatabase, err)
	}
	return nil
}

func (s *SQL) Close() error {
	err := s.db.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}
