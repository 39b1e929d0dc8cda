package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

// Portable between SQLite and Postgres.
var steps = []migrationStep{
	{
		Name: "create_table_objects",
		SQL: `CREATE TABLE IF NOT EXISTS objects (
  collection TEXT   NOT NULL,
  id         TEXT   NOT NULL,
  payload    TEXT   NOT NULL,
  updated_at BIGINT NOT NULL,
  PRIMARY KEY (collection, id)
);`,
	},
	{
		Name: "create_table_object_indexes",
		SQL: `CREATE TABLE IF NOT EXISTS object_indexes (
  collection TEXT NOT NULL,
  id         TEXT NOT NULL,
  name       TEXT NOT NULL,
  value      TEXT NOT NULL,
  PRIMARY KEY (collection, id, name)
);`,
	},
	{
		Name: "create_index_object_indexes_lookup",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_object_indexes_lookup ON object_indexes (collection, name, value);`,
	},
}

// Migrate applies every step. Steps are idempotent.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	for _, step := range steps {
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			logger.Error("store.migration.failed", "step", step.Name, "error", err)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		logger.Debug("store.migration.step", "step", step.Name)
	}
	logger.Info("store.migration.ok", "steps", len(steps), "duration_ms", time.Since(start).Milliseconds())
	return nil
}
