// Package postgres persists sessions and trials. Sessions are JSONB
// documents with guard columns lifted out; trials are an append-only ledger.
package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied idempotently at startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id                TEXT PRIMARY KEY,
		kind              TEXT NOT NULL,
		status            TEXT NOT NULL,
		version           INTEGER NOT NULL,
		party_ids         TEXT[] NOT NULL DEFAULT '{}',
		invite_expires_at TIMESTAMPTZ,
		retention_ends_at TIMESTAMPTZ,
		data              JSONB NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions (status)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_party_ids ON sessions USING GIN (party_ids)`,
	`CREATE TABLE IF NOT EXISTS trials (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL UNIQUE REFERENCES sessions (id),
		party_id    TEXT NOT NULL,
		kind        TEXT NOT NULL,
		hit         BOOLEAN,
		num_options INTEGER,
		score       JSONB NOT NULL,
		stats       JSONB NOT NULL,
		psi         JSONB,
		reward      DOUBLE PRECISION NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trials_party_id ON trials (party_id)`,
}

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Connect opens and pings a postgres database.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
