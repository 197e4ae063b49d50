package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Store provides access to the PostgreSQL database for channel policy CRUD.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS channel_policies (
	channel_id         TEXT PRIMARY KEY,
	mode               TEXT NOT NULL CHECK (mode IN ('STRICT_GATE', 'REWRITE_ONLY')),
	forbidden_phrases  JSONB NOT NULL DEFAULT '[]'::jsonb,
	forbidden_patterns JSONB NOT NULL DEFAULT '[]'::jsonb,
	redirect_message   TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the channel_policies table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}
