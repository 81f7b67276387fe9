package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the engine's tables. The advisory lock serializes
// bootstrap DDL across api/worker startups.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026052201)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	bot_id TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	facts JSONB NOT NULL DEFAULT '{}'::jsonb,
	session_summaries JSONB NOT NULL DEFAULT '[]'::jsonb,
	total_sessions INTEGER NOT NULL DEFAULT 0,
	total_messages INTEGER NOT NULL DEFAULT 0,
	avg_sentiment DOUBLE PRECISION NOT NULL DEFAULT 0,
	engagement_level TEXT NOT NULL DEFAULT 'new',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_email
	ON profiles(tenant_id, bot_id, email) WHERE email <> '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_phone
	ON profiles(tenant_id, bot_id, phone) WHERE phone <> '';
CREATE INDEX IF NOT EXISTS idx_profiles_updated_at ON profiles(updated_at DESC);

CREATE TABLE IF NOT EXISTS intent_transitions (
	tenant_id TEXT NOT NULL,
	from_intent TEXT NOT NULL,
	to_intent TEXT NOT NULL,
	cnt BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, from_intent, to_intent)
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	bot_id TEXT NOT NULL DEFAULT '',
	title TEXT,
	content TEXT NOT NULL,
	tags TEXT[] NOT NULL DEFAULT '{}',
	tsv TSVECTOR GENERATED ALWAYS AS (
		to_tsvector('simple', coalesce(title, '') || ' ' || content)
	) STORED,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_tenant ON chunks(tenant_id, bot_id);
CREATE INDEX IF NOT EXISTS idx_chunks_tsv ON chunks USING GIN(tsv);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
