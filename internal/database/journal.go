package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/chat-relay/internal/config"
)

// Schema creates the presence journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS presence_events (
	id          BIGSERIAL PRIMARY KEY,
	session_id  UUID        NOT NULL,
	identity    TEXT        NOT NULL,
	kind        TEXT        NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, kind)
);
CREATE INDEX IF NOT EXISTS presence_events_identity_idx
	ON presence_events (identity, occurred_at DESC);
`

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the journal table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create presence_events: %w", err)
	}
	return nil
}

// OpenJournal connects and prepares the schema.
func OpenJournal(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
