package store

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Postgres is the production backend.
type Postgres struct {
	sqlStore
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		digest TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		summary JSONB NOT NULL,
		document JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_tenant_created_idx ON runs (tenant_id, created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS balance_config (
		tenant_id TEXT PRIMARY KEY,
		config JSONB NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		subscription_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		url TEXT NOT NULL,
		secret TEXT NOT NULL DEFAULT '',
		payload BYTEA NOT NULL,
		status TEXT NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		next_attempt_at BIGINT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		response_code INT NOT NULL DEFAULT 0,
		latency_ms INT NOT NULL DEFAULT 0,
		dedup_key TEXT NOT NULL,
		delivered_at BIGINT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE (tenant_id, event_type, url, dedup_key)
	)`,
	`CREATE INDEX IF NOT EXISTS webhook_deliveries_due_idx ON webhook_deliveries (status, next_attempt_at)`,
	`CREATE TABLE IF NOT EXISTS webhook_dlq (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		delivery_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		url TEXT NOT NULL,
		secret TEXT NOT NULL DEFAULT '',
		payload BYTEA NOT NULL,
		attempts INT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		response_code INT NOT NULL DEFAULT 0,
		latency_ms INT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: DATABASE_URL is empty")
	}
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return &Postgres{sqlStore{db: db, schema: postgresSchema}}, nil
}
