package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLite is the single-file backend used by the CLI and local servers.
type SQLite struct {
	sqlStore
}

// NewSQLite opens (creating if needed) the database at path and applies the
// schema.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{sqlStore{db: db, schema: sqliteSchema()}}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return s, nil
}

// sqliteSchema derives the SQLite DDL from the Postgres one.
func sqliteSchema() []string {
	r := strings.NewReplacer("JSONB", "TEXT", "BYTEA", "BLOB", "BIGINT", "INTEGER")
	out := make([]string, len(postgresSchema))
	for i, stmt := range postgresSchema {
		out[i] = r.Replace(stmt)
	}
	return out
}
