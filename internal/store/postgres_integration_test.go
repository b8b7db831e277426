//go:build postgres_integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	testStoreContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		p, err := NewPostgres(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, p.Migrate(ctx))
		_, err = p.db.ExecContext(ctx, `TRUNCATE runs, balance_config, webhook_deliveries, webhook_dlq`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Close() })
		return p
	})
}
