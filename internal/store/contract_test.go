package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vspcbal/internal/balance"
	"vspcbal/internal/config"
	"vspcbal/internal/geo"
	"vspcbal/internal/model"
)

func sampleRun(t *testing.T, id, tenant string, createdAt time.Time) model.Run {
	t.Helper()
	units := []balance.UnitRecord{
		{ID: "u1", Weight: 200, Location: geo.Point(39.70, -104.91)},
		{ID: "u2", Weight: 200, Location: geo.Point(39.70, -104.79)},
	}
	centers := []balance.CenterRecord{
		{ID: "A", Name: "North", Location: geo.Point(39.70, -104.90)},
		{ID: "B", Name: "South", Location: geo.Point(39.70, -104.80)},
	}
	cfg := balance.DefaultConfig()
	cfg.RuralThreshold = 0
	res, err := balance.Run(context.Background(), units, centers, cfg)
	require.NoError(t, err)
	return model.NewRun(id, tenant, "label-"+id, cfg, res, createdAt, 12*time.Millisecond)
}

// testStoreContract exercises the behaviour every backend must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("runs", func(t *testing.T) {
		s := newStore(t)
		base := time.Date(2024, 11, 5, 7, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			require.NoError(t, s.SaveRun(ctx, sampleRun(t, fmt.Sprintf("run-%d", i), "t1", base.Add(time.Duration(i)*time.Minute))))
		}
		require.NoError(t, s.SaveRun(ctx, sampleRun(t, "other", "t2", base)))

		got, err := s.GetRun(ctx, "t1", "run-2")
		require.NoError(t, err)
		assert.Equal(t, "label-run-2", got.Label)
		assert.True(t, got.CreatedAt.Equal(base.Add(2*time.Minute)))
		assert.Len(t, got.Units, 2)
		assert.Len(t, got.Centers, 2)
		assert.Equal(t, balance.Converged, got.State)
		assert.NotEmpty(t, got.Digest)

		_, err = s.GetRun(ctx, "t2", "run-2")
		assert.ErrorIs(t, err, ErrNotFound)

		page, next, err := s.ListRuns(ctx, "t1", "", 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "run-4", page[0].ID)
		assert.Equal(t, "run-3", page[1].ID)
		assert.Equal(t, "run-3", next)

		page, next, err = s.ListRuns(ctx, "t1", next, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "run-2", page[0].ID)
		assert.Equal(t, "run-1", page[1].ID)

		page, next, err = s.ListRuns(ctx, "t1", next, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "run-0", page[0].ID)
		assert.Empty(t, next)

		require.NoError(t, s.DeleteRun(ctx, "t1", "run-0"))
		assert.ErrorIs(t, s.DeleteRun(ctx, "t1", "run-0"), ErrNotFound)
		page, _, err = s.ListRuns(ctx, "t1", "", 0)
		require.NoError(t, err)
		assert.Len(t, page, 4)
	})

	t.Run("balance config", func(t *testing.T) {
		s := newStore(t)
		cfg, err := s.GetBalanceConfig(ctx, "t1")
		require.NoError(t, err)
		assert.Nil(t, cfg)

		tol, depth := 0.1, 5
		require.NoError(t, s.SaveBalanceConfig(ctx, "t1", model.BalanceOverrides{Tolerance: &tol}))
		require.NoError(t, s.SaveBalanceConfig(ctx, "t1", model.BalanceOverrides{Tolerance: &tol, MaxRankDepth: &depth}))
		cfg, err = s.GetBalanceConfig(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, cfg)
		require.NotNil(t, cfg.MaxRankDepth)
		assert.Equal(t, 5, *cfg.MaxRankDepth)
		assert.InDelta(t, 0.1, *cfg.Tolerance, 1e-12)
	})

	t.Run("webhook queue", func(t *testing.T) {
		s := newStore(t)
		payload, _ := json.Marshal(map[string]any{"id": "evt-1", "type": model.EventRunCompleted})
		id, err := s.EnqueueWebhook(ctx, "t1", "sub", model.EventRunCompleted, "http://example.test/hook", "secret", payload)
		require.NoError(t, err)
		require.NotEmpty(t, id)
		// same event id is deduplicated
		again, err := s.EnqueueWebhook(ctx, "t1", "sub", model.EventRunCompleted, "http://example.test/hook", "secret", payload)
		require.NoError(t, err)
		assert.Equal(t, id, again)

		due, err := s.FetchDueWebhookDeliveries(ctx, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		d := due[0]
		assert.Equal(t, "t1", d.TenantID)
		assert.Equal(t, "secret", d.Secret)
		assert.JSONEq(t, string(payload), string(d.Payload))

		later := time.Now().Add(time.Hour)
		require.NoError(t, s.MarkWebhookDelivery(ctx, d.ID, false, &later, "boom", 502, 3))
		due, err = s.FetchDueWebhookDeliveries(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		infos, _, err := s.ListWebhookDeliveries(ctx, "t1", "retry", "", 10)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, 1, infos[0].Attempts)
		assert.Equal(t, "boom", infos[0].LastError)
		assert.Equal(t, 502, infos[0].ResponseCode)
		require.NotNil(t, infos[0].NextAttemptAt)

		require.NoError(t, s.RetryWebhookDelivery(ctx, "t1", d.ID))
		assert.ErrorIs(t, s.RetryWebhookDelivery(ctx, "t2", d.ID), ErrNotFound)
		due, err = s.FetchDueWebhookDeliveries(ctx, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)

		require.NoError(t, s.FailWebhookDelivery(ctx, d.ID, "gone", 410, 4))
		dlq, _, err := s.ListWebhookDLQ(ctx, "t1", "", 10)
		require.NoError(t, err)
		require.Len(t, dlq, 1)
		assert.Equal(t, d.ID, dlq[0].DeliveryID)
		assert.Equal(t, 2, dlq[0].Attempts)
		assert.Equal(t, 410, dlq[0].ResponseCode)
		due, err = s.FetchDueWebhookDeliveries(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		assert.ErrorIs(t, s.RequeueWebhookDLQ(ctx, "t2", dlq[0].ID), ErrNotFound)
		require.NoError(t, s.RequeueWebhookDLQ(ctx, "t1", dlq[0].ID))
		dlq, _, err = s.ListWebhookDLQ(ctx, "t1", "", 10)
		require.NoError(t, err)
		assert.Empty(t, dlq)
		due, err = s.FetchDueWebhookDeliveries(ctx, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, 0, due[0].Attempts)

		require.NoError(t, s.MarkWebhookDelivery(ctx, due[0].ID, true, nil, "", 200, 2))
		infos, _, err = s.ListWebhookDeliveries(ctx, "t1", "delivered", "", 10)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Nil(t, infos[0].NextAttemptAt)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestSQLiteStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		s, err := NewSQLite(context.Background(), t.TempDir()+"/vspcbal.db")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func configFor(driver, path string) config.StoreConfig {
	return config.StoreConfig{Driver: driver, SQLitePath: path}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, configFor("memory", ""))
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, configFor("sqlite", t.TempDir()+"/open.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, configFor("mongo", ""))
	assert.Error(t, err)
}
