package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vspcbal/internal/config"
	"vspcbal/internal/model"
)

// Store is the persistence interface used by the API server, the CLI and the
// webhook worker.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, tenantID, id string) (model.Run, error)
	ListRuns(ctx context.Context, tenantID, cursor string, limit int) (items []model.RunSummary, nextCursor string, err error)
	DeleteRun(ctx context.Context, tenantID, id string) error

	// Balancing defaults per tenant; nil when the tenant has none.
	GetBalanceConfig(ctx context.Context, tenantID string) (*model.BalanceOverrides, error)
	SaveBalanceConfig(ctx context.Context, tenantID string, cfg model.BalanceOverrides) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryInfo, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

	// Dead-letter queue
	ListWebhookDLQ(ctx context.Context, tenantID, cursor string, limit int) ([]DeadLetter, string, error)
	RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error

	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 100
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}

// Open returns the backend selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		p, err := NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := p.Migrate(ctx); err != nil {
				_ = p.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return p, nil
	case "sqlite":
		return NewSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
