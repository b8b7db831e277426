package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"vspcbal/internal/model"
)

// sqlStore implements Store over sqlx for both Postgres and SQLite. Queries
// are written with '?' placeholders and rebound for the driver. Timestamps
// are stored as Unix milliseconds so both dialects compare them the same way.
type sqlStore struct {
	db     *sqlx.DB
	schema []string
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMs(v int64) time.Time { return time.UnixMilli(v).UTC() }

func (s *sqlStore) q(query string) string { return s.db.Rebind(query) }

// Migrate creates the schema if it does not exist.
func (s *sqlStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) Close() error { return s.db.Close() }

type runRow struct {
	ID        string `db:"id"`
	TenantID  string `db:"tenant_id"`
	CreatedAt int64  `db:"created_at"`
	Summary   []byte `db:"summary"`
	Document  []byte `db:"document"`
}

type runDocument struct {
	Units   json.RawMessage `json:"units"`
	Centers json.RawMessage `json:"centers"`
}

func (s *sqlStore) SaveRun(ctx context.Context, run model.Run) error {
	summary, err := json.Marshal(run.RunSummary)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(struct {
		Units   any `json:"units"`
		Centers any `json:"centers"`
	}{run.Units, run.Centers})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO runs (id, tenant_id, label, state, digest, created_at, summary, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET summary = excluded.summary, document = excluded.document, state = excluded.state, digest = excluded.digest`),
		run.ID, run.TenantID, run.Label, run.State.String(), run.Digest, ms(run.CreatedAt), string(summary), string(doc))
	return err
}

func (s *sqlStore) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT id, tenant_id, created_at, summary, document FROM runs WHERE tenant_id = ? AND id = ?`), tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	if err != nil {
		return model.Run{}, err
	}
	var run model.Run
	if err := json.Unmarshal(row.Summary, &run.RunSummary); err != nil {
		return model.Run{}, fmt.Errorf("decode run %s summary: %w", id, err)
	}
	var doc runDocument
	if err := json.Unmarshal(row.Document, &doc); err != nil {
		return model.Run{}, fmt.Errorf("decode run %s document: %w", id, err)
	}
	if err := json.Unmarshal(doc.Units, &run.Units); err != nil {
		return model.Run{}, err
	}
	if err := json.Unmarshal(doc.Centers, &run.Centers); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func (s *sqlStore) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.RunSummary, string, error) {
	limit = clampLimit(limit)
	var rows []runRow
	var err error
	if cursor == "" {
		err = s.db.SelectContext(ctx, &rows, s.q(`SELECT id, tenant_id, created_at, summary FROM runs
			WHERE tenant_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`), tenantID, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, s.q(`SELECT r.id, r.tenant_id, r.created_at, r.summary FROM runs r
			JOIN runs c ON c.id = ? AND c.tenant_id = r.tenant_id
			WHERE r.tenant_id = ? AND (r.created_at < c.created_at OR (r.created_at = c.created_at AND r.id < c.id))
			ORDER BY r.created_at DESC, r.id DESC LIMIT ?`), cursor, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	out := make([]model.RunSummary, 0, len(rows))
	for _, row := range rows {
		var sum model.RunSummary
		if err := json.Unmarshal(row.Summary, &sum); err != nil {
			return nil, "", fmt.Errorf("decode run %s summary: %w", row.ID, err)
		}
		out = append(out, sum)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (s *sqlStore) DeleteRun(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM runs WHERE tenant_id = ? AND id = ?`), tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) GetBalanceConfig(ctx context.Context, tenantID string) (*model.BalanceOverrides, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, s.q(`SELECT config FROM balance_config WHERE tenant_id = ?`), tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg model.BalanceOverrides
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode balance config: %w", err)
	}
	return &cfg, nil
}

func (s *sqlStore) SaveBalanceConfig(ctx context.Context, tenantID string, cfg model.BalanceOverrides) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO balance_config (tenant_id, config, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`),
		tenantID, string(raw), ms(time.Now()))
	return err
}

func (s *sqlStore) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	now := ms(time.Now())
	dedup := computeDedupKey(payload)
	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO webhook_deliveries
		(id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`),
		id, tenantID, subscriptionID, eventType, url, secret, payload, now, dedup, now, now)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = s.db.GetContext(ctx, &id, s.q(`SELECT id FROM webhook_deliveries
			WHERE tenant_id = ? AND event_type = ? AND url = ? AND dedup_key = ?`), tenantID, eventType, url, dedup)
	}
	return id, err
}

type deliveryRow struct {
	ID             string `db:"id"`
	TenantID       string `db:"tenant_id"`
	SubscriptionID string `db:"subscription_id"`
	EventType      string `db:"event_type"`
	URL            string `db:"url"`
	Secret         string `db:"secret"`
	Payload        []byte `db:"payload"`
	Status         string `db:"status"`
	Attempts       int    `db:"attempts"`
	NextAttemptAt  int64  `db:"next_attempt_at"`
	LastError      string `db:"last_error"`
	ResponseCode   int    `db:"response_code"`
	LatencyMs      int    `db:"latency_ms"`
}

func (s *sqlStore) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	var rows []deliveryRow
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts,
		next_attempt_at, last_error, response_code, latency_ms
		FROM webhook_deliveries WHERE status IN ('pending', 'retry') AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC, created_at ASC LIMIT ?`), ms(time.Now()), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]WebhookDelivery, 0, len(rows))
	for _, r := range rows {
		out = append(out, WebhookDelivery{
			ID: r.ID, TenantID: r.TenantID, SubscriptionID: r.SubscriptionID, EventType: r.EventType,
			URL: r.URL, Secret: r.Secret, Payload: r.Payload, Status: r.Status, Attempts: r.Attempts,
		})
	}
	return out, nil
}

func (s *sqlStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	now := time.Now()
	if success {
		_, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts = attempts + 1, status = 'delivered',
			delivered_at = ?, updated_at = ?, response_code = ?, latency_ms = ? WHERE id = ?`),
			ms(now), ms(now), responseCode, latencyMs, id)
		return err
	}
	next := now.Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts = attempts + 1, status = 'retry', last_error = ?,
		next_attempt_at = ?, updated_at = ?, response_code = ?, latency_ms = ? WHERE id = ?`),
		lastError, ms(next), ms(now), responseCode, latencyMs, id)
	return err
}

func (s *sqlStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	now := ms(time.Now())
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE webhook_deliveries SET status = 'failed', last_error = ?, updated_at = ?,
		response_code = ?, latency_ms = ? WHERE id = ?`), lastError, now, responseCode, latencyMs, id); err != nil {
		return err
	}
	// move to DLQ
	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO webhook_dlq
		(id, tenant_id, delivery_id, event_type, url, secret, payload, attempts, last_error, response_code, latency_ms, created_at)
		SELECT ?, tenant_id, id, event_type, url, secret, payload, attempts + 1, ?, ?, ?, ? FROM webhook_deliveries WHERE id = ?`),
		uuid.New().String(), lastError, responseCode, latencyMs, now, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryInfo, string, error) {
	limit = clampLimit(limit)
	query := `SELECT id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts,
		next_attempt_at, last_error, response_code, latency_ms FROM webhook_deliveries WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if cursor != "" {
		query += ` AND id > ?`
		args = append(args, cursor)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	var rows []deliveryRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, "", err
	}
	out := make([]DeliveryInfo, 0, len(rows))
	for _, r := range rows {
		info := DeliveryInfo{ID: r.ID, EventType: r.EventType, Status: r.Status, Attempts: r.Attempts, URL: r.URL,
			LastError: r.LastError, ResponseCode: r.ResponseCode, LatencyMs: r.LatencyMs}
		if r.Status == "pending" || r.Status == "retry" {
			at := fromMs(r.NextAttemptAt)
			info.NextAttemptAt = &at
		}
		out = append(out, info)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (s *sqlStore) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET status = 'pending', next_attempt_at = ?
		WHERE tenant_id = ? AND id = ?`), ms(time.Now()), tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type deadLetterRow struct {
	ID           string `db:"id"`
	DeliveryID   string `db:"delivery_id"`
	EventType    string `db:"event_type"`
	URL          string `db:"url"`
	LastError    string `db:"last_error"`
	Attempts     int    `db:"attempts"`
	ResponseCode int    `db:"response_code"`
	LatencyMs    int    `db:"latency_ms"`
	CreatedAt    int64  `db:"created_at"`
}

func (s *sqlStore) ListWebhookDLQ(ctx context.Context, tenantID, cursor string, limit int) ([]DeadLetter, string, error) {
	limit = clampLimit(limit)
	var rows []deadLetterRow
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT id, delivery_id, event_type, url, last_error, attempts, response_code, latency_ms, created_at
		FROM webhook_dlq WHERE tenant_id = ? AND id > ? ORDER BY id LIMIT ?`), tenantID, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	out := make([]DeadLetter, 0, len(rows))
	for _, r := range rows {
		out = append(out, DeadLetter{
			ID: r.ID, DeliveryID: r.DeliveryID, EventType: r.EventType, URL: r.URL, LastError: r.LastError,
			Attempts: r.Attempts, ResponseCode: r.ResponseCode, LatencyMs: r.LatencyMs, CreatedAt: fromMs(r.CreatedAt),
		})
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (s *sqlStore) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	var deliveryID string
	err = tx.GetContext(ctx, &deliveryID, tx.Rebind(`SELECT delivery_id FROM webhook_dlq WHERE tenant_id = ? AND id = ?`), tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE webhook_deliveries SET status = 'pending', attempts = 0, next_attempt_at = ?
		WHERE id = ?`), ms(time.Now()), deliveryID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM webhook_dlq WHERE tenant_id = ? AND id = ?`), tenantID, id); err != nil {
		return err
	}
	return tx.Commit()
}
