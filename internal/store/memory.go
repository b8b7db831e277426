package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"vspcbal/internal/model"
)

// Memory is an in-memory store used when no database is configured.
type Memory struct {
	runs   *xsync.Map[string, model.Run]              // id -> run
	balCfg *xsync.Map[string, model.BalanceOverrides] // tenant -> defaults

	mu    sync.Mutex
	order map[string][]string // tenant -> run ids, oldest first
	// Webhooks queue state
	deliveries         map[string]*memDelivery // id -> delivery state
	deliveriesByTenant map[string][]string     // tenant -> delivery ids
	dlq                []memDeadLetter
}

func NewMemory() *Memory {
	return &Memory{
		runs:               xsync.NewMap[string, model.Run](),
		balCfg:             xsync.NewMap[string, model.BalanceOverrides](),
		order:              map[string][]string{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
	seq           int
}

type memDeadLetter struct {
	DeadLetter
	TenantID string
	Secret   string
	Payload  []byte
}

func (m *Memory) SaveRun(ctx context.Context, run model.Run) error {
	if _, loaded := m.runs.LoadOrStore(run.ID, run); loaded {
		m.runs.Store(run.ID, run)
		return nil
	}
	m.mu.Lock()
	m.order[run.TenantID] = append(m.order[run.TenantID], run.ID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	r, ok := m.runs.Load(id)
	if !ok || r.TenantID != tenantID {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.RunSummary, string, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	ids := slices.Clone(m.order[tenantID])
	m.mu.Unlock()
	slices.Reverse(ids)

	start := 0
	if cursor != "" {
		start = len(ids)
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.RunSummary{}
	for _, id := range ids[start:] {
		r, ok := m.runs.Load(id)
		if !ok {
			continue
		}
		out = append(out, r.RunSummary)
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) DeleteRun(ctx context.Context, tenantID, id string) error {
	r, ok := m.runs.Load(id)
	if !ok || r.TenantID != tenantID {
		return ErrNotFound
	}
	m.runs.Delete(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order[tenantID] = slices.DeleteFunc(m.order[tenantID], func(s string) bool { return s == id })
	return nil
}

func (m *Memory) GetBalanceConfig(ctx context.Context, tenantID string) (*model.BalanceOverrides, error) {
	if cfg, ok := m.balCfg.Load(tenantID); ok {
		return &cfg, nil
	}
	return nil, nil
}

func (m *Memory) SaveBalanceConfig(ctx context.Context, tenantID string, cfg model.BalanceOverrides) error {
	m.balCfg.Store(tenantID, cfg)
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dk := computeDedupKey(payload)
	for _, id := range m.deliveriesByTenant[tenantID] {
		d := m.deliveries[id]
		if d.EventType == eventType && d.URL == url && computeDedupKey(d.Payload) == dk {
			return d.ID, nil
		}
	}
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"},
		NextAttemptAt:   time.Now(),
		seq:             len(m.deliveries),
	}
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	due := []*memDelivery{}
	for _, d := range m.deliveries {
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			due = append(due, d)
		}
	}
	slices.SortFunc(due, func(a, b *memDelivery) int {
		if c := a.NextAttemptAt.Compare(b.NextAttemptAt); c != 0 {
			return c
		}
		return a.seq - b.seq
	})
	out := []WebhookDelivery{}
	for _, d := range due {
		out = append(out, d.WebhookDelivery)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	m.dlq = append(m.dlq, memDeadLetter{
		DeadLetter: DeadLetter{
			ID: uuid.New().String(), DeliveryID: id, EventType: d.EventType, URL: d.URL,
			LastError: lastError, Attempts: d.Attempts + 1, ResponseCode: responseCode,
			LatencyMs: latencyMs, CreatedAt: time.Now().UTC(),
		},
		TenantID: d.TenantID, Secret: d.Secret, Payload: d.Payload,
	})
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryInfo, string, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.deliveriesByTenant[tenantID]
	start := 0
	if cursor != "" {
		if i := slices.Index(ids, cursor); i >= 0 {
			start = i + 1
		}
	}
	out := []DeliveryInfo{}
	for _, id := range ids[start:] {
		d := m.deliveries[id]
		if status != "" && d.Status != status {
			continue
		}
		info := DeliveryInfo{ID: d.ID, EventType: d.EventType, Status: d.Status, Attempts: d.Attempts, URL: d.URL,
			LastError: d.LastError, ResponseCode: d.ResponseCode, LatencyMs: d.LatencyMs}
		if d.Status == "pending" || d.Status == "retry" {
			at := d.NextAttemptAt
			info.NextAttemptAt = &at
		}
		out = append(out, info)
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = "pending"
	d.NextAttemptAt = time.Now()
	return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, tenantID, cursor string, limit int) ([]DeadLetter, string, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []DeadLetter{}
	seen := cursor == ""
	for _, dl := range m.dlq {
		if dl.TenantID != tenantID {
			continue
		}
		if !seen {
			seen = dl.ID == cursor
			continue
		}
		out = append(out, dl.DeadLetter)
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	i := slices.IndexFunc(m.dlq, func(d memDeadLetter) bool { return d.ID == id && d.TenantID == tenantID })
	if i < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	dl := m.dlq[i]
	m.dlq = slices.Delete(m.dlq, i, i+1)
	// The original delivery is still tracked; reset it in place.
	if d := m.deliveries[dl.DeliveryID]; d != nil {
		d.Status = "pending"
		d.NextAttemptAt = time.Now()
		d.Attempts = 0
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	_, err := m.EnqueueWebhook(ctx, tenantID, "", dl.EventType, dl.URL, dl.Secret, dl.Payload)
	return err
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
