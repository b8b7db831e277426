package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"vspcbal/internal/config"
	"vspcbal/internal/metrics"
	"vspcbal/internal/store"
)

// Worker polls the store for due deliveries and POSTs them.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	MaxAttempts int
	Interval    time.Duration
	Batch       int
	Log         *slog.Logger
}

func NewWorker(s store.Store, cfg config.WebhooksConfig, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: cfg.Timeout},
		MaxAttempts: cfg.MaxAttempts,
		Interval:    cfg.PollInterval,
		Batch:       50,
		Log:         log,
	}
	if w.MaxAttempts <= 0 {
		w.MaxAttempts = 6
	}
	if w.Interval <= 0 {
		w.Interval = time.Second
	}
	return w
}

// Run processes deliveries until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, w.Batch)
	if err != nil {
		w.Log.Error("webhook_fetch_failed", "err", err)
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	code, latency, err := w.post(ctx, it)
	success := err == nil
	status := "delivered"
	switch {
	case success:
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = "dead_lettered"
		w.Log.Warn("webhook_dead_lettered", "delivery", it.ID, "event", it.EventType, "attempts", it.Attempts+1, "err", err)
		err = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), code, latency)
	default:
		status = "retry"
		next := time.Now().Add(nextBackoff(it.Attempts))
		w.Log.Debug("webhook_retry", "delivery", it.ID, "event", it.EventType, "next", next, "err", err)
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, err.Error(), code, latency)
	}
	if err != nil {
		w.Log.Error("webhook_update_failed", "delivery", it.ID, "err", err)
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

// post sends one attempt. A non-2xx response is an error.
func (w *Worker) post(ctx context.Context, it store.WebhookDelivery) (code, latencyMs int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, it.EventType)
	if it.Secret != "" {
		req.Header.Set(HeaderSignature, SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latencyMs = int(time.Since(start).Milliseconds())
	if err != nil {
		return 0, latencyMs, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, latencyMs, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, latencyMs, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
