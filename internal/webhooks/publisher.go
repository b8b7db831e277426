package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"vspcbal/internal/config"
	"vspcbal/internal/model"
	"vspcbal/internal/store"
)

// Publisher turns events into queued deliveries for every matching
// subscription.
type Publisher struct {
	Store store.Store
	Subs  []config.Subscription
	Log   *slog.Logger
}

func NewPublisher(s store.Store, subs []config.Subscription, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{Store: s, Subs: subs, Log: log}
}

// Emit enqueues ev for each subscription that wants it and returns the
// number of deliveries queued. The event id doubles as the dedup key.
func (p *Publisher) Emit(ctx context.Context, ev model.Event) (int, error) {
	var body []byte
	n := 0
	for i, s := range p.Subs {
		if !s.Matches(ev.TenantID, ev.Type) {
			continue
		}
		if body == nil {
			var err error
			if body, err = json.Marshal(ev); err != nil {
				return 0, err
			}
		}
		subID := s.ID
		if subID == "" {
			subID = fmt.Sprintf("sub-%d", i)
		}
		if _, err := p.Store.EnqueueWebhook(ctx, ev.TenantID, subID, ev.Type, s.URL, s.Secret, body); err != nil {
			p.Log.Error("webhook_enqueue_failed", "subscription", subID, "event", ev.Type, "err", err)
			return n, err
		}
		n++
	}
	return n, nil
}
