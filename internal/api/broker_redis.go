package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vspcbal/internal/config"
	"vspcbal/internal/model"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so every API replica
// sees events from runs served by the others.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
	log    *slog.Logger

	mu   sync.Mutex
	subs map[chan model.Event]*redis.PubSub
}

func NewRedisBroker(cfg config.RedisConfig, log *slog.Logger) (*RedisBroker, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	prefix := cfg.Channel
	if prefix == "" {
		prefix = "vspcbal:events"
	}
	return &RedisBroker{rdb: rdb, prefix: prefix, log: log, subs: map[chan model.Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(tenant string) chan model.Event {
	ch := make(chan model.Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(tenant))
	// initial consume to ensure subscription
	if _, err := ps.Receive(ctx); err != nil {
		b.log.Warn("redis_subscribe_failed", "tenant", tenant, "err", err)
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the Pub/Sub connection; the reader goroutine then closes ch.
func (b *RedisBroker) Unsubscribe(tenant string, ch chan model.Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(tenant string, evt model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, b.chanName(tenant), data).Err(); err != nil {
		b.log.Warn("redis_publish_failed", "tenant", tenant, "event", evt.Type, "err", err)
	}
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	for ch, ps := range b.subs {
		_ = ps.Close()
		delete(b.subs, ch)
	}
	b.mu.Unlock()
	return b.rdb.Close()
}

func (b *RedisBroker) chanName(tenant string) string { return b.prefix + ":" + tenant }
