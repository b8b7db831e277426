package api

import (
	"sync"

	"vspcbal/internal/model"
)

// EventBroker fans events out to stream subscribers of one tenant.
type EventBroker interface {
	Subscribe(tenant string) chan model.Event
	Unsubscribe(tenant string, ch chan model.Event)
	Publish(tenant string, evt model.Event)
}

// Broker is the in-process EventBroker. Slow subscribers drop events.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.Event]struct{} // tenant -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.Event]struct{}{}}
}

func (b *Broker) Subscribe(tenant string) chan model.Event {
	ch := make(chan model.Event, 16)
	b.mu.Lock()
	if b.subs[tenant] == nil {
		b.subs[tenant] = map[chan model.Event]struct{}{}
	}
	b.subs[tenant][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(tenant string, ch chan model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[tenant]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, tenant)
	}
	close(ch)
}

func (b *Broker) Publish(tenant string, evt model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[tenant] {
		select {
		case ch <- evt:
		default:
		}
	}
}
