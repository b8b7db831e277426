package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vspcbal/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t1")
	other := b.Subscribe("t2")

	evt := model.Event{ID: "e1", Type: model.EventRunCompleted, TenantID: "t1", Data: map[string]any{"moves": 2}}
	b.Publish("t1", evt)

	select {
	case got := <-ch:
		assert.Equal(t, evt.Type, got.Type)
		assert.Equal(t, 2, got.Data["moves"])
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case got := <-other:
		t.Fatalf("event leaked to another tenant: %+v", got)
	default:
	}

	b.Unsubscribe("t1", ch)
	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
	// second unsubscribe is a no-op
	b.Unsubscribe("t1", ch)
	b.Unsubscribe("t2", other)
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t1")
	for i := 0; i < cap(ch)+5; i++ {
		b.Publish("t1", model.Event{Type: model.EventCenterExhausted})
	}
	assert.Len(t, ch, cap(ch))
	b.Unsubscribe("t1", ch)
}
