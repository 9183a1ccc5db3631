package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flowlytix/licensing/internal/telemetry/domain"
)

// blockingEmitter records emits and signals a channel so tests can wait.
type blockingEmitter struct {
	mu     sync.Mutex
	events []*domain.Event
	done   chan struct{}
	err    error
}

func newBlockingEmitter() *blockingEmitter {
	return &blockingEmitter{done: make(chan struct{}, 4)}
}

func (b *blockingEmitter) Emit(_ context.Context, e *domain.Event) error {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
	b.done <- struct{}{}
	return b.err
}

func TestEmitAsync_DeliversEvent(t *testing.T) {
	em := newBlockingEmitter()
	event := &domain.Event{EventType: domain.EventActivation, Source: "test"}

	EmitAsync(em, context.Background(), event)

	select {
	case <-em.done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit did not happen")
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.events) != 1 || em.events[0] != event {
		t.Errorf("events = %v", em.events)
	}
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	// Must not panic and must not spawn anything.
	EmitAsync(nil, context.Background(), &domain.Event{EventType: "x"})
	em := newBlockingEmitter()
	EmitAsync(em, context.Background(), nil)

	select {
	case <-em.done:
		t.Fatal("nil event should not be emitted")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitAsync_EmitterErrorIgnored(t *testing.T) {
	em := newBlockingEmitter()
	em.err = errors.New("broker down")

	EmitAsync(em, context.Background(), &domain.Event{EventType: "x"})

	select {
	case <-em.done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit did not happen")
	}
}
