package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureEmitter) Emit(ctx context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureEmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestCollector_FlushesOnceAtOutermostCompletion(t *testing.T) {
	emitter := &captureEmitter{}
	ctx := Begin(context.Background())

	Collect(ctx, Event{Type: EventSessionStarted})

	// Nested unit of work: its completion must not flush.
	nested := Begin(ctx)
	Collect(nested, Event{Type: EventCodeCompleted})
	Complete(nested, emitter)
	if emitter.count() != 0 {
		t.Fatal("nested Complete flushed events")
	}
	if Pending(ctx) != 2 {
		t.Fatalf("Pending = %d, want 2", Pending(ctx))
	}

	Complete(ctx, emitter)
	waitFor(t, func() bool { return emitter.count() == 2 })
}

func TestCollector_DiscardSuppressesFlush(t *testing.T) {
	emitter := &captureEmitter{}
	ctx := Begin(context.Background())
	Collect(ctx, Event{Type: EventSessionStarted})

	nested := Begin(ctx)
	Collect(nested, Event{Type: EventCodeBlocked})
	Discard(nested)

	Complete(ctx, emitter)
	time.Sleep(50 * time.Millisecond)
	if emitter.count() != 0 {
		t.Fatalf("discarded collector flushed %d events", emitter.count())
	}
}

func TestCollect_NoCollectorIsNoop(t *testing.T) {
	Collect(context.Background(), Event{Type: EventSessionStarted})
	Complete(context.Background(), &captureEmitter{})
	Discard(context.Background())
}

func TestCollect_StampsCreatedAt(t *testing.T) {
	ctx := Begin(context.Background())
	Collect(ctx, Event{Type: EventSessionStarted})
	emitter := &captureEmitter{}
	Complete(ctx, emitter)
	waitFor(t, func() bool { return emitter.count() == 1 })
	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if emitter.events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped")
	}
}
