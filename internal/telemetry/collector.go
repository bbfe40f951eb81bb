package telemetry

import (
	"context"
	"sync"
	"time"
)

type collectorKey struct{}

// Collector is a request-scoped event buffer with a nesting counter. Flows
// that trigger nested flows (signup creating a tenant creating a user) share
// one collector through the context; events flush exactly once, when the
// outermost unit of work completes successfully, never on nested success.
type Collector struct {
	mu        sync.Mutex
	depth     int
	discarded bool
	events    []Event
}

// Begin attaches a collector to ctx, or increments the nesting depth of the
// one already attached. Every Begin must be paired with exactly one Complete
// or Discard.
func Begin(ctx context.Context) context.Context {
	if c, ok := ctx.Value(collectorKey{}).(*Collector); ok {
		c.mu.Lock()
		c.depth++
		c.mu.Unlock()
		return ctx
	}
	return context.WithValue(ctx, collectorKey{}, &Collector{depth: 1})
}

// Collect buffers the event on the context's collector. Without a collector
// the event is dropped; callers never treat telemetry as a failure path.
func Collect(ctx context.Context, event Event) {
	c, ok := ctx.Value(collectorKey{}).(*Collector)
	if !ok {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	c.mu.Lock()
	if !c.discarded {
		c.events = append(c.events, event)
	}
	c.mu.Unlock()
}

// Complete decrements the nesting depth. At depth zero the buffered events
// are handed to emitter asynchronously. A collector that was discarded at any
// nesting level flushes nothing.
func Complete(ctx context.Context, emitter EventEmitter) {
	c, ok := ctx.Value(collectorKey{}).(*Collector)
	if !ok {
		return
	}
	c.mu.Lock()
	if c.depth > 0 {
		c.depth--
	}
	flush := c.depth == 0 && !c.discarded && len(c.events) > 0
	var events []Event
	if flush {
		events = c.events
		c.events = nil
	}
	c.mu.Unlock()
	for _, e := range events {
		EmitAsync(emitter, ctx, e)
	}
}

// Discard decrements the nesting depth and marks the whole collector failed:
// no events flush at any level. Used when a unit of work does not complete.
func Discard(ctx context.Context) {
	c, ok := ctx.Value(collectorKey{}).(*Collector)
	if !ok {
		return
	}
	c.mu.Lock()
	if c.depth > 0 {
		c.depth--
	}
	c.discarded = true
	c.events = nil
	c.mu.Unlock()
}

// Pending returns the number of buffered events. For tests.
func Pending(ctx context.Context) int {
	c, ok := ctx.Value(collectorKey{}).(*Collector)
	if !ok {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
