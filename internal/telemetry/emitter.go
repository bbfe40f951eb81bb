package telemetry

import "context"

// EventEmitter emits telemetry events (e.g. to OTel Logs or Kafka).
// Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event Event) error
}

// MultiEmitter fans one event out to several backends. Errors from individual
// backends do not stop the others; the first error is returned.
type MultiEmitter []EventEmitter

// Emit sends the event to every non-nil backend.
func (m MultiEmitter) Emit(ctx context.Context, event Event) error {
	var first error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
