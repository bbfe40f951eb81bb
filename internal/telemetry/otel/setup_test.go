package otel

import (
	"context"
	"testing"

	"github.com/platformplatform/identity-core/internal/telemetry"
)

func TestNewProviders_EmptyEndpointIsNoop(t *testing.T) {
	p, err := NewProviders(context.Background(), "", "identity-core", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if p.TracerProvider == nil || p.LoggerProvider == nil {
		t.Fatal("providers should not be nil")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), "http://", "identity-core", false); err == nil {
		t.Fatal("NewProviders should reject endpoint without host")
	}
}

func TestNewEventEmitter_NilProviderIsNoop(t *testing.T) {
	e := NewEventEmitter(nil)
	if err := e.Emit(context.Background(), telemetry.Event{Type: telemetry.EventSessionStarted}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}
