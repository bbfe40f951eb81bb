// Package telemetry buffers security and flow events per request and emits
// them once, at the outermost successful completion, through pluggable
// emitter backends (OTel logs, Kafka).
package telemetry

import "time"

// Event types emitted by the authentication core.
const (
	EventSessionStarted       = "session.started"
	EventSessionRefreshed     = "session.refreshed"
	EventSessionRevoked       = "session.revoked"
	EventReplayDetected       = "session.replay_detected"
	EventCodeStarted          = "verification.started"
	EventCodeCompleted        = "verification.completed"
	EventCodeBlocked          = "verification.blocked"
	EventCodeResent           = "verification.resent"
	EventExternalLoginStarted = "external_login.started"
	EventExternalLoginSuccess = "external_login.succeeded"
	EventExternalLoginFailed  = "external_login.failed"
)

// Event is a single telemetry record. Fields other than Type are optional.
type Event struct {
	Type          string            `json:"type"`
	TenantID      string            `json:"tenant_id,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
