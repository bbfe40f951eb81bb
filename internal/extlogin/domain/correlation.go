// Package domain holds the external-login correlation record: the pending
// state created when a browser is sent to an identity provider, consumed
// exactly once when the provider redirects back.
package domain

import "time"

// ValidFor is the lifetime of a pending correlation. A callback arriving
// later fails the expiry gate.
const ValidFor = 5 * time.Minute

// FlowType distinguishes login (existing account) from signup (new account).
// The two share the state machine; user resolution after the gates differs.
type FlowType string

const (
	FlowLogin  FlowType = "login"
	FlowSignup FlowType = "signup"
)

// Valid reports whether f is a known flow type.
func (f FlowType) Valid() bool { return f == FlowLogin || f == FlowSignup }

// Outcome identifies which callback gate tripped, or success. Outcomes are
// internal; the client only ever sees a coarse public code.
type Outcome string

const (
	OutcomeSucceeded          Outcome = "succeeded"
	OutcomeInvalidState       Outcome = "invalid-state"
	OutcomeReplayDetected     Outcome = "replay-detected"
	OutcomeSessionNotFound    Outcome = "session-not-found"
	OutcomeFlowIDMismatch     Outcome = "flow-id-mismatch"
	OutcomeHijackingDetected  Outcome = "hijacking-detected"
	OutcomeExpired            Outcome = "expired"
	OutcomeAlreadyCompleted   Outcome = "already-completed"
	OutcomeProviderError      Outcome = "provider-error"
	OutcomeCodeExchangeFailed Outcome = "code-exchange-failed"
	OutcomeNonceMismatch      Outcome = "nonce-mismatch"
)

// Correlation is one pending or resolved external-login attempt.
type Correlation struct {
	ID           string
	Provider     string
	FlowType     FlowType
	CodeVerifier string
	Nonce        string
	// FingerprintHash binds the callback to the browser that started the
	// flow. Best-effort: the inputs are spoofable request headers.
	FingerprintHash string
	// TenantID is the preferred tenant carried from Start, if any.
	TenantID string
	Consumed bool
	// Result records the terminal outcome once Consumed is set.
	Result    string
	CreatedAt time.Time
}

// HasExpired reports whether the correlation outlived its validity window.
func (c *Correlation) HasExpired(now time.Time) bool {
	return now.After(c.CreatedAt.Add(ValidFor))
}
