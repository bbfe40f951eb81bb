// Package domain holds the one-time-code verification record shared by the
// login, signup, and email-confirmation flows. The three flows run the same
// state machine; only the message copy and the post-completion side effect
// differ.
package domain

import "time"

// FlowType scopes a verification record to one of the three call sites.
type FlowType string

const (
	FlowLogin        FlowType = "login"
	FlowSignup       FlowType = "signup"
	FlowConfirmation FlowType = "confirmation"
)

// Valid reports whether f is a known flow type.
func (f FlowType) Valid() bool {
	switch f {
	case FlowLogin, FlowSignup, FlowConfirmation:
		return true
	}
	return false
}

// Limits on the verification state machine.
const (
	// MaxAttempts is the number of failed code validations before the record
	// blocks further attempts, independent of code correctness.
	MaxAttempts = 3
	// MaxResends is the number of times a fresh code can be issued for one record.
	MaxResends = 3
	// ResendCooldown is the minimum gap between resends.
	ResendCooldown = 30 * time.Second
	// ValidFor is how long a code stays valid after issuance (and re-issuance).
	ValidFor = 5 * time.Minute
	// MaxStartsPerDay caps Start calls per email per rolling 24h window.
	MaxStartsPerDay = 3
)

// Verification is a one-time-code record. Once Completed is set no further
// mutation is permitted other than read.
type Verification struct {
	ID          string
	FlowType    FlowType
	Email       string
	CodeHash    string
	// Purpose varies the message copy only, never the security logic.
	Purpose     string
	RetryCount  int
	ResendCount int
	Completed   bool
	CreatedAt   time.Time
	ModifiedAt  time.Time // updated on resend
}

// HasExpired reports whether the code window has passed. Resends do not
// extend the window; it anchors to CreatedAt.
func (v *Verification) HasExpired(now time.Time) bool {
	return now.After(v.CreatedAt.Add(ValidFor))
}

// IsBlocked reports whether failed attempts exhausted the record.
func (v *Verification) IsBlocked() bool { return v.RetryCount >= MaxAttempts }

// InResendCooldown reports whether now falls inside the cooldown since the
// last issue or re-issue.
func (v *Verification) InResendCooldown(now time.Time) bool {
	return now.Before(v.ModifiedAt.Add(ResendCooldown))
}
