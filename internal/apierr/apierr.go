// Package apierr defines the error taxonomy shared by the authentication
// services. Expected domain outcomes (wrong code, expired record, lost
// rotation race) are values of this type; handlers map Kind to a transport
// status. True invariant violations are not apierr values — they panic.
package apierr

// Kind is the coarse error category.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindBadRequest
	KindForbidden
	KindTooManyRequests
	KindConflict
	KindUnauthorized
)

// Unauthorized reasons, machine-readable.
const (
	ReasonRevoked         = "revoked"
	ReasonReplayDetected  = "replay-detected"
	ReasonSessionNotFound = "session-not-found"
)

// Error is a typed, expected failure outcome.
type Error struct {
	Kind    Kind
	Code    string // stable machine-readable code, e.g. "verification_blocked"
	Message string
	// Retryable hints the client whether requesting a fresh attempt (e.g. a
	// new code) can succeed. It never means "retry the same input".
	Retryable bool
}

func (e *Error) Error() string { return e.Message }

// NotFound returns a not-found outcome.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// BadRequest returns a bad-request outcome. retryable marks whether a fresh
// attempt may succeed.
func BadRequest(code, message string, retryable bool) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Message: message, Retryable: retryable}
}

// Forbidden returns a forbidden outcome.
func Forbidden(code, message string, retryable bool) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message, Retryable: retryable}
}

// TooManyRequests returns a rate-limited outcome.
func TooManyRequests(code, message string) *Error {
	return &Error{Kind: KindTooManyRequests, Code: code, Message: message}
}

// Conflict returns a conflicting-state outcome.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Unauthorized returns an unauthorized outcome carrying a machine-readable
// reason (revoked | replay-detected | session-not-found).
func Unauthorized(reason, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: reason, Message: message}
}
