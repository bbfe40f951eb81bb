package repository

import (
	"context"
	"errors"
	"time"

	"github.com/platformplatform/identity-core/internal/session/domain"
)

// ErrAlreadyRevoked is returned by Revoke when the session is already
// revoked. Calling Revoke twice is a programming error, not a user-facing
// outcome; replay-triggered revocation uses the idempotent TryRevokeForReplay
// instead.
var ErrAlreadyRevoked = errors.New("session already revoked")

// Repository defines persistence for sessions. Sessions are never hard
// deleted; revoked rows remain for audit.
//
// TryRotate and TryRevokeForReplay are single atomic conditional statements
// that commit immediately, outside any ambient transaction, so a losing
// concurrent request observes the winner's committed state.
type Repository interface {
	// Create persists a new session with version 1. The session must have ID set.
	Create(ctx context.Context, s *domain.Session) error
	// GetByID returns the session for id, or nil if not found. Deliberately
	// unscoped by tenant: at refresh time the tenant context comes only from
	// the token, not from request context.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListByUser returns all sessions (revoked included) for the user in the tenant.
	ListByUser(ctx context.Context, tenantID, userID string) ([]*domain.Session, error)
	// TryRotate advances the refresh chain only if the stored row still holds
	// (currentJti, currentVersion): previous-jti = current-jti, current-jti =
	// newJti, version += 1, modified-at = now. Returns whether exactly one row
	// changed. A false return means the caller's belief about the chain was
	// stale; the caller must not retry with the same credentials.
	TryRotate(ctx context.Context, sessionID, currentJti string, currentVersion int64, newJti string, now time.Time) (bool, error)
	// TryRevokeForReplay revokes the session with reason replay-detected, only
	// if not already revoked. Idempotent under concurrent detection; returns
	// whether this caller was the one that revoked.
	TryRevokeForReplay(ctx context.Context, sessionID string, now time.Time) (bool, error)
	// Revoke marks the session revoked with the given reason. Returns
	// ErrAlreadyRevoked if it already was.
	Revoke(ctx context.Context, sessionID string, now time.Time, reason domain.RevocationReason) error
	// RevokeAllByUser revokes every active session of the user with the given
	// reason (e.g. tenant-switch). Already-revoked sessions are untouched.
	RevokeAllByUser(ctx context.Context, userID string, now time.Time, reason domain.RevocationReason) error
}
