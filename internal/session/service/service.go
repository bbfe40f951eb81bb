// Package service orchestrates token issuance, refresh rotation, and logout.
// It is the only entry point other code may use to mint or revoke sessions.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/platformplatform/identity-core/internal/clock"
	"github.com/platformplatform/identity-core/internal/security"
	"github.com/platformplatform/identity-core/internal/session/domain"
	"github.com/platformplatform/identity-core/internal/session/repository"
	"github.com/platformplatform/identity-core/internal/telemetry"
)

// Sentinel errors for the session service; the HTTP layer maps them to the
// error taxonomy (Unauthorized with machine-readable reasons, Conflict).
var (
	// ErrInvalidRefreshToken covers malformed, expired, or wrongly-signed tokens.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	// ErrSessionNotFound means the token referenced a session that does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked means the session was already revoked.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrReplayDetected means the presented chain position is neither current
	// nor within the grace window; the session has been revoked.
	ErrReplayDetected = errors.New("refresh token replay detected; session revoked")
	// ErrRefreshConflict means a concurrent refresh won the rotation race. The
	// caller must re-authenticate, not retry with the same token: a stale
	// retry is indistinguishable from an attacker replaying a captured token.
	ErrRefreshConflict = errors.New("concurrent refresh conflict")
	// ErrInvalidAccessToken covers malformed, expired, or wrongly-signed
	// access tokens on authenticated reads.
	ErrInvalidAccessToken = errors.New("invalid or expired access token")
)

// IdentityLookup resolves the current identity snapshot for token issuance at
// refresh time.
type IdentityLookup interface {
	Snapshot(ctx context.Context, tenantID, userID string) (security.IdentitySnapshot, error)
}

// TokenPair is a freshly minted access/refresh token pair.
type TokenPair struct {
	SessionID       string
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
}

// Service implements session issuance, refresh, and logout on top of the
// session repository and token codec.
type Service struct {
	sessions   repository.Repository
	tokens     *security.TokenProvider
	identities IdentityLookup
	refreshTTL time.Duration
	clock      clock.Clock
	emitter    telemetry.EventEmitter
}

// New returns a Service with the given dependencies. emitter may be nil.
func New(sessions repository.Repository, tokens *security.TokenProvider, identities IdentityLookup, refreshTTL time.Duration, clk clock.Clock, emitter telemetry.EventEmitter) *Service {
	return &Service{
		sessions:   sessions,
		tokens:     tokens,
		identities: identities,
		refreshTTL: refreshTTL,
		clock:      clk,
		emitter:    emitter,
	}
}

// CreateAndIssue creates a session for the authenticated identity and mints
// the initial token pair (chain version 1).
func (s *Service) CreateAndIssue(ctx context.Context, ident security.IdentitySnapshot, device domain.DeviceContext) (*TokenPair, error) {
	now := s.clock.Now()
	sess := &domain.Session{
		ID:             ulid.Make().String(),
		TenantID:       ident.TenantID,
		UserID:         ident.UserID,
		RefreshJti:     security.NewJTI(),
		RefreshVersion: 1,
		DeviceClass:    domain.DeviceClassFromUserAgent(device.UserAgent),
		UserAgent:      device.UserAgent,
		IPAddress:      device.IPAddress,
		CreatedAt:      now,
		ModifiedAt:     now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.IssueRefresh(ident, sess.ID, sess.RefreshJti, sess.RefreshVersion, now.Add(s.refreshTTL), now)
	if err != nil {
		return nil, err
	}
	accessToken, accessExp, err := s.tokens.IssueAccess(ident, sess.ID, now)
	if err != nil {
		return nil, err
	}

	telemetry.Collect(ctx, telemetry.Event{
		Type:      telemetry.EventSessionStarted,
		TenantID:  ident.TenantID,
		UserID:    ident.UserID,
		SessionID: sess.ID,
		Metadata:  map[string]string{"device_class": string(sess.DeviceClass)},
	})

	return &TokenPair{
		SessionID:       sess.ID,
		AccessToken:     accessToken,
		AccessExpiresAt: accessExp,
		RefreshToken:    refreshToken,
	}, nil
}

// Refresh validates the presented refresh token against the session row,
// rotates the chain, and mints a fresh pair. The tenant context comes only
// from the token; the session lookup is deliberately unscoped.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	now := s.clock.Now()
	if sess.IsRevoked() {
		return nil, ErrSessionRevoked
	}
	if !sess.IsRefreshTokenValid(claims.ID, claims.Version, now) {
		// Neither current nor previous-within-grace: this is the replay
		// signal. Revocation is idempotent under concurrent detection.
		if _, revokeErr := s.sessions.TryRevokeForReplay(ctx, sess.ID, now); revokeErr != nil {
			return nil, revokeErr
		}
		// Security events bypass the request-scoped buffer: the request is
		// about to fail, and the signal must not be lost with it.
		telemetry.EmitAsync(s.emitter, ctx, telemetry.Event{
			Type:      telemetry.EventReplayDetected,
			TenantID:  sess.TenantID,
			UserID:    sess.UserID,
			SessionID: sess.ID,
			CreatedAt: now,
		})
		return nil, ErrReplayDetected
	}

	newJti := security.NewJTI()
	rotated, err := s.sessions.TryRotate(ctx, sess.ID, claims.ID, claims.Version, newJti, now)
	if err != nil {
		return nil, err
	}
	if !rotated {
		return nil, ErrRefreshConflict
	}

	ident, err := s.identities.Snapshot(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		return nil, err
	}
	// The chain keeps its original expiry; rotation must not extend the
	// refresh token's life indefinitely.
	newRefresh, err := s.tokens.IssueRefresh(ident, sess.ID, newJti, claims.Version+1, claims.ExpiresAt.Time, now)
	if err != nil {
		return nil, err
	}
	accessToken, accessExp, err := s.tokens.IssueAccess(ident, sess.ID, now)
	if err != nil {
		return nil, err
	}

	telemetry.Collect(ctx, telemetry.Event{
		Type:      telemetry.EventSessionRefreshed,
		TenantID:  ident.TenantID,
		UserID:    ident.UserID,
		SessionID: sess.ID,
	})

	return &TokenPair{
		SessionID:       sess.ID,
		AccessToken:     accessToken,
		AccessExpiresAt: accessExp,
		RefreshToken:    newRefresh,
	}, nil
}

// Logout revokes the session identified by the refresh token with reason
// logged-out. An unparseable token or an already-revoked session is a no-op:
// logout must be safe to double-click. Clearing the transport carriers is the
// HTTP layer's concern.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil
	}
	err = s.sessions.Revoke(ctx, claims.SessionID, s.clock.Now(), domain.ReasonLoggedOut)
	if errors.Is(err, repository.ErrAlreadyRevoked) {
		return nil
	}
	if err == nil {
		telemetry.Collect(ctx, telemetry.Event{
			Type:      telemetry.EventSessionRevoked,
			TenantID:  claims.TenantID,
			UserID:    claims.Subject,
			SessionID: claims.SessionID,
			Reason:    string(domain.ReasonLoggedOut),
		})
	}
	return err
}

// Sessions lists the caller's sessions, newest first, revoked included. The
// caller is identified by a valid access token; revocation state is not
// rechecked here since access tokens are irrevocable until expiry anyway.
func (s *Service) Sessions(ctx context.Context, accessToken string) ([]*domain.Session, error) {
	claims, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}
	return s.sessions.ListByUser(ctx, claims.TenantID, claims.Subject)
}

// RevokeAllForTenantSwitch revokes every active session of the user when
// their tenant context changes.
func (s *Service) RevokeAllForTenantSwitch(ctx context.Context, userID string) error {
	return s.sessions.RevokeAllByUser(ctx, userID, s.clock.Now(), domain.ReasonTenantSwitch)
}
