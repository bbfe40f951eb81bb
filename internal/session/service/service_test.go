package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/platformplatform/identity-core/internal/clock"
	"github.com/platformplatform/identity-core/internal/security"
	"github.com/platformplatform/identity-core/internal/session/domain"
	"github.com/platformplatform/identity-core/internal/session/repository"
)

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: make(map[string]*domain.Session)}
}

func (r *memSessionRepo) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.m[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) ListByUser(ctx context.Context, tenantID, userID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.m {
		if s.TenantID == tenantID && s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSessionRepo) TryRotate(ctx context.Context, sessionID, currentJti string, currentVersion int64, newJti string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[sessionID]
	if !ok || s.RevokedAt != nil || s.RefreshJti != currentJti || s.RefreshVersion != currentVersion {
		return false, nil
	}
	prev := s.RefreshJti
	s.PreviousJti = &prev
	s.RefreshJti = newJti
	s.RefreshVersion++
	s.ModifiedAt = now
	return true, nil
}

func (r *memSessionRepo) TryRevokeForReplay(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[sessionID]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	t := now
	reason := domain.ReasonReplayDetected
	s.RevokedAt = &t
	s.RevokedReason = &reason
	return true, nil
}

func (r *memSessionRepo) Revoke(ctx context.Context, sessionID string, now time.Time, reason domain.RevocationReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[sessionID]
	if !ok || s.RevokedAt != nil {
		return repository.ErrAlreadyRevoked
	}
	t := now
	s.RevokedAt = &t
	s.RevokedReason = &reason
	return nil
}

func (r *memSessionRepo) RevokeAllByUser(ctx context.Context, userID string, now time.Time, reason domain.RevocationReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.m {
		if s.UserID == userID && s.RevokedAt == nil {
			t := now
			rs := reason
			s.RevokedAt = &t
			s.RevokedReason = &rs
		}
	}
	return nil
}

type staticLookup struct {
	ident security.IdentitySnapshot
}

func (l staticLookup) Snapshot(ctx context.Context, tenantID, userID string) (security.IdentitySnapshot, error) {
	return l.ident, nil
}

func newTestService(t *testing.T, repo *memSessionRepo, clk clock.Clock) (*Service, security.IdentitySnapshot) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	ident := security.IdentitySnapshot{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Role:     "member",
		Email:    "user@example.com",
	}
	svc := New(repo, tokens, staticLookup{ident: ident}, 2160*time.Hour, clk, nil)
	return svc, ident
}

func TestCreateAndIssue_StartsChainAtVersionOne(t *testing.T) {
	repo := newMemSessionRepo()
	clk := clock.NewFrozen(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	svc, ident := newTestService(t, repo, clk)

	pair, err := svc.CreateAndIssue(context.Background(), ident, domain.DeviceContext{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		IPAddress: "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("CreateAndIssue: %v", err)
	}
	sess, err := repo.GetByID(context.Background(), pair.SessionID)
	if err != nil || sess == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if sess.RefreshVersion != 1 {
		t.Errorf("version = %d, want 1", sess.RefreshVersion)
	}
	if sess.PreviousJti != nil {
		t.Error("previous jti should be nil before first rotation")
	}
	if sess.DeviceClass != domain.DeviceDesktop {
		t.Errorf("device class = %q, want desktop", sess.DeviceClass)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("token pair incomplete")
	}
}

func TestRefresh_RotatesChain(t *testing.T) {
	repo := newMemSessionRepo()
	clk := clock.NewFrozen(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	svc, ident := newTestService(t, repo, clk)

	pair, err := svc.CreateAndIssue(context.Background(), ident, domain.DeviceContext{})
	if err != nil {
		t.Fatalf("CreateAndIssue: %v", err)
	}

	clk.Advance(time.Minute)
	next, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	sess, _ := repo.GetByID(context.Background(), pair.SessionID)
	if sess.RefreshVersion != 2 {
		t.Errorf("version = %d, want 2", sess.RefreshVersion)
	}
	if sess.PreviousJti == nil {
		t.Error("previous jti should be set after rotation")
	}
}

func TestRefresh_RaceHasExactlyOneWinner(t *testing.T) {
	repo := newMemSessionRepo()
	clk := clock.NewFrozen(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	svc, ident := newTestService(t, repo, clk)

	pair, err := svc.CreateAndIssue(context.Background(), ident, domain.DeviceContext{})
	if err != nil {
		t.Fatalf("CreateAndIssue: %v", err)
	}

	const racers = 2
	results := make(chan error, racers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < racers; i++ {
		go func() {
			start.Wait()
			_, err := svc.Refresh(context.Background(), pair.RefreshToken)
			results <- err
		}()
	}
	start.Done()

	var wins, conflicts int
	for i := 0; i < racers; i++ {
		switch err := <-results; {
		case err == nil:
			wins++
		case errors.Is(err, ErrRefreshConflict):
			conflicts++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Errorf("wins = %d, conflicts = %d; want exactly one of each", wins, conflicts)
	}
	sess, _ := repo.GetByID(context.Background(), pair.SessionID)
	if sess.RefreshVersion != 2 {
		t.Errorf("version = %d, want 2 after a single successful rotation", sess.RefreshVersion)
	}
	if sess.RevokedAt != nil {
		t.Error("losing a rotation race must not revoke the session")
	}
}

func TestRefresh_ReplayRevokesSession(t *testing.T) {
	repo := newMemSessionRepo()
	clk := clock.NewFrozen(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	svc, ident := newTestService(t, repo, clk)

	pair, err := svc.CreateAndIssue(context.Background(), ident, domain.DeviceContext{})
	if err != nil {
		t.Fatalf("CreateAndIssue: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}

	// Replaying the original token after the grace window is the attack signal.
	clk.Advance(domain.RefreshGracePeriod + time.Second)
	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	if !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("err = %v, want ErrReplayDetected", err)
	}
	sess, _ := repo.GetByID(context.Background(), pair.SessionID)
	if sess.RevokedAt == nil {
		t.Fatal("session should be revoked after replay")
	}
	if sess.RevokedReason == nil || *sess.RevokedReason != domain.ReasonReplayDetected {
		t.Errorf("revoked reason = %v, want replay-detected", sess.RevokedReason)
	}
}

func TestRefresh_RevokedSession(t *testing.T) {
	repo := newMemSessionRepo()
	clk := clock.NewFrozen(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	svc, ident := newTestService(t, repo, clk)

	pair, err := svc.CreateAndIssue(context.Background(), ident, domain.DeviceContext{})
	if err != nil {
		t.Fatalf("CreateAndIssue: %v", err)
	}
	if err := svc.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("err = %v, want ErrSessionRevoked", err)
	}
}

func TestRefresh_InvalidToken(t *testing.T) {
	repo := newMemSessionRepo()
	clk := clock.NewFrozen(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, repo, clk)

	for _, token := range []string{"", "garbage"} {
		if _, err := svc.Refresh(context.Background(), token); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("Refresh(%q) = %v, want ErrInvalidRefreshToken", token, err)
		}
	}
}

func TestLogout_IsIdempotent(t *testing.T) {
	repo := newMemSessionRepo()
	clk := clock.NewFrozen(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	svc, ident := newTestService(t, repo, clk)

	pair, err := svc.CreateAndIssue(context.Background(), ident, domain.DeviceContext{})
	if err != nil {
		t.Fatalf("CreateAndIssue: %v", err)
	}
	if err := svc.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := svc.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("second Logout should be a no-op, got %v", err)
	}
	if err := svc.Logout(context.Background(), "garbage"); err != nil {
		t.Fatalf("Logout with garbage token should be a no-op, got %v", err)
	}
}

func TestRevokeAllForTenantSwitch(t *testing.T) {
	repo := newMemSessionRepo()
	clk := clock.NewFrozen(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	svc, ident := newTestService(t, repo, clk)

	first, err := svc.CreateAndIssue(context.Background(), ident, domain.DeviceContext{})
	if err != nil {
		t.Fatalf("CreateAndIssue: %v", err)
	}
	second, err := svc.CreateAndIssue(context.Background(), ident, domain.DeviceContext{})
	if err != nil {
		t.Fatalf("CreateAndIssue: %v", err)
	}

	if err := svc.RevokeAllForTenantSwitch(context.Background(), ident.UserID); err != nil {
		t.Fatalf("RevokeAllForTenantSwitch: %v", err)
	}
	for _, id := range []string{first.SessionID, second.SessionID} {
		sess, _ := repo.GetByID(context.Background(), id)
		if sess.RevokedAt == nil {
			t.Errorf("session %s should be revoked", id)
		}
		if sess.RevokedReason == nil || *sess.RevokedReason != domain.ReasonTenantSwitch {
			t.Errorf("session %s reason = %v, want tenant-switch", id, sess.RevokedReason)
		}
	}
}
