package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platformplatform/identity-core/internal/session/domain"
)

// MemoryRepository is an in-process Repository for development and tests. It
// mirrors the Postgres conditional-update semantics under a mutex.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*domain.Session)}
}

func (r *MemoryRepository) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, tenantID, userID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.TenantID == tenantID && s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *MemoryRepository) TryRotate(_ context.Context, sessionID, currentJti string, currentVersion int64, newJti string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.IsRevoked() || s.RefreshJti != currentJti || s.RefreshVersion != currentVersion {
		return false, nil
	}
	prev := s.RefreshJti
	s.PreviousJti = &prev
	s.RefreshJti = newJti
	s.RefreshVersion++
	s.ModifiedAt = now
	return true, nil
}

func (r *MemoryRepository) TryRevokeForReplay(_ context.Context, sessionID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.IsRevoked() {
		return false, nil
	}
	reason := domain.ReasonReplayDetected
	s.RevokedAt = &now
	s.RevokedReason = &reason
	return true, nil
}

func (r *MemoryRepository) Revoke(_ context.Context, sessionID string, now time.Time, reason domain.RevocationReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.IsRevoked() {
		return ErrAlreadyRevoked
	}
	s.RevokedAt = &now
	s.RevokedReason = &reason
	return nil
}

func (r *MemoryRepository) RevokeAllByUser(_ context.Context, userID string, now time.Time, reason domain.RevocationReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.UserID == userID && !s.IsRevoked() {
			at := now
			rsn := reason
			s.RevokedAt = &at
			s.RevokedReason = &rsn
		}
	}
	return nil
}
