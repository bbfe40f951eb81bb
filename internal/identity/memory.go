package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// MemoryRepository is an in-process Repository used in development and tests.
type MemoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*User // key tenantID/userID
	byEmail map[string]*User
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*User),
		byEmail: make(map[string]*User),
	}
}

// Add stores a user. For seeding tests and dev environments.
func (r *MemoryRepository) Add(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.byID[u.TenantID+"/"+u.ID] = &cp
	r.byEmail[strings.ToLower(u.Email)] = &cp
}

// GetUserByEmail returns the user owning email, or nil if absent.
func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// GetUserByID returns the user scoped to the tenant, or nil if absent.
func (r *MemoryRepository) GetUserByID(ctx context.Context, tenantID, userID string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[tenantID+"/"+userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// CreateTenantWithOwner creates a fresh tenant with one owner user.
func (r *MemoryRepository) CreateTenantWithOwner(ctx context.Context, email string) (*User, error) {
	u := &User{
		ID:            ulid.Make().String(),
		TenantID:      ulid.Make().String(),
		Email:         strings.ToLower(email),
		Role:          "owner",
		EmailVerified: true,
	}
	r.Add(u)
	return u, nil
}

// MarkEmailVerified flips the verified flag on an existing user.
func (r *MemoryRepository) MarkEmailVerified(ctx context.Context, tenantID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[tenantID+"/"+userID]; ok && !u.EmailVerified {
		u.EmailVerified = true
	}
	return nil
}
