package repository

import (
	"context"
	"sync"
	"time"

	"github.com/platformplatform/identity-core/internal/verification/domain"
)

// MemoryRepository is an in-process Repository for development and tests.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*domain.Verification
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*domain.Verification)}
}

func recordKey(flow domain.FlowType, id string) string { return string(flow) + "/" + id }

func (r *MemoryRepository) Create(_ context.Context, v *domain.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.records[recordKey(v.FlowType, v.ID)] = &cp
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, flow domain.FlowType, id string) (*domain.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.records[recordKey(flow, id)]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (r *MemoryRepository) GetNewestByEmail(_ context.Context, flow domain.FlowType, email string) (*domain.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.Verification
	for _, v := range r.records {
		if v.FlowType != flow || v.Email != email {
			continue
		}
		if newest == nil || v.CreatedAt.After(newest.CreatedAt) {
			newest = v
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (r *MemoryRepository) CountStartsSince(_ context.Context, flow domain.FlowType, email string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.records {
		if v.FlowType == flow && v.Email == email && !v.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) IncrementRetry(_ context.Context, flow domain.FlowType, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.records[recordKey(flow, id)]; ok && !v.Completed {
		v.RetryCount++
	}
	return nil
}

func (r *MemoryRepository) ReissueCode(_ context.Context, flow domain.FlowType, id, codeHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.records[recordKey(flow, id)]; ok && !v.Completed {
		v.CodeHash = codeHash
		v.ResendCount++
		v.ModifiedAt = now
	}
	return nil
}

func (r *MemoryRepository) TryComplete(_ context.Context, flow domain.FlowType, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.records[recordKey(flow, id)]
	if !ok || v.Completed {
		return false, nil
	}
	v.Completed = true
	v.ModifiedAt = now
	return true, nil
}
