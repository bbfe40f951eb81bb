package repository

import (
	"context"
	"sync"

	"github.com/platformplatform/identity-core/internal/extlogin/domain"
)

// MemoryRepository is an in-process Repository for development and tests. It
// mirrors the first-writer-wins TryConsume semantics under a mutex.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*domain.Correlation
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*domain.Correlation)}
}

func (r *MemoryRepository) Create(_ context.Context, c *domain.Correlation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.records[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Correlation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) TryConsume(_ context.Context, id string, result domain.Outcome) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.records[id]
	if !ok || c.Consumed {
		return false, nil
	}
	c.Consumed = true
	c.Result = string(result)
	return true, nil
}
