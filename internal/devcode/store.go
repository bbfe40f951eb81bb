// Package devcode provides an in-memory store for plain one-time codes,
// used only when code return mode is enabled for local development. The
// server refuses to enable it in production.
package devcode

import (
	"sync"
	"time"

	"github.com/platformplatform/identity-core/internal/clock"
	"github.com/platformplatform/identity-core/internal/verification/domain"
)

// Store holds plain codes by (flow, verification id) for dev-only retrieval.
type Store interface {
	// Put stores code for the verification until expiresAt.
	Put(flow domain.FlowType, id, code string, expiresAt time.Time)
	// Get returns the code if present and not expired.
	Get(flow domain.FlowType, id string) (code string, ok bool)
}

type key struct {
	flow domain.FlowType
	id   string
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu    sync.RWMutex
	m     map[key]entry
	clock clock.Clock
}

// NewMemoryStore returns a new in-memory dev code store.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.System{}
	}
	return &MemoryStore{m: make(map[key]entry), clock: c}
}

func (s *MemoryStore) Put(flow domain.FlowType, id, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key{flow, id}] = entry{code: code, expiresAt: expiresAt}
}

func (s *MemoryStore) Get(flow domain.FlowType, id string) (string, bool) {
	k := key{flow, id}
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.clock.Now()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}
