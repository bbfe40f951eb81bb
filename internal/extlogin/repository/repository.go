// Package repository persists external-login correlation records.
package repository

import (
	"context"

	"github.com/platformplatform/identity-core/internal/extlogin/domain"
)

// Repository defines persistence for correlations. Consumption is a
// first-writer-wins conditional update; no other write mutates a record
// after creation.
type Repository interface {
	Create(ctx context.Context, c *domain.Correlation) error
	// GetByID returns the correlation, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Correlation, error)
	// TryConsume atomically marks the record consumed with the given result.
	// Returns false when another writer already consumed it; callers treat
	// that as a tolerated no-op for failures and as a lost race for success.
	TryConsume(ctx context.Context, id string, result domain.Outcome) (bool, error)
}
