package repository

import (
	"context"
	"time"

	"github.com/platformplatform/identity-core/internal/verification/domain"
)

// Repository defines persistence for verification records. Records are
// scoped by (flow type, id); an id from one flow never resolves in another.
type Repository interface {
	Create(ctx context.Context, v *domain.Verification) error
	// GetByID returns the record, or nil if not found in this flow.
	GetByID(ctx context.Context, flow domain.FlowType, id string) (*domain.Verification, error)
	// GetNewestByEmail returns the most recent record for the email in this
	// flow, completed or not, or nil if none exists.
	GetNewestByEmail(ctx context.Context, flow domain.FlowType, email string) (*domain.Verification, error)
	// CountStartsSince counts records created for the email in this flow
	// since the given instant. Backs the rolling 24h start cap.
	CountStartsSince(ctx context.Context, flow domain.FlowType, email string, since time.Time) (int, error)
	// IncrementRetry adds one failed validation attempt.
	IncrementRetry(ctx context.Context, flow domain.FlowType, id string) error
	// ReissueCode swaps in a fresh code hash, bumps the resend counter, and
	// stamps modified-at. Refused on completed records.
	ReissueCode(ctx context.Context, flow domain.FlowType, id, codeHash string, now time.Time) error
	// TryComplete sets the set-once completed flag. Returns false when the
	// record was already completed; only the first writer wins.
	TryComplete(ctx context.Context, flow domain.FlowType, id string, now time.Time) (bool, error)
}
