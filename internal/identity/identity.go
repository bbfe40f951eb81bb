// Package identity is the seam to the surrounding user/tenant system. The
// authentication core only looks users up, creates the tenant+user pair on
// signup, and marks emails verified; all other tenant and user rules live
// outside this module.
package identity

import (
	"context"

	"github.com/platformplatform/identity-core/internal/security"
)

// User is the minimal user shape the authentication core needs.
type User struct {
	ID            string
	TenantID      string
	Email         string
	Role          string
	FirstName     string
	LastName      string
	Title         string
	EmailVerified bool
}

// Snapshot converts the user into the claim set stamped on tokens.
func (u *User) Snapshot() security.IdentitySnapshot {
	return security.IdentitySnapshot{
		UserID:    u.ID,
		TenantID:  u.TenantID,
		Role:      u.Role,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Title:     u.Title,
	}
}

// Repository is the user/tenant lookup collaborator. Implementations live
// outside this module; lookups returning (nil, nil) mean not found.
type Repository interface {
	// GetUserByEmail returns the user owning email across tenants.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUserByID returns the user scoped to the tenant.
	GetUserByID(ctx context.Context, tenantID, userID string) (*User, error)
	// CreateTenantWithOwner creates a new tenant plus its owner user for a
	// signup completion and returns the owner.
	CreateTenantWithOwner(ctx context.Context, email string) (*User, error)
	// MarkEmailVerified records that the user proved control of their email.
	MarkEmailVerified(ctx context.Context, tenantID, userID string) error
}
