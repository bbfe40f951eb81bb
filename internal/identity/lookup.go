package identity

import (
	"context"
	"fmt"

	"github.com/platformplatform/identity-core/internal/security"
)

// Lookup adapts a Repository to the snapshot lookup used at token refresh
// time.
type Lookup struct {
	Repo Repository
}

// Snapshot returns the current claim set for the user. A missing user is an
// error: tokens must never be minted for identities that no longer exist.
func (l Lookup) Snapshot(ctx context.Context, tenantID, userID string) (security.IdentitySnapshot, error) {
	u, err := l.Repo.GetUserByID(ctx, tenantID, userID)
	if err != nil {
		return security.IdentitySnapshot{}, err
	}
	if u == nil {
		return security.IdentitySnapshot{}, fmt.Errorf("user %s not found in tenant %s", userID, tenantID)
	}
	return u.Snapshot(), nil
}
