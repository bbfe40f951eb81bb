package security

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies one-time codes using bcrypt. bcrypt embeds a
// per-hash salt, so equal codes never produce equal hashes.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). One-time
// codes are short-lived and attempt-limited, so cost 10 is sufficient.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of code suitable for storage.
func (h *Hasher) Hash(code string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(code), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify compares code against the stored hash in constant time. Returns nil
// on match; bcrypt.ErrMismatchedHashAndPassword (or a hash-format error)
// otherwise. nil means the code is CORRECT — callers must treat a non-nil
// error as the failure branch.
func (h *Hasher) Verify(hash, code string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
}
