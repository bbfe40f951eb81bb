// Package clock abstracts time for services that enforce expiry windows,
// cooldowns, and grace periods, so tests can freeze and advance time.
package clock

import "time"

// Clock returns the current time. All services take a Clock instead of
// calling time.Now directly.
type Clock interface {
	Now() time.Time
}

// System is a Clock backed by time.Now in UTC.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }

// Frozen is a Clock fixed at a settable instant. Not safe for concurrent
// Advance; intended for tests.
type Frozen struct {
	T time.Time
}

// NewFrozen returns a Frozen clock set to t.
func NewFrozen(t time.Time) *Frozen { return &Frozen{T: t} }

// Now returns the frozen instant.
func (f *Frozen) Now() time.Time { return f.T }

// Advance moves the frozen instant forward by d.
func (f *Frozen) Advance(d time.Duration) { f.T = f.T.Add(d) }
