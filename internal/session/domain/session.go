// Package domain holds the Session record and its refresh-chain rules.
package domain

import (
	"strings"
	"time"
)

// RefreshGracePeriod is how long the immediately-previous refresh token stays
// valid after a rotation. A client may have two requests in flight before it
// observes the first rotation's response; without this window every
// legitimate client-side refresh race would look like an attack.
const RefreshGracePeriod = 30 * time.Second

// RevocationReason records why a session was revoked.
type RevocationReason string

const (
	ReasonLoggedOut      RevocationReason = "logged-out"
	ReasonRevoked        RevocationReason = "revoked"
	ReasonReplayDetected RevocationReason = "replay-detected"
	ReasonTenantSwitch   RevocationReason = "tenant-switch"
)

// DeviceClass is the coarse device category derived from the user agent.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceUnknown DeviceClass = "unknown"
)

// DeviceClassFromUserAgent derives a DeviceClass from a raw user-agent
// string. Best-effort substring sniffing; anything unrecognized is unknown.
func DeviceClassFromUserAgent(userAgent string) DeviceClass {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return DeviceUnknown
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return DeviceTablet
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return DeviceTablet
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return DeviceMobile
	case strings.Contains(ua, "windows") || strings.Contains(ua, "macintosh") || strings.Contains(ua, "x11") || strings.Contains(ua, "linux"):
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}

// DeviceContext captures the request context a session was created from.
// Immutable after creation.
type DeviceContext struct {
	UserAgent string
	IPAddress string
}

// Session anchors a signed-in device/browser to a tenant/user and a refresh
// token chain. Exactly one refresh chain position is valid at any instant,
// except during the grace window after a rotation. The version counter only
// increases; it never resets.
type Session struct {
	ID             string
	TenantID       string
	UserID         string
	RefreshJti     string
	PreviousJti    *string // nil before the first rotation
	RefreshVersion int64
	DeviceClass    DeviceClass
	UserAgent      string
	IPAddress      string
	CreatedAt      time.Time
	ModifiedAt     time.Time // last rotation time
	RevokedAt      *time.Time
	RevokedReason  *RevocationReason
}

// IsRevoked reports whether the session has been revoked.
func (s *Session) IsRevoked() bool { return s.RevokedAt != nil }

// IsRefreshTokenValid reports whether a presented (jti, version) pair is
// acceptable at now: either it matches the current chain position, or it
// matches the previous position (version-1) and now is still inside the
// grace window after the last rotation. Anything else is a replay signal.
func (s *Session) IsRefreshTokenValid(jti string, version int64, now time.Time) bool {
	if s.IsRevoked() {
		return false
	}
	if jti == s.RefreshJti && version == s.RefreshVersion {
		return true
	}
	if s.PreviousJti != nil && jti == *s.PreviousJti && version == s.RefreshVersion-1 {
		return !now.After(s.ModifiedAt.Add(RefreshGracePeriod))
	}
	return false
}
