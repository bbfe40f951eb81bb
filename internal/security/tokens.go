package security

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned when a token is malformed, expired, or fails
// signature, issuer, or audience checks.
var ErrInvalidToken = errors.New("invalid token")

// IdentitySnapshot is the user identity captured at issuance time. Access
// tokens carry the full snapshot; consumers must tolerate up to the access
// TTL of staleness after a role or tenant change.
type IdentitySnapshot struct {
	UserID    string
	TenantID  string
	Role      string
	Email     string
	FirstName string
	LastName  string
	Title     string
}

// AccessClaims holds JWT claims for the short-lived access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	TenantID  string `json:"tenant_id"`
	Role      string `json:"role"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Title     string `json:"title,omitempty"`
	SessionID string `json:"sid"`
}

// RefreshClaims holds JWT claims for the long-lived refresh token. The claim
// set is deliberately minimal (sub, tenant_id, sid, jti, ver): already-issued
// refresh tokens live for months, so this shape must stay backward compatible.
type RefreshClaims struct {
	jwt.RegisteredClaims
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"sid"`
	Version   int64  `json:"ver"`
}

// TokenProvider issues and validates JWT access and refresh tokens signed
// with RS256 or ES256.
type TokenProvider struct {
	keys      *KeyPair
	issuer    string
	audience  string
	accessTTL time.Duration
}

// NewTokenProvider returns a TokenProvider signing with the given key pair.
// issuer and audience are set on claims and checked on validation.
func NewTokenProvider(keys *KeyPair, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		keys:      keys,
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
	}
}

// NewJTI returns a fresh token identifier.
func NewJTI() string { return uuid.New().String() }

// IssueAccess issues a short-lived access token for the snapshot, bound to
// sessionID. Access tokens cannot be revoked before expiry.
func (p *TokenProvider) IssueAccess(identity IdentitySnapshot, sessionID string, now time.Time) (token string, expiresAt time.Time, err error) {
	now = now.UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        NewJTI(),
			Subject:   identity.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID:  identity.TenantID,
		Role:      identity.Role,
		Email:     identity.Email,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		Title:     identity.Title,
		SessionID: sessionID,
	}
	token, err = p.sign(claims)
	return token, expiresAt, err
}

// IssueRefresh issues a refresh token bound to the session's current chain
// position (jti, version). expiresAt is passed in, not derived, so rotation
// keeps the chain's original expiry instead of extending it forever.
func (p *TokenProvider) IssueRefresh(identity IdentitySnapshot, sessionID, jti string, version int64, expiresAt time.Time, now time.Time) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   identity.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now.UTC()),
			ExpiresAt: jwt.NewNumericDate(expiresAt.UTC()),
		},
		TenantID:  identity.TenantID,
		SessionID: sessionID,
		Version:   version,
	}
	return p.sign(claims)
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.keys.Private.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.keys.Private)
}

func (p *TokenProvider) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		return p.keys.Public, nil
	default:
		return nil, ErrInvalidToken
	}
}

// ValidateAccess parses and validates an access token (signature, exp, iss, aud).
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, p.keyFunc,
		jwt.WithIssuer(p.issuer), jwt.WithAudience(p.audience))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateRefresh parses and validates a refresh token (signature, exp, iss, aud).
// The claims are a bearer capability only; the session row remains the source
// of truth and the caller must check jti and version against it.
func (p *TokenProvider) ValidateRefresh(tokenString string) (*RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, p.keyFunc,
		jwt.WithIssuer(p.issuer), jwt.WithAudience(p.audience))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" || claims.ID == "" || claims.Version < 1 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
