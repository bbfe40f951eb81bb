// Package provider wraps external identity providers behind one capability
// interface. New providers are added as new implementations registered in
// the Registry, never as branches inside the callback state machine.
package provider

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnknownProvider is returned by Registry.Get for an unregistered name.
var ErrUnknownProvider = errors.New("unknown identity provider")

// Tokens is the result of a successful authorization-code exchange.
type Tokens struct {
	AccessToken string
	IDToken     string
}

// Profile is the externally-asserted identity of the signed-in user.
type Profile struct {
	// ID is the provider-scoped stable user id.
	ID        string
	Email     string
	FirstName string
	LastName  string
	// EmailVerified reports whether the provider itself verified the email.
	// Unverified emails never complete a login.
	EmailVerified bool
	// Nonce is the nonce echoed back in the ID token, empty for providers
	// without OIDC nonce support.
	Nonce string
}

// AuthorizationRequest carries the per-attempt parameters for building the
// provider's authorization URL.
type AuthorizationRequest struct {
	RedirectURI   string
	State         string
	CodeChallenge string
	Nonce         string
}

// Provider is one external identity provider.
type Provider interface {
	Name() string
	BuildAuthorizationURL(req AuthorizationRequest) string
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*Tokens, error)
	FetchProfile(ctx context.Context, tokens *Tokens) (*Profile, error)
}

// Registry selects providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry returns a registry over the given providers.
func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// NewCodeVerifier returns a fresh PKCE code verifier.
func NewCodeVerifier() (string, error) {
	return generateToken(48)
}

// ComputeS256Challenge derives the S256 PKCE challenge from a verifier.
func ComputeS256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// NewNonce returns a fresh OIDC nonce.
func NewNonce() (string, error) {
	return generateToken(16)
}

func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
