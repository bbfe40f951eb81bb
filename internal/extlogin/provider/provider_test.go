package provider

import (
	"strings"
	"testing"
)

func TestComputeS256Challenge_RFC7636Vector(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := ComputeS256Challenge(verifier); got != want {
		t.Fatalf("ComputeS256Challenge = %q, want %q", got, want)
	}
}

func TestNewCodeVerifier_LengthAndUniqueness(t *testing.T) {
	a, err := NewCodeVerifier()
	if err != nil {
		t.Fatalf("NewCodeVerifier: %v", err)
	}
	b, err := NewCodeVerifier()
	if err != nil {
		t.Fatalf("NewCodeVerifier: %v", err)
	}
	if len(a) != 96 { // 48 random bytes, hex encoded
		t.Fatalf("verifier length = %d, want 96", len(a))
	}
	if a == b {
		t.Fatal("verifiers must be unique")
	}
}

func TestRegistry_Get(t *testing.T) {
	google := NewGoogle("id", "secret", nil)
	registry := NewRegistry(google)

	p, err := registry.Get("google")
	if err != nil || p.Name() != "google" {
		t.Fatalf("Get(google) = %v, %v", p, err)
	}
	if _, err := registry.Get("gitlab"); err == nil {
		t.Fatal("unknown provider must error")
	}
}

func TestGoogle_BuildAuthorizationURL(t *testing.T) {
	google := NewGoogle("client-1", "secret", nil)
	u := google.BuildAuthorizationURL(AuthorizationRequest{
		RedirectURI:   "https://app.example.com/callback",
		State:         "opaque-state",
		CodeChallenge: "challenge",
		Nonce:         "nonce-1",
	})
	for _, want := range []string{
		"client_id=client-1",
		"code_challenge=challenge",
		"code_challenge_method=S256",
		"nonce=nonce-1",
		"state=opaque-state",
		"scope=openid+email+profile",
	} {
		if !strings.Contains(u, want) {
			t.Fatalf("authorization URL %q missing %q", u, want)
		}
	}
}

func TestSplitName(t *testing.T) {
	cases := []struct {
		in          string
		first, last string
	}{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Ada", "Ada", ""},
		{"Grace Brewster Murray Hopper", "Grace", "Brewster Murray Hopper"},
		{"  ", "", ""},
	}
	for _, c := range cases {
		first, last := splitName(c.in)
		if first != c.first || last != c.last {
			t.Errorf("splitName(%q) = (%q, %q), want (%q, %q)", c.in, first, last, c.first, c.last)
		}
	}
}
