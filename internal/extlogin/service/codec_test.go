package service

import (
	"testing"

	"github.com/platformplatform/identity-core/internal/security"
)

func TestCookieCodec_RoundTrip(t *testing.T) {
	env, err := security.NewTestEnvelope()
	if err != nil {
		t.Fatalf("NewTestEnvelope: %v", err)
	}

	cases := []cookiePayload{
		{CorrelationID: "corr-1", FingerprintHash: "fp-1"},
		{CorrelationID: "corr-2", FingerprintHash: "fp-2", TenantID: "tenant-9"},
	}
	for _, in := range cases {
		sealed, err := sealCookie(env, in)
		if err != nil {
			t.Fatalf("sealCookie(%+v): %v", in, err)
		}
		out, err := openCookie(env, sealed)
		if err != nil {
			t.Fatalf("openCookie: %v", err)
		}
		if out != in {
			t.Fatalf("round trip = %+v, want %+v", out, in)
		}
	}
}

func TestCookieCodec_RejectsTampered(t *testing.T) {
	env, _ := security.NewTestEnvelope()
	sealed, _ := sealCookie(env, cookiePayload{CorrelationID: "corr-1", FingerprintHash: "fp"})
	if _, err := openCookie(env, sealed+"x"); err == nil {
		t.Fatal("tampered cookie accepted")
	}
	if _, err := openCookie(env, "plainly-not-sealed"); err == nil {
		t.Fatal("unsealed cookie accepted")
	}
}

func TestStateCodec_RoundTrip(t *testing.T) {
	env, _ := security.NewTestEnvelope()
	sealed, err := sealState(env, "corr-42")
	if err != nil {
		t.Fatalf("sealState: %v", err)
	}
	id, err := openState(env, sealed)
	if err != nil || id != "corr-42" {
		t.Fatalf("openState = %q, %v", id, err)
	}
}
