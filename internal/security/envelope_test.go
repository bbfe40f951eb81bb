package security

import (
	"strings"
	"testing"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	e, err := NewTestEnvelope()
	if err != nil {
		t.Fatalf("NewTestEnvelope: %v", err)
	}
	sealed, err := e.Seal([]byte("correlation-1|fp-hash|tenant-1"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := e.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != "correlation-1|fp-hash|tenant-1" {
		t.Errorf("Open = %q", got)
	}
}

func TestEnvelope_RejectsTampering(t *testing.T) {
	e, err := NewTestEnvelope()
	if err != nil {
		t.Fatalf("NewTestEnvelope: %v", err)
	}
	sealed, err := e.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	flipped := []byte(sealed)
	last := len(flipped) - 1
	if flipped[last] == 'A' {
		flipped[last] = 'B'
	} else {
		flipped[last] = 'A'
	}
	if _, err := e.Open(string(flipped)); err == nil {
		t.Fatal("Open accepted a tampered envelope")
	}
}

func TestEnvelope_RejectsMalformedInput(t *testing.T) {
	e, err := NewTestEnvelope()
	if err != nil {
		t.Fatalf("NewTestEnvelope: %v", err)
	}
	for _, v := range []string{"", "!!!", "AAAA", strings.Repeat("A", 8)} {
		if _, err := e.Open(v); err == nil {
			t.Errorf("Open(%q) should fail", v)
		}
	}
}

func TestNewEnvelope_RejectsBadKeys(t *testing.T) {
	if _, err := NewEnvelope("not-hex"); err == nil {
		t.Error("NewEnvelope accepted a non-hex key")
	}
	if _, err := NewEnvelope("abcd"); err == nil {
		t.Error("NewEnvelope accepted a short key")
	}
}
