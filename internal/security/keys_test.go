package security

import "testing"

func TestLoadKeyPair_InlinePEM(t *testing.T) {
	keys, err := LoadKeyPair(testPrivateKeyPEM, testPublicKeyPEM)
	if err != nil {
		t.Fatalf("LoadKeyPair: %v", err)
	}
	if keys.Private == nil || keys.Public == nil {
		t.Fatal("LoadKeyPair returned nil key")
	}
	if got := keys.Alg(); got != "RS256" {
		t.Errorf("Alg = %q, want RS256", got)
	}
}

func TestLoadKeyPair_Invalid(t *testing.T) {
	if _, err := LoadKeyPair("", ""); err == nil {
		t.Error("LoadKeyPair should reject empty specs")
	}
	if _, err := LoadKeyPair("-----BEGIN GARBAGE-----\nZm9v\n-----END GARBAGE-----", testPublicKeyPEM); err == nil {
		t.Error("LoadKeyPair should reject unknown PEM type")
	}
	if _, err := LoadKeyPair("/nonexistent/key.pem", testPublicKeyPEM); err == nil {
		t.Error("LoadKeyPair should fail on missing file path")
	}
}
