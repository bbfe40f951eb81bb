package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/platformplatform/identity-core/internal/security"
)

// The state parameter and the correlation cookie are both sealed with the
// same AEAD envelope. The state carries only the correlation id; the cookie
// carries `correlationId|fingerprintHash[|preferredTenantId]`.

func sealState(env *security.Envelope, correlationID string) (string, error) {
	return env.Seal([]byte(correlationID))
}

func openState(env *security.Envelope, state string) (string, error) {
	b, err := env.Open(state)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type cookiePayload struct {
	CorrelationID   string
	FingerprintHash string
	TenantID        string
}

func sealCookie(env *security.Envelope, p cookiePayload) (string, error) {
	plain := p.CorrelationID + "|" + p.FingerprintHash
	if p.TenantID != "" {
		plain += "|" + p.TenantID
	}
	return env.Seal([]byte(plain))
}

func openCookie(env *security.Envelope, value string) (cookiePayload, error) {
	b, err := env.Open(value)
	if err != nil {
		return cookiePayload{}, err
	}
	parts := strings.Split(string(b), "|")
	if len(parts) < 2 || len(parts) > 3 {
		return cookiePayload{}, fmt.Errorf("malformed correlation cookie payload")
	}
	p := cookiePayload{CorrelationID: parts[0], FingerprintHash: parts[1]}
	if len(parts) == 3 {
		p.TenantID = parts[2]
	}
	return p, nil
}

// Fingerprint hashes the spoofable browser headers that tie a callback to
// the browser that started the flow. Best-effort only.
func Fingerprint(userAgent, acceptLanguage string) string {
	h := sha256.Sum256([]byte(userAgent + "\x00" + acceptLanguage))
	return hex.EncodeToString(h[:])
}
