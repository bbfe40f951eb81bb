package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// ErrEnvelopeOpen is returned when a sealed value cannot be decrypted or
// fails authentication.
var ErrEnvelopeOpen = errors.New("cannot open envelope")

// Envelope seals small structured payloads (the login correlation cookie and
// the OAuth state blob) with AES-256-GCM. Output is base64url(nonce || ciphertext);
// the GCM tag authenticates the whole payload, so tampering fails Open.
type Envelope struct {
	aead cipher.AEAD
}

// NewEnvelope builds an Envelope from a hex-encoded 32-byte key.
func NewEnvelope(hexKey string) (*Envelope, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.New("envelope key must be hex")
	}
	if len(key) != 32 {
		return nil, errors.New("envelope key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Envelope{aead: aead}, nil
}

// Seal encrypts plaintext and returns a cookie-safe string.
func (e *Envelope) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Returns ErrEnvelopeOpen for any
// malformed, truncated, or tampered input.
func (e *Envelope) Open(value string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, ErrEnvelopeOpen
	}
	ns := e.aead.NonceSize()
	if len(raw) < ns {
		return nil, ErrEnvelopeOpen
	}
	plaintext, err := e.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, ErrEnvelopeOpen
	}
	return plaintext, nil
}
