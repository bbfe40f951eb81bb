package service

import "crypto/rand"

// codeAlphabet deliberately excludes digits and lowercase; uppercase-only
// codes avoid 0/O and 1/l ambiguity when read from a mail client.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

const codeLength = 6

// GenerateCode returns a 6-character one-time code drawn from the uppercase
// alphabet. Uses crypto/rand for randomness.
func GenerateCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := make([]byte, codeLength)
	for i := 0; i < codeLength; i++ {
		s[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(s), nil
}
