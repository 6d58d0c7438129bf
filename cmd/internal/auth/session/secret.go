package session

import (
	"crypto/rand"
	"encoding/base64"

	"bazaar/cmd/security/token"
)

// newOpaqueSecret generates a random secret and its storage digest.
// The same shape serves both refresh tokens and CSRF secrets.
func newOpaqueSecret(nBytes int) (plain string, hashHex string, err error) {
	b := make([]byte, nBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}

	// URL-safe, no padding.
	plain = base64.RawURLEncoding.EncodeToString(b)

	hashHex = token.HashOpaqueTokenHex(plain) // 64 hex chars

	return plain, hashHex, nil
}
