package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// newRandomToken returns nBytes of entropy, URL-safe without padding.
func newRandomToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// challengeS256 derives the PKCE code challenge from a verifier (RFC 7636).
func challengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
