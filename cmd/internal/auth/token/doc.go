// Package token issues and verifies Bazaar's short-lived JWT access tokens.
//
// One signing algorithm is configured per deployment (HS256 or RS256) and the
// declared header algorithm is pinned before any signature work, which closes
// algorithm-substitution attacks. RS256 verification keys come either from a
// static PEM public key or from a remote JWKS endpoint cached with a short TTL
// so keys can rotate without restarts.
package token
