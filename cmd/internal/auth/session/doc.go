// Package session implements Bazaar's session lifecycle.
//
// It provides a multi-device session model with refresh-token rotation,
// one-generation replay detection, a per-session CSRF secret, and
// per-session/per-user revocation.
//
// Access tokens are short-lived JWTs minted by cmd/internal/auth/token.
// Refresh and CSRF secrets are opaque random strings; only their digests are
// stored in Postgres (HMAC-SHA256 when BAZAAR_TOKEN_HMAC_KEY is set,
// otherwise SHA-256 for dev). Rotation mutates the session row in place with
// a conditional update so two concurrent refreshes cannot both succeed.
//
// Transport (HTTP cookies, headers) integration is intentionally out of
// scope here; see cmd/internal/auth/api.
package session
