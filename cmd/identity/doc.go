// Package identity implements Bazaar's user account foundation.
//
// It owns the users and user_identities tables: registration with Argon2id
// credentials, credential lookup for login, and find-or-create linking for
// third-party identities. Session state lives in cmd/internal/auth/session.
//
// This package is intentionally dependency-light and security-first.
package identity
