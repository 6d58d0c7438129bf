package token

import "errors"

// Verification failures surfaced to callers. Handlers map all of these to a
// generic 401; the specific code goes to the audit trail only.
var (
	// ErrExpired is returned for structurally valid tokens past their expiry.
	ErrExpired = errors.New("token expired")

	// ErrInvalidSignature covers malformed tokens and signature mismatches.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrInvalidIssuer is returned when the iss claim does not match configuration.
	ErrInvalidIssuer = errors.New("invalid token issuer")

	// ErrInvalidAudience is returned when the aud claim does not match configuration.
	ErrInvalidAudience = errors.New("invalid token audience")

	// ErrUnexpectedAlgorithm is returned when the declared header algorithm
	// differs from the configured one. Checked before any signature work.
	ErrUnexpectedAlgorithm = errors.New("unexpected signing algorithm")

	// ErrKeySetUnavailable is returned when the remote key set cannot be
	// fetched; verification fails closed rather than being skipped.
	ErrKeySetUnavailable = errors.New("key set unavailable")

	// ErrConfig is returned for invalid token service configuration.
	ErrConfig = errors.New("invalid token config")
)
