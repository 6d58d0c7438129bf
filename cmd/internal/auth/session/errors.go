package session

import "errors"

var (
	// ErrSessionNotFound is returned when a session ID or refresh token does
	// not match any session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session is expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked is returned when the session has been revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrSessionQuarantined is returned when a quarantined session presents a
	// credential. The caller sees a generic 401; all of the user's sessions
	// are revoked.
	ErrSessionQuarantined = errors.New("session quarantined")

	// ErrRefreshReuseDetected is returned when a rotated-out refresh token is
	// presented again, or when a rotation loses its conditional update.
	// All of the user's sessions are revoked before this is returned.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	// ErrRotationConflict is returned by Store.Rotate when the conditional
	// update matched no row: the refresh hash changed between read and write.
	ErrRotationConflict = errors.New("session rotation conflict")

	// ErrCSRFMismatch is returned when the presented CSRF value does not match
	// the session's current secret.
	ErrCSRFMismatch = errors.New("csrf token mismatch")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
