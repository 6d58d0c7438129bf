package session

import (
	"context"
	"net"
	"time"
)

// Platform represents the client platform associated with a session.
type Platform string

const (
	// PlatformWeb is a browser-based session.
	PlatformWeb Platform = "web"
	// PlatformIOS is an iOS native session.
	PlatformIOS Platform = "ios"
	// PlatformAndroid is an Android native session.
	PlatformAndroid Platform = "android"
	// PlatformDesktop is a desktop (macOS/Windows/Linux) session.
	PlatformDesktop Platform = "desktop"
	// PlatformUnknown is used when the client platform is not known.
	PlatformUnknown Platform = "unknown"
)

// DeviceContext describes the client device that owns a session.
type DeviceContext struct {
	Platform   Platform
	RememberMe bool
	UserAgent  string
	IP         net.IP
}

// Row mirrors the bazaar.sessions row used by the session subsystem.
//
// RefreshTokenHash changes on every successful rotation; the replaced digest
// moves into PreviousRefreshTokenHash, which exists only to detect reuse of
// the token that was just rotated out.
type Row struct {
	ID                       string
	UserID                   string
	RefreshTokenHash         string
	PreviousRefreshTokenHash *string
	RotationID               string
	CSRFTokenHash            string
	Quarantined              bool
	CreatedAt                time.Time
	LastSeenAt               *time.Time
	ExpiresAt                time.Time
	RevokedAt                *time.Time
	Platform                 Platform
}

// Store abstracts persistence for session state.
//
// Rotate and RotateCSRF are conditional updates: they succeed only when the
// stored digest still equals the one the caller read, which is what makes
// rotation safe against a concurrent refresh of the same token.
type Store interface {
	// Create creates a new session row and returns its ID.
	Create(
		ctx context.Context,
		now time.Time,
		userID string,
		dev DeviceContext,
		refreshHash string,
		csrfHash string,
		rotationID string,
		expiresAt time.Time,
	) (sessionID string, err error)

	// GetByID loads a session row by ID.
	GetByID(ctx context.Context, sessionID string) (Row, error)

	// GetByRefreshHash loads a session row by its current refresh digest.
	GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error)

	// GetByPreviousRefreshHash loads a session row whose rotated-out digest
	// matches. A hit means an already-replaced token was presented again.
	GetByPreviousRefreshHash(ctx context.Context, refreshHash string) (Row, error)

	// Rotate moves the current refresh digest into the previous slot and
	// installs the new digest and rotation ID, but only if the stored digest
	// still equals expectedHash. Returns ErrRotationConflict otherwise.
	Rotate(ctx context.Context, now time.Time, sessionID, expectedHash, newHash, rotationID string) error

	// RotateCSRF replaces the CSRF digest, but only if the stored digest
	// still equals expectedHash. Returns ErrRotationConflict otherwise.
	RotateCSRF(ctx context.Context, sessionID, expectedHash, newHash string) error

	// Touch updates last_seen_at for a session.
	Touch(ctx context.Context, now time.Time, sessionID string) error

	// Quarantine flags a session as compromised.
	Quarantine(ctx context.Context, sessionID string) error

	// Revoke revokes a single session.
	Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error

	// RevokeAll revokes all active sessions for a user.
	RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error
}
