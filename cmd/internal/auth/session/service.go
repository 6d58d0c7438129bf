package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"bazaar/cmd/internal/audit"
	"bazaar/cmd/security/token"
)

// AccessTokenManager mints and verifies the short-lived access tokens bound
// to a session. *token.Manager from cmd/internal/auth/token satisfies it.
type AccessTokenManager interface {
	Issue(userID, sessionID string, now time.Time) (string, time.Time, error)
}

// Recorder receives audit events for replay and CSRF incidents.
type Recorder interface {
	Record(ctx context.Context, e audit.Event)
}

// Service implements the high-level session operations for Bazaar.
//
// It issues sessions (access + refresh + CSRF secrets), performs refresh
// rotation with replay detection, verifies and rotates CSRF secrets, and
// supports per-session and per-user revocation.
type Service struct {
	cfg    Config
	tokens AccessTokenManager
	store  Store
	rec    Recorder
}

// Issued is the result of issuing or rotating a session.
//
// RefreshToken and CSRFToken carry raw secrets exactly once; only their
// digests are persisted. CSRFToken is empty on rotation, which keeps the
// session's existing CSRF secret.
type Issued struct {
	SessionID    string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
	CSRFToken    string
}

// NewService constructs a Service with the provided configuration, store, and
// token manager. rec may be nil, disabling incident auditing.
func NewService(cfg Config, store Store, tokens AccessTokenManager, rec Recorder) *Service {
	return &Service{cfg: cfg, store: store, tokens: tokens, rec: rec}
}

func (s *Service) refreshTTL(dev DeviceContext) time.Duration {
	switch dev.Platform {
	case PlatformWeb:
		return s.cfg.RefreshTTLWeb
	case PlatformIOS, PlatformAndroid, PlatformDesktop:
		if dev.RememberMe {
			return s.cfg.RefreshTTLNative
		}
		return s.cfg.RefreshTTLNativeShort
	default:
		// Conservative default.
		return s.cfg.RefreshTTLWeb
	}
}

// Issue creates a new session row and returns fresh secrets.
//
// Refresh and CSRF tokens are opaque random strings and must never be
// persisted in plaintext; only their hex digests reach the database.
func (s *Service) Issue(ctx context.Context, now time.Time, userID string, dev DeviceContext) (Issued, error) {
	refreshPlain, refreshHash, err := newOpaqueSecret(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}
	csrfPlain, csrfHash, err := newOpaqueSecret(s.cfg.CSRFTokenBytes)
	if err != nil {
		return Issued{}, err
	}

	refreshExp := now.Add(s.refreshTTL(dev))
	rotationID := ulid.Make().String()

	sessionID, err := s.store.Create(ctx, now, userID, dev, refreshHash, csrfHash, rotationID, refreshExp)
	if err != nil {
		return Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.Issue(userID, sessionID, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:    sessionID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshPlain,
		RefreshExp:   refreshExp,
		CSRFToken:    csrfPlain,
	}, nil
}

// Rotate exchanges a valid refresh token for a new one, in place.
//
// Security model:
//   - A digest hit on previous_refresh_token_hash means an already-replaced
//     token came back: quarantine the session, revoke every session for the
//     user, and return ErrRefreshReuseDetected.
//   - A quarantined session presenting any credential revokes every session
//     for the user.
//   - The digest swap itself is a single conditional update. When two
//     concurrent refreshes race on the same token, exactly one wins; the
//     loser is handled as reuse.
func (s *Service) Rotate(ctx context.Context, now time.Time, refreshTokenPlain string, dev DeviceContext) (Issued, error) {
	refreshTokenPlain = strings.TrimSpace(refreshTokenPlain)
	// Basic sanity bounds to avoid pathological inputs.
	if refreshTokenPlain == "" || len(refreshTokenPlain) > 4096 {
		return Issued{}, ErrSessionNotFound
	}

	// Hash in-memory; the plain token never reaches the store.
	refreshHash := token.HashOpaqueTokenHex(refreshTokenPlain)

	row, err := s.store.GetByRefreshHash(ctx, refreshHash)
	if errors.Is(err, ErrSessionNotFound) {
		prev, prevErr := s.store.GetByPreviousRefreshHash(ctx, refreshHash)
		if prevErr == nil {
			return Issued{}, s.handleReuse(ctx, now, prev, "previous_hash_presented")
		}
		return Issued{}, ErrSessionNotFound
	}
	if err != nil {
		return Issued{}, err
	}

	if row.Quarantined {
		if err := s.store.RevokeAll(ctx, now, row.UserID, "quarantine"); err != nil {
			return Issued{}, err
		}
		s.auditIncident(ctx, "auth.session.quarantined", row, "quarantined_session_presented_refresh")
		return Issued{}, ErrSessionQuarantined
	}
	if row.RevokedAt != nil {
		return Issued{}, ErrSessionRevoked
	}
	if !row.ExpiresAt.After(now) {
		return Issued{}, ErrSessionExpired
	}

	newRefreshPlain, newRefreshHash, err := newOpaqueSecret(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}
	rotationID := ulid.Make().String()

	err = s.store.Rotate(ctx, now, row.ID, refreshHash, newRefreshHash, rotationID)
	if errors.Is(err, ErrRotationConflict) {
		// The stored digest moved between read and write: a concurrent
		// rotation already consumed this token.
		return Issued{}, s.handleReuse(ctx, now, row, "rotation_conflict")
	}
	if err != nil {
		return Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.Issue(row.UserID, row.ID, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:    row.ID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newRefreshPlain,
		RefreshExp:   row.ExpiresAt,
	}, nil
}

// handleReuse is the replay path: quarantine the session, revoke everything
// the user has, audit, and surface ErrRefreshReuseDetected.
func (s *Service) handleReuse(ctx context.Context, now time.Time, row Row, detail string) error {
	if err := s.store.Quarantine(ctx, row.ID); err != nil {
		return err
	}
	if err := s.store.RevokeAll(ctx, now, row.UserID, "refresh_reuse"); err != nil {
		return err
	}
	s.auditIncident(ctx, "auth.session.replay", row, detail)
	return ErrRefreshReuseDetected
}

// CheckSession ensures the session backing verified claims is still live.
// It is the server-authoritative half of access-token validation and honors
// revocations that a signed token cannot know about.
func (s *Service) CheckSession(ctx context.Context, now time.Time, sessionID, userID string) (Row, error) {
	row, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return Row{}, err
	}
	if row.UserID != userID {
		return Row{}, ErrSessionNotFound
	}
	if row.RevokedAt != nil || row.Quarantined {
		return Row{}, ErrSessionRevoked
	}
	if !row.ExpiresAt.After(now) {
		return Row{}, ErrSessionExpired
	}
	return row, nil
}

// VerifyCSRF compares a presented CSRF value against the session's stored
// digest and, on success, rotates the secret. The returned raw value replaces
// the client's copy, so a leaked value is good for at most one request. The
// returned expiry is the session's refresh expiry; the fresh cookie lives
// exactly as long as the refresh cookie.
func (s *Service) VerifyCSRF(ctx context.Context, sessionID, presented string) (string, time.Time, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" || len(presented) > 4096 {
		return "", time.Time{}, ErrCSRFMismatch
	}

	row, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return "", time.Time{}, err
	}
	if row.RevokedAt != nil || row.Quarantined {
		return "", time.Time{}, ErrSessionRevoked
	}

	if !token.EqualHex(token.HashOpaqueTokenHex(presented), row.CSRFTokenHash) {
		s.auditIncident(ctx, "auth.csrf.fail", row, "token_mismatch")
		return "", time.Time{}, ErrCSRFMismatch
	}

	newPlain, newHash, err := newOpaqueSecret(s.cfg.CSRFTokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	err = s.store.RotateCSRF(ctx, sessionID, row.CSRFTokenHash, newHash)
	if errors.Is(err, ErrRotationConflict) {
		// A concurrent request rotated first; the presented value is spent.
		return "", time.Time{}, ErrCSRFMismatch
	}
	if err != nil {
		return "", time.Time{}, err
	}

	return newPlain, row.ExpiresAt, nil
}

// VerifyCSRFByRefreshToken runs the CSRF check for the session that currently
// owns the presented refresh token. It exists for the cookie refresh path,
// where the guard must pass before any rotation happens. A refresh token that
// matches no current digest returns ErrSessionNotFound so the caller can let
// Rotate classify it (replayed tokens must still trigger quarantine).
func (s *Service) VerifyCSRFByRefreshToken(ctx context.Context, refreshTokenPlain, presented string) (string, time.Time, error) {
	refreshTokenPlain = strings.TrimSpace(refreshTokenPlain)
	if refreshTokenPlain == "" || len(refreshTokenPlain) > 4096 {
		return "", time.Time{}, ErrSessionNotFound
	}

	row, err := s.store.GetByRefreshHash(ctx, token.HashOpaqueTokenHex(refreshTokenPlain))
	if err != nil {
		return "", time.Time{}, err
	}
	return s.VerifyCSRF(ctx, row.ID, presented)
}

// Revoke revokes a single session by ID (e.g., logout from a device).
func (s *Service) Revoke(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Revoke(ctx, now, sessionID, "logout")
}

// RevokeAllForUser revokes all sessions for a user (e.g., logout everywhere).
func (s *Service) RevokeAllForUser(ctx context.Context, now time.Time, userID string) error {
	return s.store.RevokeAll(ctx, now, userID, "logout")
}

// Touch updates last_seen_at for a session (best-effort).
func (s *Service) Touch(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Touch(ctx, now, sessionID)
}

func (s *Service) auditIncident(ctx context.Context, action string, row Row, detail string) {
	if s.rec == nil {
		return
	}
	outcome := audit.OutcomeUnauthorized
	if action == "auth.csrf.fail" {
		outcome = audit.OutcomeFailure
	}
	s.rec.Record(ctx, audit.Event{
		Action:     action,
		ActorID:    row.UserID,
		Resource:   "session",
		ResourceID: row.ID,
		Outcome:    outcome,
		Detail:     detail,
	})
}
