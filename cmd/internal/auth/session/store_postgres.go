package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store using PostgreSQL (bazaar.sessions).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const rowColumns = `
	id, user_id, refresh_token_hash, previous_refresh_token_hash,
	rotation_id, csrf_token_hash, quarantined,
	created_at, last_seen_at, expires_at, revoked_at, platform
`

func scanRow(scan func(...any) error) (Row, error) {
	var row Row
	err := scan(
		&row.ID,
		&row.UserID,
		&row.RefreshTokenHash,
		&row.PreviousRefreshTokenHash,
		&row.RotationID,
		&row.CSRFTokenHash,
		&row.Quarantined,
		&row.CreatedAt,
		&row.LastSeenAt,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.Platform,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

// Create inserts a new session row and returns its ULID.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, userID string, dev DeviceContext, refreshHash, csrfHash, rotationID string, expiresAt time.Time) (string, error) {
	id := ulid.Make().String()

	var ip net.IP
	if dev.IP != nil {
		ip = dev.IP
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO bazaar.sessions (
			id, user_id, refresh_token_hash, previous_refresh_token_hash,
			rotation_id, csrf_token_hash, quarantined,
			created_at, last_seen_at, expires_at, revoked_at,
			user_agent, ip, platform, revocation_reason
		) VALUES (
			$1, $2, $3, NULL,
			$4, $5, FALSE,
			$6, $6, $7, NULL,
			$8, $9, $10, NULL
		)
	`, id, userID, refreshHash, rotationID, csrfHash, now, expiresAt, nullIfEmpty(dev.UserAgent), ip, string(dev.Platform))
	if err != nil {
		return "", err
	}

	return id, nil
}

// GetByID loads a session row by ID.
func (s *PostgresStore) GetByID(ctx context.Context, sessionID string) (Row, error) {
	return scanRow(s.pool.QueryRow(ctx, `
		SELECT `+rowColumns+`
		FROM bazaar.sessions
		WHERE id = $1
	`, sessionID).Scan)
}

// GetByRefreshHash loads a session row by its current refresh digest.
func (s *PostgresStore) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	return scanRow(s.pool.QueryRow(ctx, `
		SELECT `+rowColumns+`
		FROM bazaar.sessions
		WHERE refresh_token_hash = $1
	`, refreshHash).Scan)
}

// GetByPreviousRefreshHash loads a session row by its rotated-out digest.
func (s *PostgresStore) GetByPreviousRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	return scanRow(s.pool.QueryRow(ctx, `
		SELECT `+rowColumns+`
		FROM bazaar.sessions
		WHERE previous_refresh_token_hash = $1
	`, refreshHash).Scan)
}

// Rotate performs the refresh digest swap as one conditional update.
// A concurrent rotation of the same token makes the WHERE clause miss, and
// the caller treats that as the replay path.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, sessionID, expectedHash, newHash, rotationID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bazaar.sessions
		SET
			previous_refresh_token_hash = refresh_token_hash,
			refresh_token_hash = $3,
			rotation_id = $4,
			last_seen_at = $5
		WHERE id = $1
		  AND refresh_token_hash = $2
		  AND revoked_at IS NULL
		  AND NOT quarantined
	`, sessionID, expectedHash, newHash, rotationID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRotationConflict
	}
	return nil
}

// RotateCSRF replaces the CSRF digest conditionally.
func (s *PostgresStore) RotateCSRF(ctx context.Context, sessionID, expectedHash, newHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bazaar.sessions
		SET csrf_token_hash = $3
		WHERE id = $1
		  AND csrf_token_hash = $2
		  AND revoked_at IS NULL
	`, sessionID, expectedHash, newHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRotationConflict
	}
	return nil
}

// Touch updates last_seen_at for a session.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE bazaar.sessions
		SET last_seen_at = $2
		WHERE id = $1
	`, sessionID, now)
	return err
}

// Quarantine flags a session as compromised (idempotent).
func (s *PostgresStore) Quarantine(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE bazaar.sessions
		SET quarantined = TRUE
		WHERE id = $1
	`, sessionID)
	return err
}

// Revoke revokes a single session (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE bazaar.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE id = $1
	`, sessionID, now, reason)
	return err
}

// RevokeAll revokes all sessions for a user (idempotent).
func (s *PostgresStore) RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE bazaar.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1
	`, userID, now, reason)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
