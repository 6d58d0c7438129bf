package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (bazaar.oauth_requests).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed exchange request store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create persists a new exchange request row.
func (s *PostgresStore) Create(ctx context.Context, req Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bazaar.oauth_requests (
			state, provider, code_verifier, redirect_to, client_ip,
			created_at, expires_at, used_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)
	`, req.State, string(req.Provider), req.CodeVerifier, req.RedirectTo, req.ClientIP, req.CreatedAt, req.ExpiresAt)
	return err
}

// Consume redeems a state exactly once.
//
// The single UPDATE..RETURNING is the one-time-use enforcement: a second
// caller with the same state finds used_at already set and gets no row.
func (s *PostgresStore) Consume(ctx context.Context, state string, now time.Time) (Request, error) {
	var req Request
	var provider string
	err := s.pool.QueryRow(ctx, `
		UPDATE bazaar.oauth_requests
		SET used_at = $2
		WHERE state = $1
		  AND used_at IS NULL
		  AND expires_at >= $2
		RETURNING state, provider, code_verifier, redirect_to, client_ip, created_at, expires_at, used_at
	`, state, now).Scan(
		&req.State,
		&provider,
		&req.CodeVerifier,
		&req.RedirectTo,
		&req.ClientIP,
		&req.CreatedAt,
		&req.ExpiresAt,
		&req.UsedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrInvalidState
	}
	if err != nil {
		return Request{}, err
	}
	req.Provider = Provider(provider)
	return req, nil
}

// PurgeExpired deletes rows past their expiry.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM bazaar.oauth_requests
		WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
