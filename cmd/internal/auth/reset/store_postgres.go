package reset

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists reset tokens in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "bazaar").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "bazaar"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

// Create inserts a new reset token record.
func (s *PostgresStore) Create(ctx context.Context, in CreateRecord) (Token, error) {
	if s == nil || s.pool == nil {
		return Token{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.TokenHash) == "" {
		return Token{}, ErrInvalidInput
	}

	resets := pgIdent(s.schema, "password_resets")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+resets+` (id, user_id, token_hash, created_at, expires_at, consumed_at)
		 VALUES ($1, $2, $3, $4, $5, NULL)`,
		in.ID, in.UserID, in.TokenHash, in.CreatedAt, in.ExpiresAt,
	)
	if err != nil {
		return Token{}, err
	}

	return Token{
		ID:        in.ID,
		UserID:    in.UserID,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
	}, nil
}

// Consume marks the token as spent if and only if it is still live. The
// UPDATE's WHERE clause is the single-use guarantee: two concurrent redeems
// race on the same row and exactly one matches.
func (s *PostgresStore) Consume(ctx context.Context, tokenHash string, now time.Time) (Token, error) {
	if s == nil || s.pool == nil {
		return Token{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return Token{}, ErrInvalidInput
	}

	resets := pgIdent(s.schema, "password_resets")
	var out Token
	err := s.pool.QueryRow(ctx,
		`UPDATE `+resets+`
		    SET consumed_at = $2
		  WHERE token_hash = $1
		    AND consumed_at IS NULL
		    AND expires_at > $2
		 RETURNING id, user_id, created_at, expires_at, consumed_at`,
		tokenHash, now,
	).Scan(&out.ID, &out.UserID, &out.CreatedAt, &out.ExpiresAt, &out.ConsumedAt)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Token{}, err
	}

	// Lost the race or the row is dead; classify for the caller.
	err = s.pool.QueryRow(ctx,
		`SELECT id, user_id, created_at, expires_at, consumed_at
		   FROM `+resets+`
		  WHERE token_hash = $1`,
		tokenHash,
	).Scan(&out.ID, &out.UserID, &out.CreatedAt, &out.ExpiresAt, &out.ConsumedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, err
	}
	return Token{}, ErrNotActive
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
