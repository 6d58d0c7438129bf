package reset

import (
	"context"
	"time"
)

// CreateRecord is a normalized reset-token insert payload.
type CreateRecord struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the persistence boundary for reset tokens.
type Store interface {
	// Create inserts a new token row.
	Create(ctx context.Context, in CreateRecord) (Token, error)

	// Consume atomically marks the token with the given digest as spent.
	// ErrNotFound for an unknown digest; ErrNotActive when the token is
	// expired or already consumed.
	Consume(ctx context.Context, tokenHash string, now time.Time) (Token, error)
}
