package oauth

import (
	"context"
	"net"
	"time"
)

// Request mirrors the bazaar.oauth_requests row: one started exchange.
type Request struct {
	State        string
	Provider     Provider
	CodeVerifier string
	RedirectTo   string
	ClientIP     net.IP
	CreatedAt    time.Time
	ExpiresAt    time.Time
	UsedAt       *time.Time
}

// Store abstracts persistence for exchange requests.
//
// Consume must be atomic: of any number of concurrent callbacks presenting
// the same state, at most one may receive the row.
type Store interface {
	// Create persists a new exchange request.
	Create(ctx context.Context, req Request) error

	// Consume marks the unused, unexpired row for state as used and returns
	// it. ErrInvalidState when no such row exists.
	Consume(ctx context.Context, state string, now time.Time) (Request, error)

	// PurgeExpired deletes rows past their expiry (housekeeping).
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
