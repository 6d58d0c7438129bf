package reset

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"bazaar/cmd/security/token"
)

const (
	defaultTokenBytes = 32
	defaultTTL        = 30 * time.Minute
)

// Token represents a password reset token row. The plain secret is returned
// exactly once, by Issue.
type Token struct {
	ID         string
	UserID     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Service manages reset token issuance and redemption.
type Service struct {
	store      Store
	tokenBytes int
	ttl        time.Duration
}

// Option configures the Service.
type Option func(*Service) error

// WithTokenBytes sets the length of generated tokens in bytes.
func WithTokenBytes(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return ErrInvalidInput
		}
		s.tokenBytes = n
		return nil
	}
}

// WithTTL sets how long an issued token stays redeemable.
func WithTTL(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		s.ttl = d
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{store: store, tokenBytes: defaultTokenBytes, ttl: defaultTTL}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Issue creates a reset token for the user and returns the row plus the plain
// secret. Outstanding tokens for the same user stay valid until they expire;
// redemption of any one of them is still single-use.
func (s *Service) Issue(ctx context.Context, now time.Time, userID string) (Token, string, error) {
	if s == nil || s.store == nil {
		return Token{}, "", ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Token{}, "", err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Token{}, "", ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	plain, err := newOpaqueToken(s.tokenBytes)
	if err != nil {
		return Token{}, "", err
	}

	id, err := newULID(now)
	if err != nil {
		return Token{}, "", err
	}

	row, err := s.store.Create(ctx, CreateRecord{
		ID:        id,
		UserID:    userID,
		TokenHash: token.HashOpaqueTokenHex(plain),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return Token{}, "", err
	}
	return row, plain, nil
}

// Redeem spends the token. ErrNotFound for an unknown secret, ErrNotActive
// when it is expired or was already redeemed.
func (s *Service) Redeem(ctx context.Context, now time.Time, plain string) (Token, error) {
	if s == nil || s.store == nil {
		return Token{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	plain = strings.TrimSpace(plain)
	if plain == "" || len(plain) > 4096 {
		return Token{}, ErrNotFound
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return s.store.Consume(ctx, token.HashOpaqueTokenHex(plain), now)
}

func newOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = defaultTokenBytes
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func newULID(now time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
