package token

import (
	"context"
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bazaar/cmd/internal/audit"
)

// AccessClaims is the identity envelope carried by access tokens.
type AccessClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Recorder receives audit events for verification failures.
// *audit.Recorder satisfies it; tests may inject a capture.
type Recorder interface {
	Record(ctx context.Context, e audit.Event)
}

// Manager signs and verifies access tokens with one configured algorithm.
type Manager struct {
	cfg    Config
	method jwt.SigningMethod

	hmacSecret []byte
	rsaPrivate *rsa.PrivateKey
	rsaPublic  *rsa.PublicKey

	keys *KeySetCache
	rec  Recorder
}

// Option configures optional Manager dependencies.
type Option func(*Manager)

// WithKeySetCache injects the JWKS cache (tests point it at a fake endpoint).
func WithKeySetCache(c *KeySetCache) Option {
	return func(m *Manager) { m.keys = c }
}

// WithRecorder wires verification-failure auditing.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.rec = r }
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Manager{cfg: cfg}

	switch cfg.Algorithm {
	case AlgHS256:
		m.method = jwt.SigningMethodHS256
		m.hmacSecret = cfg.Secret
	case AlgRS256:
		m.method = jwt.SigningMethodRS256
		priv, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, ErrConfig
		}
		m.rsaPrivate = priv
		if len(cfg.PublicKeyPEM) > 0 {
			pub, err := jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKeyPEM)
			if err != nil {
				return nil, ErrConfig
			}
			m.rsaPublic = pub
		}
	default:
		return nil, ErrConfig
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.keys == nil && cfg.JWKSURL != "" {
		m.keys = NewKeySetCache(cfg.JWKSURL, cfg.KeySetTTL, nil)
	}

	return m, nil
}

// Sign fills issuer/audience from configuration when absent, stamps iat and a
// fresh jti, and signs claims with the configured algorithm.
func (m *Manager) Sign(claims AccessClaims, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = m.cfg.AccessTTL
	}
	exp := now.Add(ttl)

	if claims.Issuer == "" {
		claims.Issuer = m.cfg.Issuer
	}
	if len(claims.Audience) == 0 && m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}
	if claims.Subject == "" {
		claims.Subject = claims.UserID
	}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	claims.ID = uuid.NewString()

	tok := jwt.NewWithClaims(m.method, claims)
	if m.cfg.KeyID != "" {
		tok.Header["kid"] = m.cfg.KeyID
	}

	var signed string
	var err error
	switch m.cfg.Algorithm {
	case AlgHS256:
		signed, err = tok.SignedString(m.hmacSecret)
	case AlgRS256:
		signed, err = tok.SignedString(m.rsaPrivate)
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Issue builds a standard session-bound access token.
func (m *Manager) Issue(userID, sessionID string, now time.Time) (string, time.Time, error) {
	return m.Sign(AccessClaims{UserID: userID, SessionID: sessionID}, now, m.cfg.AccessTTL)
}

// Verify checks tokenStr and returns its claims.
//
// Order of checks:
//  1. declared header algorithm must equal the configured algorithm
//     (before any signature work)
//  2. signature, resolving RS256 keys from static config or the JWKS cache
//     (kid-matching key first, then every remaining key)
//  3. expiry, then exact issuer and audience when configured
//
// Every failure other than expiry is audited with a detail code and safe
// metadata; the raw token never reaches the audit trail.
func (m *Manager) Verify(ctx context.Context, tokenStr string, now time.Time) (AccessClaims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenStr, &AccessClaims{})
	if err != nil {
		m.auditFailure(ctx, "invalid_signature", nil)
		return AccessClaims{}, ErrInvalidSignature
	}

	algHeader, _ := unverified.Header["alg"].(string)
	if algHeader != m.method.Alg() {
		m.auditFailure(ctx, "unexpected_algorithm", map[string]string{"alg": algHeader})
		return AccessClaims{}, ErrUnexpectedAlgorithm
	}

	claims, err := m.verifySignature(ctx, tokenStr, unverified, now)
	if err != nil {
		return AccessClaims{}, err
	}

	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(now.Add(-m.cfg.ClockSkew)) {
		// Expiry is not audited: routine and high-volume.
		return AccessClaims{}, ErrExpired
	}
	if m.cfg.Issuer != "" && claims.Issuer != m.cfg.Issuer {
		m.auditFailure(ctx, "invalid_issuer", nil)
		return AccessClaims{}, ErrInvalidIssuer
	}
	if m.cfg.Audience != "" && !containsAudience(claims.Audience, m.cfg.Audience) {
		m.auditFailure(ctx, "invalid_audience", nil)
		return AccessClaims{}, ErrInvalidAudience
	}

	return *claims, nil
}

// ClearKeyCache drops any cached remote key set (test and ops hook).
func (m *Manager) ClearKeyCache() {
	if m.keys != nil {
		m.keys.Clear()
	}
}

func (m *Manager) verifySignature(ctx context.Context, tokenStr string, unverified *jwt.Token, now time.Time) (*AccessClaims, error) {
	switch m.cfg.Algorithm {
	case AlgHS256:
		claims, err := m.parseWithKey(tokenStr, m.hmacSecret)
		if err != nil {
			m.auditFailure(ctx, "invalid_signature", nil)
			return nil, ErrInvalidSignature
		}
		return claims, nil

	case AlgRS256:
		if m.rsaPublic != nil {
			claims, err := m.parseWithKey(tokenStr, m.rsaPublic)
			if err == nil {
				return claims, nil
			}
		}
		if m.keys == nil {
			m.auditFailure(ctx, "invalid_signature", nil)
			return nil, ErrInvalidSignature
		}

		ks, err := m.keys.Get(ctx, now)
		if err != nil {
			m.auditFailure(ctx, "keyset_unavailable", nil)
			return nil, err
		}

		kid, _ := unverified.Header["kid"].(string)

		// Kid-matching key first; a stale cache during rotation then falls
		// back to trying every remaining key in the set.
		if pub, ok := ks.Keys[kid]; ok {
			if claims, err := m.parseWithKey(tokenStr, pub); err == nil {
				return claims, nil
			}
		}
		for id, pub := range ks.Keys {
			if id == kid {
				continue
			}
			if claims, err := m.parseWithKey(tokenStr, pub); err == nil {
				return claims, nil
			}
		}

		m.auditFailure(ctx, "invalid_signature", map[string]string{"kid": kid})
		return nil, ErrInvalidSignature
	}

	m.auditFailure(ctx, "invalid_signature", nil)
	return nil, ErrInvalidSignature
}

func (m *Manager) parseWithKey(tokenStr string, key any) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithoutClaimsValidation(), // expiry/issuer/audience checked explicitly by Verify
	).ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) auditFailure(ctx context.Context, code string, meta map[string]string) {
	if m.rec == nil {
		return
	}
	m.rec.Record(ctx, audit.Event{
		Action:   "auth.token.verify",
		Outcome:  audit.OutcomeUnauthorized,
		Detail:   code,
		Metadata: meta,
	})
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
