package token

import (
	"os"
	"strings"
	"time"
)

// Algorithm is the closed set of supported signing algorithms.
// The set is small and fixed per deployment; there is no open registration.
type Algorithm string

const (
	// AlgHS256 signs with a shared HMAC secret.
	AlgHS256 Algorithm = "hs256"
	// AlgRS256 signs with an RSA private key; verification uses a static
	// public key or a remote JWKS key set.
	AlgRS256 Algorithm = "rs256"
)

// Config defines all runtime configuration for the token service.
//
// Exactly one algorithm is active. For HS256, Secret is required. For RS256,
// PrivateKeyPEM is required for signing and either PublicKeyPEM or JWKSURL is
// required for verification.
type Config struct {
	Algorithm Algorithm

	// Issuer and Audience are stamped into issued tokens and, when non-empty,
	// enforced exactly during verification.
	Issuer   string
	Audience string

	// AccessTTL defines the lifetime of access tokens.
	AccessTTL time.Duration

	// ClockSkew is the allowed time skew during validation.
	ClockSkew time.Duration

	// HS256 material.
	Secret []byte

	// RS256 material.
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte

	// JWKSURL enables remote key-set verification for RS256.
	JWKSURL string
	// KeySetTTL bounds how long a fetched key set is reused.
	KeySetTTL time.Duration
	// KeyID is the kid stamped into RS256 token headers.
	KeyID string
}

// DefaultConfig returns secure defaults suitable for development.
func DefaultConfig() Config {
	return Config{
		Algorithm: AlgHS256,
		Issuer:    "bazaar",
		Audience:  "bazaar-web",
		AccessTTL: 15 * time.Minute,
		ClockSkew: 30 * time.Second,
		KeySetTTL: 5 * time.Minute,
	}
}

// LoadConfigFromEnv loads token configuration from environment variables.
//
// Required:
//   - BAZAAR_AUTH_JWT_SECRET (hs256) or BAZAAR_AUTH_JWT_PRIVATE_KEY_PEM (rs256)
//
// Optional:
//   - BAZAAR_AUTH_JWT_ALG (hs256|rs256)
//   - BAZAAR_AUTH_ISSUER, BAZAAR_AUTH_AUDIENCE
//   - BAZAAR_AUTH_ACCESS_TTL, BAZAAR_AUTH_CLOCK_SKEW (Go durations)
//   - BAZAAR_AUTH_JWT_PUBLIC_KEY_PEM, BAZAAR_AUTH_JWKS_URL,
//     BAZAAR_AUTH_JWKS_TTL, BAZAAR_AUTH_JWT_KEY_ID
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	switch strings.ToLower(strings.TrimSpace(os.Getenv("BAZAAR_AUTH_JWT_ALG"))) {
	case "", "hs256":
		cfg.Algorithm = AlgHS256
	case "rs256":
		cfg.Algorithm = AlgRS256
	default:
		return Config{}, ErrConfig
	}

	if v := os.Getenv("BAZAAR_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv("BAZAAR_AUTH_AUDIENCE"); v != "" {
		cfg.Audience = v
	}

	if v := os.Getenv("BAZAAR_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTTL = d
	}

	if v := os.Getenv("BAZAAR_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("BAZAAR_AUTH_JWKS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.KeySetTTL = d
	}

	cfg.Secret = []byte(strings.TrimSpace(os.Getenv("BAZAAR_AUTH_JWT_SECRET")))
	cfg.PrivateKeyPEM = []byte(os.Getenv("BAZAAR_AUTH_JWT_PRIVATE_KEY_PEM"))
	cfg.PublicKeyPEM = []byte(os.Getenv("BAZAAR_AUTH_JWT_PUBLIC_KEY_PEM"))
	cfg.JWKSURL = strings.TrimSpace(os.Getenv("BAZAAR_AUTH_JWKS_URL"))
	cfg.KeyID = strings.TrimSpace(os.Getenv("BAZAAR_AUTH_JWT_KEY_ID"))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AccessTTL <= 0 {
		return ErrConfig
	}
	switch c.Algorithm {
	case AlgHS256:
		if len(c.Secret) < 32 {
			return ErrConfig
		}
	case AlgRS256:
		if len(c.PrivateKeyPEM) == 0 {
			return ErrConfig
		}
		if len(c.PublicKeyPEM) == 0 && c.JWKSURL == "" {
			return ErrConfig
		}
	default:
		return ErrConfig
	}
	return nil
}
