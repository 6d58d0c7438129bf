package session

import (
	"os"
	"strconv"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls refresh-token TTL policies per platform and the entropy size of
// the opaque refresh and CSRF secrets. Access-token parameters live with the
// token manager, not here.
type Config struct {
	// Refresh token TTL policies per platform.
	RefreshTTLWeb         time.Duration
	RefreshTTLNative      time.Duration
	RefreshTTLNativeShort time.Duration

	// RefreshTokenBytes defines the number of random bytes used
	// to generate opaque refresh tokens.
	RefreshTokenBytes int

	// CSRFTokenBytes defines the number of random bytes used
	// to generate per-session CSRF secrets.
	CSRFTokenBytes int
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		RefreshTTLWeb:         7 * 24 * time.Hour,
		RefreshTTLNative:      60 * 24 * time.Hour,
		RefreshTTLNativeShort: 14 * 24 * time.Hour,
		RefreshTokenBytes:     32,
		CSRFTokenBytes:        32,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - BAZAAR_AUTH_REFRESH_TTL_WEB
//   - BAZAAR_AUTH_REFRESH_TTL_NATIVE
//   - BAZAAR_AUTH_REFRESH_TTL_NATIVE_SHORT
//   - BAZAAR_AUTH_REFRESH_TOKEN_BYTES
//   - BAZAAR_AUTH_CSRF_TOKEN_BYTES
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("BAZAAR_AUTH_REFRESH_TTL_WEB"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTLWeb = d
	}

	if v := os.Getenv("BAZAAR_AUTH_REFRESH_TTL_NATIVE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTLNative = d
	}

	if v := os.Getenv("BAZAAR_AUTH_REFRESH_TTL_NATIVE_SHORT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTLNativeShort = d
	}

	if v := os.Getenv("BAZAAR_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	if v := os.Getenv("BAZAAR_AUTH_CSRF_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.CSRFTokenBytes = n
	}

	// Invariants: native "short" must not exceed native "long".
	if cfg.RefreshTTLNative < cfg.RefreshTTLNativeShort {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
