package oauth

import (
	"os"
	"strings"
	"time"
)

// Credentials is one provider's client registration.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Config defines runtime configuration for the exchange flow.
type Config struct {
	// Providers holds credentials per enabled provider. A provider without
	// credentials is treated as unknown.
	Providers map[Provider]Credentials

	// RedirectBase is the externally visible base URL for callbacks, e.g.
	// "https://shop.example.com". The callback path is appended per provider.
	RedirectBase string

	// RequestTTL bounds how long a started exchange stays redeemable.
	RequestTTL time.Duration

	// ExchangeTimeout bounds each outbound call to the provider.
	ExchangeTimeout time.Duration
}

// DefaultConfig returns defaults suitable for development.
func DefaultConfig() Config {
	return Config{
		Providers:       map[Provider]Credentials{},
		RedirectBase:    "http://localhost:8080",
		RequestTTL:      10 * time.Minute,
		ExchangeTimeout: 10 * time.Second,
	}
}

// LoadConfigFromEnv loads exchange configuration from environment variables.
//
// Optional:
//   - BAZAAR_OAUTH_GOOGLE_CLIENT_ID / BAZAAR_OAUTH_GOOGLE_CLIENT_SECRET
//   - BAZAAR_OAUTH_GITHUB_CLIENT_ID / BAZAAR_OAUTH_GITHUB_CLIENT_SECRET
//   - BAZAAR_OAUTH_REDIRECT_BASE
//   - BAZAAR_OAUTH_REQUEST_TTL (Go duration)
//
// A provider with only one half of its credentials set is ErrConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	for provider, prefix := range map[Provider]string{
		ProviderGoogle: "BAZAAR_OAUTH_GOOGLE_",
		ProviderGitHub: "BAZAAR_OAUTH_GITHUB_",
	} {
		id := strings.TrimSpace(os.Getenv(prefix + "CLIENT_ID"))
		secret := strings.TrimSpace(os.Getenv(prefix + "CLIENT_SECRET"))
		if id == "" && secret == "" {
			continue
		}
		if id == "" || secret == "" {
			return Config{}, ErrConfig
		}
		cfg.Providers[provider] = Credentials{ClientID: id, ClientSecret: secret}
	}

	if v := strings.TrimSpace(os.Getenv("BAZAAR_OAUTH_REDIRECT_BASE")); v != "" {
		cfg.RedirectBase = strings.TrimRight(v, "/")
	}

	if v := os.Getenv("BAZAAR_OAUTH_REQUEST_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RequestTTL = d
	}

	return cfg, nil
}
