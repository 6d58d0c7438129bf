package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy    bool
	MaxBodyBytes  int64
	EnableCaptcha bool

	// Cookie transport for web clients.
	WebCookiesEnabled bool
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite
	AccessCookieName  string
	RefreshCookieName string
	CSRFCookieName    string
	CSRFHeaderName    string
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults. Cookies default to Secure + SameSite=Lax; turning Secure
// off is only meant for local development.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:        envBool("BAZAAR_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:      envInt64("BAZAAR_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		EnableCaptcha:     envBool("BAZAAR_AUTH_ENABLE_CAPTCHA", false),
		WebCookiesEnabled: envBool("BAZAAR_AUTH_WEB_COOKIES", true),
		CookiePath:        envString("BAZAAR_AUTH_COOKIE_PATH", "/"),
		CookieDomain:      envString("BAZAAR_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:      envBool("BAZAAR_AUTH_COOKIE_SECURE", true),
		CookieSameSite:    envSameSite("BAZAAR_AUTH_COOKIE_SAMESITE", http.SameSiteLaxMode),
		AccessCookieName:  envString("BAZAAR_AUTH_ACCESS_COOKIE", "bazaar_at"),
		RefreshCookieName: envString("BAZAAR_AUTH_REFRESH_COOKIE", "bazaar_rt"),
		CSRFCookieName:    envString("BAZAAR_AUTH_CSRF_COOKIE", "bazaar_csrf"),
		CSRFHeaderName:    envString("BAZAAR_AUTH_CSRF_HEADER", "X-CSRF-Token"),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}

	return cfg
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envSameSite(key string, def http.SameSite) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return def
	}
}
