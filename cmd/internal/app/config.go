package app

import "time"

// Config contains runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// If true, /readyz returns 503 unless the database is reachable.
	ReadinessRequireDB bool

	// If true, BAZAAR_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) so opaque
	// token digests are HMAC-based rather than plain SHA-256.
	RequireTokenHMAC bool

	// Audit recorder channel depth; events past this are dropped, not blocked on.
	AuditBuffer int

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("BAZAAR_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("BAZAAR_LOG_LEVEL", "info"),
		LogFormat: EnvString("BAZAAR_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("BAZAAR_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("BAZAAR_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("BAZAAR_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("BAZAAR_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("BAZAAR_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("BAZAAR_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("BAZAAR_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("BAZAAR_DB_MIN_CONNS", 0),

		RedisAddr:     EnvString("BAZAAR_REDIS_ADDR", ""),
		RedisPassword: EnvString("BAZAAR_REDIS_PASSWORD", ""),
		RedisDB:       int(EnvInt32("BAZAAR_REDIS_DB", 0)),

		ReadinessRequireDB: EnvBool("BAZAAR_READINESS_REQUIRE_DB", true),
		RequireTokenHMAC:   EnvBool("BAZAAR_REQUIRE_TOKEN_HMAC", false),

		AuditBuffer: EnvInt("BAZAAR_AUDIT_BUFFER", 1024),

		CORSAllowedOrigins:   EnvStringSlice("BAZAAR_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("BAZAAR_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("BAZAAR_CORS_MAX_AGE_SECONDS", 600),
	}
}
