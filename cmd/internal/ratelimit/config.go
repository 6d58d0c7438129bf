package ratelimit

import (
	"os"
	"strconv"
	"time"
)

// LoadPoliciesFromEnv builds the bucket policies for the auth endpoints.
//
// The defaults are deliberately asymmetric: credential-guessing surfaces get
// small buckets with slow refill, refresh traffic gets room to breathe.
//
// Optional:
//   - BAZAAR_RATE_LIMIT_CAPACITY, BAZAAR_RATE_LIMIT_REFILL_EVERY (default bucket)
//   - BAZAAR_RATE_LIMIT_LOGIN_CAPACITY, BAZAAR_RATE_LIMIT_REGISTER_CAPACITY
func LoadPoliciesFromEnv() Policies {
	def := Policy{
		Capacity:       60,
		RefillTokens:   1,
		RefillInterval: time.Second,
		TTL:            10 * time.Minute,
	}
	if n := envInt("BAZAAR_RATE_LIMIT_CAPACITY", 0); n > 0 {
		def.Capacity = n
	}
	if d := envDur("BAZAAR_RATE_LIMIT_REFILL_EVERY", 0); d > 0 {
		def.RefillInterval = d
	}

	login := Policy{Capacity: 10, RefillTokens: 1, RefillInterval: 30 * time.Second, TTL: 30 * time.Minute}
	if n := envInt("BAZAAR_RATE_LIMIT_LOGIN_CAPACITY", 0); n > 0 {
		login.Capacity = n
	}
	register := Policy{Capacity: 5, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Hour}
	if n := envInt("BAZAAR_RATE_LIMIT_REGISTER_CAPACITY", 0); n > 0 {
		register.Capacity = n
	}

	return Policies{
		Default: def,
		PerEndpoint: map[string]Policy{
			"auth.login":    login,
			"auth.register": register,
			"auth.refresh":  {Capacity: 120, RefillTokens: 2, RefillInterval: time.Second, TTL: 10 * time.Minute},
		},
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
