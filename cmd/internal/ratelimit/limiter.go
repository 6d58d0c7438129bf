package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter decides whether one request from subject may hit endpoint.
//
// A non-nil error means the backend could not decide; callers treat that as
// allowed (fail open) and log it.
type Limiter interface {
	Check(ctx context.Context, endpoint, subject string) (Decision, error)
}

// NoopLimiter allows everything. It is the default collaborator when rate
// limiting is disabled.
type NoopLimiter struct{}

// Check always allows.
func (NoopLimiter) Check(context.Context, string, string) (Decision, error) {
	return Decision{Allowed: true, Remaining: -1}, nil
}

// Policy is one endpoint's token bucket shape.
type Policy struct {
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
}

// Policies maps endpoint names to bucket shapes, with a fallback default.
type Policies struct {
	Default    Policy
	PerEndpoint map[string]Policy
}

func (p Policies) forEndpoint(endpoint string) Policy {
	if pol, ok := p.PerEndpoint[endpoint]; ok {
		return pol
	}
	return p.Default
}
