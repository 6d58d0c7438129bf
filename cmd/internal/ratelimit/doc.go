// Package ratelimit provides the rate limiting collaborator used by the
// auth HTTP surface.
//
// Two implementations exist: a Redis-backed token bucket for multi-instance
// deployments and an in-process bucket for development and tests. Limiter
// backend errors are advisory; callers fail open so an unreachable Redis
// never locks users out of login.
package ratelimit
