package authapi

import (
	"context"

	"bazaar/cmd/internal/ratelimit"
)

// allow runs one rate-limit check. Backend errors fail open: the request
// proceeds and the error is logged, so a Redis outage never locks users out.
func (h *Handler) allow(ctx context.Context, endpoint, subject string) (ratelimit.Decision, bool) {
	if h.limiter == nil {
		return ratelimit.Decision{Allowed: true, Remaining: -1}, true
	}
	d, err := h.limiter.Check(ctx, endpoint, subject)
	if err != nil {
		h.log.Error("auth.rate_limit.fail", "endpoint", endpoint, "err", err)
		return ratelimit.Decision{Allowed: true, Remaining: -1}, true
	}
	if !d.Allowed {
		metricRateLimited.WithLabelValues(endpoint).Inc()
	}
	return d, d.Allowed
}
