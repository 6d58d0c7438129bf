package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricLogins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	metricRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "auth",
		Name:      "registrations_total",
		Help:      "Registration attempts by outcome.",
	}, []string{"outcome"})

	metricRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "auth",
		Name:      "refreshes_total",
		Help:      "Refresh rotations by outcome.",
	}, []string{"outcome"})

	metricCSRFFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "auth",
		Name:      "csrf_failures_total",
		Help:      "Rejected requests with a missing or invalid CSRF token.",
	})

	metricOAuthCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "auth",
		Name:      "oauth_callbacks_total",
		Help:      "OAuth callback results by outcome.",
	}, []string{"outcome"})

	metricPasswordResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "auth",
		Name:      "password_resets_total",
		Help:      "Password reset redemptions by outcome.",
	}, []string{"outcome"})

	metricRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "auth",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter, by endpoint.",
	}, []string{"endpoint"})
)
