// CLAUDE:SUMMARY HTTP hardening middleware: security headers, body limits, request ids, per-IP rate limiting.
// Package shield provides the HTTP hardening middleware the service mounts
// in front of its API: security headers, JSON body limits, request
// identifiers, HEAD handling, and per-IP rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(shield.RateLimit{MaxRequests: 60, Window: time.Minute}) {
//	    r.Use(mw)
//	}
package shield

import (
	"net/http"
	"time"
)

// DefaultStack returns the standard middleware stack, ordered:
// HeadToGet → SecurityHeaders → MaxJSONBody → RequestID → RateLimiter.
func DefaultStack(limit RateLimit) []func(http.Handler) http.Handler {
	rl := NewRateLimiter(limit, "/health")
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(1 << 20),
		RequestID,
		rl.Middleware,
	}
}

// RateLimit is a fixed-window per-IP limit.
type RateLimit struct {
	MaxRequests int
	Window      time.Duration
}
