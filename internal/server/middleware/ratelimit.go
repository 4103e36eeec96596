package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that caps requests per IP address per
// minute. This is a coarse abuse ceiling in front of the whole router; the
// per-credential limits live in the usage ledger.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// LoginRateLimit returns a tighter per-IP limit for the admin login endpoint
// so that password guessing burns out quickly.
func LoginRateLimit(attemptsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		attemptsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}
