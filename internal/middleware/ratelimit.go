package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// RateLimit limits each client IP to requestsPerMinute.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return limit(requestsPerMinute, httprate.KeyByIP)
}

// CartRateLimit limits submits per client IP and cart, so one shopper
// hammering the pay button cannot starve others behind the same NAT.
func CartRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return limit(requestsPerMinute, httprate.KeyByIP, func(r *http.Request) (string, error) {
		return chi.URLParam(r, "cartID"), nil
	})
}

func limit(requestsPerMinute int, keyFuncs ...httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(keyFuncs...),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate_limit", "rate limit exceeded")
		}),
	)
}
