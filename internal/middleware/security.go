package middleware

import "net/http"

// apiHeaders are set on every response. Checkout state is per shopper and
// must never be cached by a shared proxy.
var apiHeaders = map[string]string{
	"Cache-Control":           "no-store",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	// the storefront opens the gateway window and relays its events, so the
	// opener reference has to survive
	"Cross-Origin-Opener-Policy": "same-origin-allow-popups",
	"Referrer-Policy":            "no-referrer",
	"X-Content-Type-Options":     "nosniff",
	"X-Frame-Options":            "DENY",
}

// SecurityHeaders sets response headers for a JSON API called from a browser.
// HSTS is only sent over TLS.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range apiHeaders {
				h.Set(k, v)
			}
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
