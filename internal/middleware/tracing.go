package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request. The span is renamed to the matched
// chi route once routing is done, so cart and window IDs stay out of span
// names. Health probes and metric scrapes are not traced.
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if route := routePattern(r); route != unmatchedRoute {
				trace.SpanFromContext(r.Context()).SetName(r.Method + " " + route)
			}
		})
		return otelhttp.NewHandler(named, "http.request",
			otelhttp.WithFilter(func(r *http.Request) bool {
				return !strings.HasPrefix(r.URL.Path, "/health") && r.URL.Path != "/metrics"
			}),
		)
	}
}
