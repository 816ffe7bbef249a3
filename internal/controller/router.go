package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/checkout/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	HealthChecks     []HealthCheck
	Checkout         *CheckoutController
	Windows          *WindowController
	IdempotencyStore customMW.IdempotencyStore
	IdempotencyTTL   time.Duration
	Metrics          *observability.Metrics
	Server           config.ServerConfig
	Logger           zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{customMW.ReplayedHeader},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.HealthChecks...)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/checkout", func(r chi.Router) {
		submitMW := []func(next http.Handler) http.Handler{}
		if deps.Server.SubmitRateLimit > 0 {
			submitMW = append(submitMW, customMW.CartRateLimit(deps.Server.SubmitRateLimit))
		}
		if deps.IdempotencyStore != nil {
			submitMW = append(submitMW, customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL, deps.Logger))
		}

		r.Route("/{cartID}/payment", func(r chi.Router) {
			r.Get("/", deps.Checkout.Render)
			r.Delete("/", deps.Checkout.Teardown)
			r.Get("/attempts", deps.Checkout.Attempts)
			r.With(submitMW...).Post("/submit", deps.Checkout.Submit)
		})

		// window events arrive from the storefront, one per browser event
		r.With(customMW.RateLimit(120)).Post("/windows/{windowID}/{event}", deps.Windows.Event)
	})

	return r
}
