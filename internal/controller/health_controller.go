package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// HealthCheck is one dependency probed by the readiness endpoint.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// PostgresCheck pings the connection pool.
func PostgresCheck(pool *pgxpool.Pool) HealthCheck {
	return HealthCheck{Name: "postgres", Probe: pool.Ping}
}

// RedisCheck pings the window tracker's Redis.
func RedisCheck(client *redis.Client) HealthCheck {
	return HealthCheck{Name: "redis", Probe: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

type HealthController struct {
	checks  []HealthCheck
	timeout time.Duration
}

func NewHealthController(checks ...HealthCheck) *HealthController {
	return &HealthController{checks: checks, timeout: 2 * time.Second}
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, readinessResponse{Status: "alive"})
}

// Readiness probes every dependency concurrently. One failing probe makes the
// replica unready.
func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := make([]string, len(h.checks))
	var g errgroup.Group
	for i, check := range h.checks {
		g.Go(func() error {
			if err := check.Probe(ctx); err != nil {
				results[i] = "unavailable"
				return err
			}
			results[i] = "ok"
			return nil
		})
	}
	err := g.Wait()

	resp := readinessResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	for i, check := range h.checks {
		resp.Checks[check.Name] = results[i]
	}
	if err != nil {
		resp.Status = "not ready"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
