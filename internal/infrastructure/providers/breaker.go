package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes a provider circuit breaker.
type BreakerSettings struct {
	// Threshold is the number of consecutive outages that opens the breaker.
	Threshold uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
}

// NewBreaker creates a circuit breaker named after its provider that reports
// state changes to metrics. Errors for which tolerated returns true count as
// successful calls: a declined card is not an outage.
func NewBreaker[T any](name string, s BreakerSettings, metrics *observability.Metrics, tolerated func(error) bool) *gobreaker.CircuitBreaker[T] {
	threshold := s.Threshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || (tolerated != nil && tolerated(err))
		},
	})
}

// Call runs fn through the breaker. A rejected call yields ErrProviderUnavailable.
func Call[T any](ctx context.Context, cb *gobreaker.CircuitBreaker[T], metrics *observability.Metrics, fn func() (T, error)) (T, error) {
	result, err := cb.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(cb.Name(), "rejected").Inc()
		return result, fmt.Errorf("%s: %w", cb.Name(), domainErrors.ErrProviderUnavailable)
	case err != nil:
		metrics.CircuitBreakerRequests.WithLabelValues(cb.Name(), "failure").Inc()
		if ctx.Err() != nil {
			return result, fmt.Errorf("%s: %w: %w", cb.Name(), domainErrors.ErrProviderTimeout, err)
		}
		return result, err
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(cb.Name(), "success").Inc()
		return result, nil
	}
}
