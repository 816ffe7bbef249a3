package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/checkout/internal/domain/cart"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/rs/zerolog"
)

// ContextWriter applies read-merge-write updates to a cart's context bag,
// using the cart version as a write precondition.
type ContextWriter struct {
	carts   CartStore
	retry   retry.Config
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewContextWriter creates a ContextWriter retrying version conflicts with cfg.
func NewContextWriter(carts CartStore, cfg retry.Config, metrics *observability.Metrics, logger zerolog.Logger) *ContextWriter {
	w := &ContextWriter{
		carts:   carts,
		metrics: metrics,
		logger:  observability.Component(logger, "context_writer"),
	}
	cfg.RetryIf = func(err error) bool {
		return errors.Is(err, domainErrors.ErrOptimisticLockFailed)
	}
	cfg.OnRetry = func(n uint, err error) {
		w.metrics.ContextWrites.WithLabelValues("conflict").Inc()
		w.logger.Debug().Uint("attempt", n+1).Err(err).Msg("Cart context write conflict, retrying")
	}
	w.retry = cfg
	return w
}

// Merge writes patch into the cart context. Keys already holding identical
// values are not rewritten.
func (w *ContextWriter) Merge(ctx context.Context, cartID string, patch map[string]any) error {
	return w.apply(ctx, cartID, func(bag map[string]any) (map[string]any, bool) {
		return cart.MergeContext(bag, patch)
	})
}

// Remove deletes keys from the cart context.
func (w *ContextWriter) Remove(ctx context.Context, cartID string, keys ...string) error {
	return w.apply(ctx, cartID, func(bag map[string]any) (map[string]any, bool) {
		return cart.WithoutKeys(bag, keys...)
	})
}

func (w *ContextWriter) apply(ctx context.Context, cartID string, change func(map[string]any) (map[string]any, bool)) error {
	err := retry.Do(ctx, w.retry, func() error {
		c, err := w.carts.Retrieve(ctx, cartID)
		if err != nil {
			return err
		}
		bag, changed := change(c.Context)
		if !changed {
			w.metrics.ContextWrites.WithLabelValues("unchanged").Inc()
			return nil
		}
		if _, err := w.carts.UpdateContext(ctx, cartID, c.Version, bag); err != nil {
			return err
		}
		w.metrics.ContextWrites.WithLabelValues("written").Inc()
		return nil
	})
	if err != nil {
		w.metrics.ContextWrites.WithLabelValues("failed").Inc()
		return fmt.Errorf("update cart %s context: %w", cartID, err)
	}
	return nil
}
