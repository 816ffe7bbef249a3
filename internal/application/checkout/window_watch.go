package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const releaseTimeout = 5 * time.Second

// windowWatch polls a registered gateway window until the browser reports it
// closed. The window is released exactly once when wait returns, whatever
// the reason.
type windowWatch struct {
	tracker  WindowTracker
	id       uuid.UUID
	interval time.Duration
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// wait returns nil on closure, ErrWindowTimeout when the window outlives the
// timeout, or the context error on teardown.
func (w *windowWatch) wait(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	deadline := time.NewTimer(w.timeout)
	w.metrics.ActiveWindows.Inc()

	defer func() {
		ticker.Stop()
		deadline.Stop()
		w.metrics.ActiveWindows.Dec()
		releaseWindow(ctx, w.tracker, w.id, w.logger)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return domainErrors.ErrWindowTimeout
		case <-ticker.C:
		}

		w.metrics.WindowPolls.Inc()
		state, err := w.tracker.State(ctx, w.id)
		switch {
		case errors.Is(err, domainErrors.ErrWindowNotFound):
			// expired in the tracker before our own deadline fired
			return domainErrors.ErrWindowTimeout
		case err != nil:
			w.logger.Warn().Err(err).Msg("Failed to poll payment window state")
		case state == checkout.WindowClosed:
			return nil
		}
	}
}

// releaseWindow forgets the window even when ctx is already cancelled.
func releaseWindow(ctx context.Context, tracker WindowTracker, id uuid.UUID, logger zerolog.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := tracker.Release(rctx, id); err != nil {
		logger.Warn().Err(err).Msg("Failed to release payment window")
	}
}
