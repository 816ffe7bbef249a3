package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// EventPublisher hands an outbox entry to the completion stream.
type EventPublisher interface {
	PublishCompletion(ctx context.Context, entry *outbox.Entry) error
}

// OutboxRelay moves pending completion events from the outbox table onto the
// completion stream. Entries are locked for the duration of a batch, so several
// workers can relay concurrently.
type OutboxRelay struct {
	txManager TransactionManager
	outbox    outbox.Repository
	publisher EventPublisher
	batch     int
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewOutboxRelay(
	txManager TransactionManager,
	repo outbox.Repository,
	publisher EventPublisher,
	batch int,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *OutboxRelay {
	if batch <= 0 {
		batch = 10
	}
	return &OutboxRelay{
		txManager: txManager,
		outbox:    repo,
		publisher: publisher,
		batch:     batch,
		metrics:   metrics,
		logger:    logger.With().Str("component", "outbox_relay").Logger(),
	}
}

// RelayOnce publishes one batch and returns how many entries were published.
// A publish failure is counted against the entry and does not abort the batch.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		published = 0
		entries, err := r.outbox.GetPending(txCtx, r.batch)
		if err != nil {
			return fmt.Errorf("get pending entries: %w", err)
		}
		for _, entry := range entries {
			if err := r.publisher.PublishCompletion(ctx, entry); err != nil {
				r.logger.Error().Err(err).
					Str("outbox_id", entry.ID.String()).
					Int("retry_count", entry.RetryCount).
					Msg("Failed to publish outbox event")
				if err := r.outbox.MarkFailed(txCtx, entry.ID); err != nil {
					return fmt.Errorf("mark entry %s failed: %w", entry.ID, err)
				}
				continue
			}
			if err := r.outbox.MarkPublished(txCtx, entry.ID); err != nil {
				return fmt.Errorf("mark entry %s published: %w", entry.ID, err)
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if n, err := r.outbox.CountPending(ctx); err == nil {
		r.metrics.OutboxPending.Set(float64(n))
	} else {
		r.logger.Warn().Err(err).Msg("Failed to count pending outbox entries")
	}
	return published, nil
}

// Run relays on every tick until ctx is cancelled. A batch that comes back
// full is followed immediately by another one.
func (r *OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error().Err(err).Msg("Outbox relay error")
				break
			}
			if n < r.batch {
				break
			}
		}
	}
}
