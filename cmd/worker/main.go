package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	"github.com/cassiomorais/checkout/internal/bootstrap"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/infrastructure/commerce"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/internal/infrastructure/providers"
	infraRedis "github.com/cassiomorais/checkout/internal/infrastructure/redis"
	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "checkout-worker", "checkout_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	cfg := app.Config

	// --- Repositories ---
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)
	streamProducer := infraRedis.NewStreamProducer(app.Redis)

	// --- Use cases ---
	commerceClient := commerce.NewClient(commerce.Config{
		BaseURL:        cfg.Commerce.BaseURL,
		PublishableKey: cfg.Commerce.PublishableKey,
		Timeout:        cfg.Commerce.Timeout,
		Retry: retry.Config{
			MaxAttempts:  uint(cfg.Payment.MaxRetries),
			InitialDelay: cfg.Payment.RetryDelay,
			MaxDelay:     10 * cfg.Payment.RetryDelay,
		},
		Breaker: providers.BreakerSettings{
			Threshold: uint32(cfg.Payment.CircuitBreakerThreshold),
			Timeout:   cfg.Payment.CircuitBreakerTimeout,
		},
	}, app.Metrics, app.Logger)
	deliverUC := checkoutApp.NewDeliverCompletionUseCase(commerceClient)

	// --- Completion stream consumer ---
	workerCfg := cfg.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.CompletionStream,
		workerCfg.ConsumerGroup,
		cfg.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group")
	}

	app.Logger.Info().
		Str("stream", infraRedis.CompletionStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", cfg.InstanceID).
		Msg("Worker started, listening for messages...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	d := &deliverer{
		consumer:      consumer,
		producer:      streamProducer,
		deliver:       deliverUC,
		metrics:       app.Metrics,
		logger:        observability.Component(app.Logger, "completion-consumer"),
		maxDeliveries: workerCfg.MaxDeliveries,
	}

	// 1. Completion consumer (reads from Redis Streams, completes carts).
	g.Go(func() error {
		return d.run(gCtx)
	})

	// 2. Stale completion reclaimer (messages left unacked by a crashed worker).
	g.Go(func() error {
		return d.reclaim(gCtx, workerCfg.ClaimMinIdle)
	})

	// 3. Outbox relay (polls the outbox table and publishes to the completion stream).
	relay := checkoutApp.NewOutboxRelay(txManager, outboxRepo, streamProducer, int(workerCfg.BatchSize), app.Metrics, app.Logger)
	g.Go(func() error {
		return relay.Run(gCtx, workerCfg.OutboxPollInterval)
	})

	// 4. Idempotency key cleanup.
	g.Go(func() error {
		return runIdempotencyCleanup(gCtx, app.Logger, idempotencyRepo, workerCfg.CleanupInterval)
	})

	// 5. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

type deliverer struct {
	consumer      *infraRedis.StreamConsumer
	producer      *infraRedis.StreamProducer
	deliver       *checkoutApp.DeliverCompletionUseCase
	metrics       *observability.Metrics
	logger        zerolog.Logger
	maxDeliveries int64
}

func (d *deliverer) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := d.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}
		for _, msg := range messages {
			d.handle(ctx, msg)
		}
	}
}

func (d *deliverer) reclaim(ctx context.Context, minIdle time.Duration) error {
	if minIdle <= 0 {
		minIdle = time.Minute
	}
	ticker := time.NewTicker(minIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		messages, err := d.consumer.ClaimStale(ctx, minIdle)
		if err != nil {
			d.logger.Error().Err(err).Msg("Failed to claim stale messages")
			continue
		}
		for _, msg := range messages {
			d.handle(ctx, msg)
		}
	}
}

// handle delivers one completion. A failed delivery stays pending for
// reclaim until it has been handed out maxDeliveries times, then it is
// dead-lettered. Malformed events are dead-lettered at once.
func (d *deliverer) handle(ctx context.Context, msg infraRedis.Message) {
	logger := d.logger.With().
		Str("message_id", msg.ID).
		Str("event_id", msg.EventID).
		Str("cart_id", msg.CartID).
		Logger()

	start := time.Now()
	err := d.deliver.Execute(ctx, msg.EventType, msg.Payload)
	d.metrics.WorkerProcessingDuration.WithLabelValues(infraRedis.CompletionStream).Observe(time.Since(start).Seconds())

	if err == nil {
		logger.Info().Msg("Completion delivered")
		d.metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.CompletionStream, "success").Inc()
		d.ack(ctx, msg, logger)
		return
	}

	var vErr *domainErrors.ValidationError
	malformed := errors.As(err, &vErr)
	if !malformed && (d.maxDeliveries <= 0 || msg.Deliveries < d.maxDeliveries) {
		logger.Warn().Err(err).Int64("deliveries", msg.Deliveries).Msg("Completion delivery failed, will retry")
		d.metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.CompletionStream, "retry").Inc()
		return
	}

	logger.Error().Err(err).Int64("deliveries", msg.Deliveries).Msg("Dead-lettering completion")
	if err := d.producer.PublishToDLQ(ctx, msg, err.Error()); err != nil {
		logger.Error().Err(err).Msg("Failed to publish to DLQ")
		return
	}
	d.metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.CompletionStream, "dead_letter").Inc()
	d.ack(ctx, msg, logger)
}

func (d *deliverer) ack(ctx context.Context, msg infraRedis.Message, logger zerolog.Logger) {
	if err := d.consumer.Ack(ctx, msg.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to ack message")
	}
}

func runIdempotencyCleanup(
	ctx context.Context,
	logger zerolog.Logger,
	repo *postgres.IdempotencyRepository,
	interval time.Duration,
) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		removed, err := repo.Cleanup(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Idempotency cleanup failed")
			continue
		}
		if removed > 0 {
			logger.Info().Int64("removed", removed).Msg("Expired idempotency keys removed")
		}
	}
}
