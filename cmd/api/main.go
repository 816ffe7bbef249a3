package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	"github.com/cassiomorais/checkout/internal/bootstrap"
	"github.com/cassiomorais/checkout/internal/controller"
	"github.com/cassiomorais/checkout/internal/infrastructure/commerce"
	"github.com/cassiomorais/checkout/internal/infrastructure/providers"
	infraRedis "github.com/cassiomorais/checkout/internal/infrastructure/redis"
	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/cassiomorais/checkout/pkg/retry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "checkout-api", "checkout")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	cfg := app.Config

	breaker := providers.BreakerSettings{
		Threshold: uint32(cfg.Payment.CircuitBreakerThreshold),
		Timeout:   cfg.Payment.CircuitBreakerTimeout,
	}

	// --- Repositories ---
	attemptRepo := postgres.NewAttemptRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Commerce backend ---
	commerceClient := commerce.NewClient(commerce.Config{
		BaseURL:        cfg.Commerce.BaseURL,
		PublishableKey: cfg.Commerce.PublishableKey,
		Timeout:        cfg.Commerce.Timeout,
		Retry: retry.Config{
			MaxAttempts:  uint(cfg.Payment.MaxRetries),
			InitialDelay: cfg.Payment.RetryDelay,
			MaxDelay:     10 * cfg.Payment.RetryDelay,
		},
		Breaker: breaker,
	}, app.Metrics, app.Logger)
	cachedCarts := infraRedis.NewCachedCartStore(commerceClient, app.Redis, cfg.Redis.CartCacheTTL, app.Logger)

	// --- Payment processors ---
	stripeConfirmer := providers.NewStripeConfirmer(providers.StripeConfig{
		SecretKey: cfg.Stripe.SecretKey,
		Timeout:   cfg.Payment.ProcessingTimeout,
		Breaker:   breaker,
	}, app.Metrics)
	if !stripeConfirmer.Ready() {
		app.Logger.Warn().Msg("Stripe secret key not set, card payments disabled")
	}
	paypalAuthorizer, err := providers.NewPayPalAuthorizer(providers.PayPalConfig{
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
		Sandbox:      cfg.PayPal.Sandbox,
		Timeout:      cfg.Payment.ProcessingTimeout,
		Breaker:      breaker,
	}, app.Metrics)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to configure PayPal")
	}
	vnpaySigner := providers.NewVNPaySigner(providers.VNPayConfig{
		Endpoint:     cfg.Gateway.Endpoint,
		MerchantCode: cfg.Gateway.MerchantCode,
		SecretKey:    cfg.Gateway.SecretKey,
		ReturnURL:    cfg.Gateway.ReturnURL,
		Locale:       cfg.Gateway.Locale,
	})

	// --- Checkout controls ---
	windowTracker := infraRedis.NewWindowTracker(app.Redis, app.Metrics)
	dispatcher := checkoutApp.NewDispatcher(checkoutApp.Dependencies{
		Carts:    commerceClient,
		Context:  checkoutApp.NewContextWriter(cachedCarts, retry.Quick(), app.Metrics, app.Logger),
		Flow:     checkoutApp.NewCompletionPublisher(txManager, attemptRepo, outboxRepo),
		Card:     stripeConfirmer,
		Wallet:   paypalAuthorizer,
		Signer:   vnpaySigner,
		Windows:  windowTracker,
		Locker:   infraRedis.NewLocker(app.Redis, app.Logger),
		Attempts: attemptRepo,
		Metrics:  app.Metrics,
		Logger:   app.Logger,
		Options: checkoutApp.Options{
			PollInterval:  cfg.Gateway.PollInterval,
			WindowTimeout: cfg.Gateway.WindowTimeout,
			OpenTimeout:   cfg.Gateway.OpenTimeout,
			LockTTL:       cfg.Payment.LockTTL,
		},
	})
	go dispatcher.RunSweeper(ctx, cfg.Checkout.SweepInterval, cfg.Checkout.ControlIdleTTL)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		HealthChecks: []controller.HealthCheck{
			controller.PostgresCheck(app.Pool),
			controller.RedisCheck(app.Redis),
		},
		Checkout: controller.NewCheckoutController(
			dispatcher,
			cachedCarts,
			commerceClient,
			checkoutApp.NewAttemptHistoryUseCase(attemptRepo),
			cfg.Checkout.SubmitWait,
			app.Logger,
		),
		Windows:          controller.NewWindowController(windowTracker),
		IdempotencyStore: idempotencyRepo,
		IdempotencyTTL:   cfg.Worker.IdempotencyTTL,
		Metrics:          app.Metrics,
		Server:           cfg.Server,
		Logger:           app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	cancel()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Payment attempts still running at shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
