package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/checkout/internal/infrastructure/redis"
	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds what both checkout binaries share: configuration, the service
// logger, metrics and the Postgres and Redis connections.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	tracer *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, observability.LogOutput(cfg.Observability.LogFormat, os.Stdout)).With().
		Str("service", serviceName).
		Str("instance", cfg.InstanceID).
		Logger()
	logger.Info().Msg("Starting")

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(metricsNamespace, nil),
	}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Tracing disabled")
		} else {
			app.tracer = tp
		}
	}

	app.Pool, err = postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info().
		Str("database", cfg.Database.Database).
		Str("redis", cfg.Redis.RedisAddr()).
		Bool("tracing", app.tracer != nil).
		Msg("Dependencies ready")
	return app, nil
}

// Close releases connections and flushes buffered spans.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Closing redis")
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		observability.Shutdown(ctx, a.tracer)
	}
}
