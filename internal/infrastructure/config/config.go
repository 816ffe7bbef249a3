package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Commerce      CommerceConfig      `mapstructure:"commerce"`
	Stripe        StripeConfig        `mapstructure:"stripe"`
	PayPal        PayPalConfig        `mapstructure:"paypal"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	// SubmitRateLimit is the number of submits allowed per client IP per minute.
	SubmitRateLimit int `mapstructure:"submit_rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
	// CartCacheTTL bounds how stale a rendered cart may be. Reconciliation reads bypass the cache.
	CartCacheTTL time.Duration `mapstructure:"cart_cache_ttl"`
}

// CommerceConfig points at the commerce backend's store API.
type CommerceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PublishableKey string        `mapstructure:"publishable_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type PayPalConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Sandbox      bool   `mapstructure:"sandbox"`
}

// GatewayConfig configures the regional redirect gateway and its window watcher.
type GatewayConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	MerchantCode  string        `mapstructure:"merchant_code"`
	SecretKey     string        `mapstructure:"secret_key"`
	ReturnURL     string        `mapstructure:"return_url"`
	Locale        string        `mapstructure:"locale"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	WindowTimeout time.Duration `mapstructure:"window_timeout"`
	OpenTimeout   time.Duration `mapstructure:"open_timeout"`
}

type CheckoutConfig struct {
	SubmitWait     time.Duration `mapstructure:"submit_wait"`
	ControlIdleTTL time.Duration `mapstructure:"control_idle_ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

type PaymentConfig struct {
	MaxRetries              int           `mapstructure:"max_retries"`
	RetryDelay              time.Duration `mapstructure:"retry_delay"`
	LockTTL                 time.Duration `mapstructure:"lock_ttl"`
	ProcessingTimeout       time.Duration `mapstructure:"processing_timeout"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

type WorkerConfig struct {
	BatchSize          int64         `mapstructure:"batch_size"`
	BlockDuration      time.Duration `mapstructure:"block_duration"`
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	ConsumerGroup      string        `mapstructure:"consumer_group"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
	// MaxDeliveries is how often a completion is handed out before it is dead-lettered.
	MaxDeliveries      int64         `mapstructure:"max_deliveries"`
	ClaimMinIdle       time.Duration `mapstructure:"claim_min_idle"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// CHECKOUT_GATEWAY_SECRET_KEY -> gateway.secret_key
	v.SetEnvPrefix("CHECKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/checkout")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Commerce.BaseURL == "" {
		errs = append(errs, fmt.Errorf("commerce.base_url is required"))
	}
	if c.Gateway.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("gateway.poll_interval must be positive"))
	}
	if c.Gateway.WindowTimeout < c.Gateway.PollInterval {
		errs = append(errs, fmt.Errorf("gateway.window_timeout must be at least gateway.poll_interval"))
	}
	if c.Gateway.OpenTimeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.open_timeout must be positive"))
	}
	if c.Checkout.SubmitWait < 0 {
		errs = append(errs, fmt.Errorf("checkout.submit_wait must not be negative"))
	}
	if c.Payment.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("payment.lock_ttl must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Gateway.SecretKey == "" {
			errs = append(errs, fmt.Errorf("gateway.secret_key required in production"))
		}
		if c.PayPal.Sandbox {
			errs = append(errs, fmt.Errorf("paypal.sandbox must be disabled in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "45s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.submit_rate_limit", 20)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "checkout")
	v.SetDefault("database.database", "checkout")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")
	v.SetDefault("redis.cart_cache_ttl", "5s")

	// Commerce backend defaults
	v.SetDefault("commerce.base_url", "http://localhost:9000")
	v.SetDefault("commerce.timeout", "10s")

	// Processor defaults
	v.SetDefault("paypal.sandbox", true)

	// Gateway defaults
	v.SetDefault("gateway.endpoint", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html")
	v.SetDefault("gateway.return_url", "http://localhost:8000/checkout/vnpay-return")
	v.SetDefault("gateway.locale", "vn")
	v.SetDefault("gateway.poll_interval", "1s")
	v.SetDefault("gateway.window_timeout", "15m")
	v.SetDefault("gateway.open_timeout", "10s")

	// Checkout control defaults
	v.SetDefault("checkout.submit_wait", "25s")
	v.SetDefault("checkout.control_idle_ttl", "30m")
	v.SetDefault("checkout.sweep_interval", "1m")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.consumer_group", "checkout-completions")
	v.SetDefault("worker.idempotency_ttl", "24h")
	v.SetDefault("worker.cleanup_interval", "1h")
	v.SetDefault("worker.max_deliveries", 5)
	v.SetDefault("worker.claim_min_idle", "1m")

	// Payment defaults
	v.SetDefault("payment.max_retries", 3)
	v.SetDefault("payment.retry_delay", "1s")
	v.SetDefault("payment.lock_ttl", "30s")
	v.SetDefault("payment.processing_timeout", "60s")
	v.SetDefault("payment.circuit_breaker_threshold", 10)
	v.SetDefault("payment.circuit_breaker_timeout", "30s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "checkout-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MigrateURL is the database as a postgres:// URL, the form golang-migrate expects.
func (c *DatabaseConfig) MigrateURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
