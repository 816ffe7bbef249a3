package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/cart"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/internal/infrastructure/providers"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const publishableKeyHeader = "x-publishable-api-key"

type Config struct {
	BaseURL        string
	PublishableKey string
	Timeout        time.Duration
	Retry          retry.Config
	Breaker        providers.BreakerSettings
}

// StatusError is a non-2xx answer from the commerce backend.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("commerce backend returned %d: %s", e.Status, e.Body)
}

type response struct {
	status int
	body   []byte
}

// Client talks to the commerce backend's store API.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
	retry   retry.Config
	breaker *gobreaker.CircuitBreaker[*response]
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewClient(cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		key:     cfg.PublishableKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: providers.NewBreaker[*response]("commerce", cfg.Breaker, metrics, isClientError),
		metrics: metrics,
		logger:  observability.Component(logger, "commerce"),
	}

	c.retry = cfg.Retry
	if c.retry.MaxAttempts == 0 {
		c.retry = retry.Quick()
	}
	c.retry.RetryIf = isTransient
	c.retry.OnRetry = func(n uint, err error) {
		c.logger.Warn().Err(err).Uint("attempt", n+1).Msg("Commerce request failed, retrying")
	}
	return c
}

// Retrieve fetches the cart.
func (c *Client) Retrieve(ctx context.Context, cartID string) (*cart.Cart, error) {
	resp, err := c.do(ctx, http.MethodGet, "/store/carts/"+url.PathEscape(cartID), nil, nil)
	if err != nil {
		return nil, mapCartError(err)
	}
	return decodeCart(resp.body)
}

// UpdateContext replaces the cart context if the cart is still at version.
func (c *Client) UpdateContext(ctx context.Context, cartID, version string, bag map[string]any) (*cart.Cart, error) {
	body, err := json.Marshal(updateCartRequest{Context: bag})
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart update: %w", err)
	}
	headers := map[string]string{"If-Match": version}

	resp, err := c.do(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID), body, headers)
	if err != nil {
		return nil, mapCartError(err)
	}
	return decodeCart(resp.body)
}

// CompleteCart turns the paid cart into an order. Completing an already
// completed cart returns the existing order.
func (c *Client) CompleteCart(ctx context.Context, cartID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID)+"/complete", nil, nil)
	if err != nil {
		return mapCartError(err)
	}
	var env completeEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return fmt.Errorf("failed to decode completion response: %w", err)
	}
	if env.Type != "order" {
		return fmt.Errorf("cart %s was not completed: backend returned %q", cartID, env.Type)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string) (*response, error) {
	return retry.DoWithResult(ctx, c.retry, func() (*response, error) {
		return providers.Call(ctx, c.breaker, c.metrics, func() (*response, error) {
			return c.send(ctx, method, path, body, headers)
		})
	})
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, headers map[string]string) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set(publishableKeyHeader, c.key)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if res.StatusCode >= 300 {
		return nil, &StatusError{Status: res.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return &response{status: res.StatusCode, body: data}, nil
}

func decodeCart(body []byte) (*cart.Cart, error) {
	var env cartEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	return env.Cart.toDomain(), nil
}

func mapCartError(err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", domainErrors.ErrCartNotFound, err)
		case http.StatusPreconditionFailed, http.StatusConflict:
			return fmt.Errorf("%w: %w", domainErrors.ErrOptimisticLockFailed, err)
		}
	}
	return err
}

// isClientError reports 4xx answers, which say nothing about backend health.
func isClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status < http.StatusInternalServerError
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domainErrors.ErrProviderUnavailable) {
		return false
	}
	return !isClientError(err)
}
