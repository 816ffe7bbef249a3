package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/plutov/paypal/v4"
	"github.com/sony/gobreaker/v2"
)

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	Sandbox      bool
	// APIBase overrides the PayPal API base URL.
	APIBase string
	Timeout time.Duration
	Breaker BreakerSettings
}

// PayPalAuthorizer authorizes orders the customer approved in the PayPal popup.
type PayPalAuthorizer struct {
	client  *paypal.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*paypal.AuthorizeOrderResponse]
	metrics *observability.Metrics

	tokenMu sync.Mutex
	hasTok  bool
}

func NewPayPalAuthorizer(cfg PayPalConfig, metrics *observability.Metrics) (*PayPalAuthorizer, error) {
	base := cfg.APIBase
	if base == "" {
		base = paypal.APIBaseLive
		if cfg.Sandbox {
			base = paypal.APIBaseSandBox
		}
	}

	c, err := paypal.NewClient(cfg.ClientID, cfg.ClientSecret, base)
	if err != nil {
		return nil, fmt.Errorf("failed to create paypal client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &PayPalAuthorizer{
		client:  c,
		timeout: timeout,
		breaker: NewBreaker[*paypal.AuthorizeOrderResponse]("paypal", cfg.Breaker, metrics, nil),
		metrics: metrics,
	}, nil
}

// AuthorizeOrder authorizes the order and returns its resulting status.
func (p *PayPalAuthorizer) AuthorizeOrder(ctx context.Context, orderID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ensureToken(ctx); err != nil {
		return "", err
	}

	resp, err := Call(ctx, p.breaker, p.metrics, func() (*paypal.AuthorizeOrderResponse, error) {
		return p.client.AuthorizeOrder(ctx, orderID, paypal.AuthorizeOrderRequest{})
	})
	if err != nil {
		return "", fmt.Errorf("paypal: authorize order %s: %w", orderID, err)
	}
	return resp.Status, nil
}

// ensureToken fetches the first access token. The client refreshes it afterwards.
func (p *PayPalAuthorizer) ensureToken(ctx context.Context) error {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()
	if p.hasTok {
		return nil
	}
	if _, err := p.client.GetAccessToken(ctx); err != nil {
		return fmt.Errorf("paypal: get access token: %w", err)
	}
	p.hasTok = true
	return nil
}
