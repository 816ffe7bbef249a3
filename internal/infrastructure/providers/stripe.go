package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeConfig configures the card processor client.
type StripeConfig struct {
	SecretKey string
	// APIURL overrides the Stripe API base URL.
	APIURL  string
	Timeout time.Duration
	Breaker BreakerSettings
}

// StripeConfirmer confirms card payment intents on Stripe.
type StripeConfirmer struct {
	api     *client.API
	ready   bool
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*stripe.PaymentIntent]
	metrics *observability.Metrics
}

func NewStripeConfirmer(cfg StripeConfig, metrics *observability.Metrics) *StripeConfirmer {
	var backends *stripe.Backends
	if cfg.APIURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.APIURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &StripeConfirmer{
		api:     api,
		ready:   cfg.SecretKey != "",
		timeout: timeout,
		breaker: NewBreaker[*stripe.PaymentIntent]("stripe", cfg.Breaker, metrics, isCardDecline),
		metrics: metrics,
	}
}

// Ready reports whether a secret key was configured.
func (s *StripeConfirmer) Ready() bool {
	return s.ready
}

// ConfirmCardPayment attaches the billing details to the tokenized card and
// confirms the session's payment intent with it.
func (s *StripeConfirmer) ConfirmCardPayment(ctx context.Context, req checkoutApp.CardConfirmation) (*checkoutApp.CardResult, error) {
	intentID := intentIDFromSecret(req.ClientSecret)
	if intentID == "" {
		return nil, fmt.Errorf("stripe: malformed client secret")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pi, err := Call(ctx, s.breaker, s.metrics, func() (*stripe.PaymentIntent, error) {
		_, err := s.api.PaymentMethods.Update(req.PaymentMethod, &stripe.PaymentMethodParams{
			Params:         stripe.Params{Context: ctx},
			BillingDetails: billingParams(req.Billing),
		})
		if err != nil {
			return nil, err
		}
		return s.api.PaymentIntents.Confirm(intentID, &stripe.PaymentIntentConfirmParams{
			Params:        stripe.Params{Context: ctx},
			PaymentMethod: stripe.String(req.PaymentMethod),
		})
	})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode < http.StatusInternalServerError {
			cardErr := &checkoutApp.CardError{Message: stripeErr.Msg}
			if stripeErr.PaymentIntent != nil {
				cardErr.IntentStatus = string(stripeErr.PaymentIntent.Status)
			}
			return nil, cardErr
		}
		return nil, fmt.Errorf("stripe: confirm payment intent: %w", err)
	}

	return &checkoutApp.CardResult{IntentStatus: string(pi.Status)}, nil
}

// isCardDecline reports client-side rejections, which say nothing about
// Stripe's availability.
func isCardDecline(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < http.StatusInternalServerError
}

// intentIDFromSecret extracts "pi_123" from "pi_123_secret_abc".
func intentIDFromSecret(secret string) string {
	id, _, ok := strings.Cut(secret, "_secret_")
	if !ok {
		return ""
	}
	return id
}

func billingParams(b checkoutApp.BillingDetails) *stripe.PaymentMethodBillingDetailsParams {
	return &stripe.PaymentMethodBillingDetailsParams{
		Name:  stripe.String(b.Name),
		Email: b.Email,
		Phone: b.Phone,
		Address: &stripe.AddressParams{
			City:       b.City,
			Country:    b.Country,
			Line1:      b.Line1,
			Line2:      b.Line2,
			PostalCode: b.PostalCode,
			State:      b.State,
		},
	}
}
