package testutil

import (
	"io"
	"time"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func StrPtr(s string) *string {
	return &s
}

// NewReadyCart returns a cart that passes the readiness gate.
func NewReadyCart(id string) *cart.Cart {
	addr := &cart.Address{
		FirstName:   "Nguyen",
		LastName:    "An",
		Address1:    StrPtr("1 Le Loi"),
		City:        StrPtr("Ho Chi Minh City"),
		CountryCode: StrPtr("vn"),
		PostalCode:  StrPtr("700000"),
		Phone:       StrPtr("+84 28 1234 5678"),
	}
	return &cart.Cart{
		ID:              id,
		Email:           "an@example.com",
		ShippingAddress: addr,
		BillingAddress:  addr,
		ShippingMethods: []cart.ShippingMethod{{ID: "sm_1", ShippingOptionID: "so_1", Amount: 2000}},
		Total:           150000,
		CurrencyCode:    "vnd",
		Context:         map[string]any{},
		Version:         "1",
	}
}

// NewSession builds a payment session for provider.
func NewSession(provider cart.ProviderID, data map[string]any) *cart.PaymentSession {
	return &cart.PaymentSession{
		ID:         "ps_" + string(provider),
		ProviderID: provider,
		Data:       data,
	}
}

// WithSession attaches a session to c and returns it.
func WithSession(c *cart.Cart, s *cart.PaymentSession) *cart.Cart {
	c.PaymentSession = s
	return c
}

// NewTestMetrics registers metrics on a private registry.
func NewTestMetrics() *observability.Metrics {
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

// Env bundles a set of mocks wired into checkout Dependencies.
type Env struct {
	Carts    *MockCartStore
	Flow     *MockCheckoutFlow
	Card     *MockCardConfirmer
	Wallet   *MockOrderAuthorizer
	Signer   *MockURLSigner
	Windows  *MockWindowTracker
	Locker   *MockLocker
	Attempts *MockAttemptRepository
	Metrics  *observability.Metrics
}

// NewEnv creates an Env backed by carts.
func NewEnv(carts ...*cart.Cart) *Env {
	return &Env{
		Carts:    NewMockCartStore(carts...),
		Flow:     &MockCheckoutFlow{},
		Card:     &MockCardConfirmer{},
		Wallet:   &MockOrderAuthorizer{},
		Signer:   &MockURLSigner{},
		Windows:  NewMockWindowTracker(),
		Locker:   NewMockLocker(),
		Attempts: NewMockAttemptRepository(),
		Metrics:  NewTestMetrics(),
	}
}

// Dependencies wires the mocks with short timings suitable for tests.
func (e *Env) Dependencies() checkoutApp.Dependencies {
	logger := zerolog.New(io.Discard)
	quick := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return checkoutApp.Dependencies{
		Carts:    e.Carts,
		Context:  checkoutApp.NewContextWriter(e.Carts, quick, e.Metrics, logger),
		Flow:     e.Flow,
		Card:     e.Card,
		Wallet:   e.Wallet,
		Signer:   e.Signer,
		Windows:  e.Windows,
		Locker:   e.Locker,
		Attempts: e.Attempts,
		Metrics:  e.Metrics,
		Logger:   logger,
		Options: checkoutApp.Options{
			PollInterval:  time.Millisecond,
			WindowTimeout: time.Second,
			OpenTimeout:   100 * time.Millisecond,
			LockTTL:       time.Second,
		},
	}
}
