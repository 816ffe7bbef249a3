package cart_test

import (
	"testing"

	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func readyCart() *cart.Cart {
	addr := &cart.Address{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Address1:    strPtr("12 St James Sq"),
		City:        strPtr("London"),
		CountryCode: strPtr("gb"),
		PostalCode:  strPtr("SW1Y 4JH"),
	}
	return &cart.Cart{
		ID:              "cart_01",
		Email:           "ada@example.com",
		ShippingAddress: addr,
		BillingAddress:  addr,
		ShippingMethods: []cart.ShippingMethod{{ID: "sm_1", ShippingOptionID: "so_1", Amount: 500}},
		Total:           12000,
		CurrencyCode:    "usd",
	}
}

func TestNotReady_FullCart(t *testing.T) {
	assert.False(t, cart.NotReady(readyCart()))
}

func TestNotReady_NilCart(t *testing.T) {
	assert.True(t, cart.NotReady(nil))
}

func TestNotReady_MissingField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *cart.Cart)
	}{
		{"no shipping address", func(c *cart.Cart) { c.ShippingAddress = nil }},
		{"no billing address", func(c *cart.Cart) { c.BillingAddress = nil }},
		{"no email", func(c *cart.Cart) { c.Email = "" }},
		{"no shipping methods", func(c *cart.Cart) { c.ShippingMethods = nil }},
		{"empty shipping methods", func(c *cart.Cart) { c.ShippingMethods = []cart.ShippingMethod{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := readyCart()
			require.False(t, cart.NotReady(c))

			tt.mutate(c)
			assert.True(t, cart.NotReady(c))
		})
	}
}

func TestGatewayVerified(t *testing.T) {
	tests := []struct {
		name     string
		context  map[string]any
		expected bool
	}{
		{"nil context", nil, false},
		{"no vnpay key", map[string]any{"cac": "cac"}, false},
		{"no verify result", map[string]any{"vnpay": map[string]any{}}, false},
		{"success false", map[string]any{"vnpay": map[string]any{"verifyResult": map[string]any{"isSuccess": false}}}, false},
		{"success as string", map[string]any{"vnpay": map[string]any{"verifyResult": map[string]any{"isSuccess": "true"}}}, false},
		{"success true", map[string]any{"vnpay": map[string]any{"verifyResult": map[string]any{"isSuccess": true}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := readyCart()
			c.Context = tt.context
			assert.Equal(t, tt.expected, c.GatewayVerified())
		})
	}
}

func TestGatewayVerified_NilCart(t *testing.T) {
	var c *cart.Cart
	assert.False(t, c.GatewayVerified())
}

func TestMergeContext(t *testing.T) {
	bag := map[string]any{"existing": "value"}

	merged, changed := cart.MergeContext(bag, map[string]any{cart.ContextKeyPaymentURL: "https://pay.example/x"})
	require.True(t, changed)
	assert.Equal(t, "value", merged["existing"])
	assert.Equal(t, "https://pay.example/x", merged[cart.ContextKeyPaymentURL])
	assert.NotContains(t, bag, cart.ContextKeyPaymentURL, "input bag must not be mutated")
}

func TestMergeContext_IdenticalValuesSkipped(t *testing.T) {
	bag := map[string]any{cart.ContextKeyCompletion: cart.CompletionMarker}

	merged, changed := cart.MergeContext(bag, map[string]any{cart.ContextKeyCompletion: cart.CompletionMarker})
	assert.False(t, changed)
	assert.Equal(t, bag, merged)
}

func TestMergeContext_NilBag(t *testing.T) {
	merged, changed := cart.MergeContext(nil, map[string]any{"k": 1})
	assert.True(t, changed)
	assert.Equal(t, map[string]any{"k": 1}, merged)
}

func TestWithoutKeys(t *testing.T) {
	bag := map[string]any{cart.ContextKeyPaymentURL: "u", "keep": true}

	out, changed := cart.WithoutKeys(bag, cart.ContextKeyPaymentURL)
	require.True(t, changed)
	assert.Equal(t, map[string]any{"keep": true}, out)
	assert.Contains(t, bag, cart.ContextKeyPaymentURL)

	_, changed = cart.WithoutKeys(out, cart.ContextKeyPaymentURL)
	assert.False(t, changed)
}

func TestPaymentSession_Data(t *testing.T) {
	s := &cart.PaymentSession{
		ID:         "ps_1",
		ProviderID: cart.ProviderStripe,
		Data:       map[string]any{"client_secret": "pi_123_secret_abc", "id": "ORDER-1"},
	}
	assert.Equal(t, "pi_123_secret_abc", s.ClientSecret())
	assert.Equal(t, "ORDER-1", s.OrderID())

	empty := &cart.PaymentSession{}
	assert.Empty(t, empty.ClientSecret())
	assert.Empty(t, empty.OrderID())
}

func TestAddress_FullName(t *testing.T) {
	a := &cart.Address{FirstName: "Ada", LastName: "Lovelace"}
	assert.Equal(t, "Ada Lovelace", a.FullName())
}
