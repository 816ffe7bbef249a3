package cart

import (
	"maps"
	"reflect"
)

// ProviderID identifies the payment processor behind a payment session.
type ProviderID string

const (
	ProviderStripe ProviderID = "stripe"
	ProviderVNPay  ProviderID = "vn-pay"
	ProviderManual ProviderID = "manual"
	ProviderPayPal ProviderID = "paypal"
)

// Context bag keys written during the gateway flow.
const (
	ContextKeyPaymentURL = "paymentUrl"
	ContextKeyCompletion = "cac"
	CompletionMarker     = "cac"
)

// Address is a shipping or billing address as returned by the commerce backend.
// Optional fields are nil when the backend has no value for them.
type Address struct {
	FirstName   string
	LastName    string
	Address1    *string
	Address2    *string
	City        *string
	CountryCode *string
	PostalCode  *string
	Province    *string
	Phone       *string
}

// FullName joins first and last name with a single space.
func (a *Address) FullName() string {
	return a.FirstName + " " + a.LastName
}

type ShippingMethod struct {
	ID               string
	ShippingOptionID string
	Amount           int64
}

// PaymentSession binds a cart to one payment provider attempt.
type PaymentSession struct {
	ID         string
	ProviderID ProviderID
	Data       map[string]any
}

// ClientSecret returns the card processor client secret carried in the session data.
func (s *PaymentSession) ClientSecret() string {
	return stringField(s.Data, "client_secret")
}

// OrderID returns the wallet order id carried in the session data.
func (s *PaymentSession) OrderID() string {
	return stringField(s.Data, "id")
}

// Cart is the checkout cart owned by the commerce backend.
type Cart struct {
	ID              string
	Email           string
	ShippingAddress *Address
	BillingAddress  *Address
	ShippingMethods []ShippingMethod
	Total           int64
	CurrencyCode    string
	Context         map[string]any
	PaymentSession  *PaymentSession
	// Version is the backend's updated_at stamp, used as a write precondition.
	Version string
}

// NotReady reports whether the cart is missing anything required before a
// payment attempt may start. A nil cart is never ready.
func NotReady(c *Cart) bool {
	if c == nil {
		return true
	}
	return c.ShippingAddress == nil ||
		c.BillingAddress == nil ||
		c.Email == "" ||
		len(c.ShippingMethods) == 0
}

// GatewayVerified reports whether the backend recorded a successful gateway
// verification under context.vnpay.verifyResult.isSuccess.
func (c *Cart) GatewayVerified() bool {
	if c == nil {
		return false
	}
	vnpay, ok := c.Context["vnpay"].(map[string]any)
	if !ok {
		return false
	}
	result, ok := vnpay["verifyResult"].(map[string]any)
	if !ok {
		return false
	}
	success, ok := result["isSuccess"].(bool)
	return ok && success
}

// MergeContext returns bag with patch applied on top. changed is false when
// every patch key already holds an identical value, in which case the
// original bag is returned untouched.
func MergeContext(bag, patch map[string]any) (map[string]any, bool) {
	changed := false
	for k, v := range patch {
		cur, ok := bag[k]
		if !ok || !reflect.DeepEqual(cur, v) {
			changed = true
			break
		}
	}
	if !changed {
		return bag, false
	}

	merged := make(map[string]any, len(bag)+len(patch))
	maps.Copy(merged, bag)
	maps.Copy(merged, patch)
	return merged, true
}

// WithoutKeys returns bag without the given keys. changed is false when none
// of the keys were present.
func WithoutKeys(bag map[string]any, keys ...string) (map[string]any, bool) {
	changed := false
	for _, k := range keys {
		if _, ok := bag[k]; ok {
			changed = true
			break
		}
	}
	if !changed {
		return bag, false
	}

	out := maps.Clone(bag)
	for _, k := range keys {
		delete(out, k)
	}
	return out, true
}

func stringField(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}
