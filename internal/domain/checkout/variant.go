package checkout

import "github.com/cassiomorais/checkout/internal/domain/cart"

// Variant is the payment control shape selected for a payment session. The
// set is closed: only the types in this file implement it.
type Variant interface {
	Provider() cart.ProviderID
	Label() string
	isVariant()
}

// CardProcessor confirms a card payment against the session's client secret.
type CardProcessor struct {
	ClientSecret string
}

// RegionalGateway redirects the customer to a signed gateway URL in a
// separate window and reconciles once the window closes.
type RegionalGateway struct{}

// Manual completes immediately. Used for test and development carts.
type Manual struct{}

// WalletRedirect authorizes an order already created by the wallet provider.
type WalletRedirect struct {
	OrderID string
}

// Unselected is rendered when no usable payment session exists.
type Unselected struct{}

func (CardProcessor) Provider() cart.ProviderID   { return cart.ProviderStripe }
func (RegionalGateway) Provider() cart.ProviderID { return cart.ProviderVNPay }
func (Manual) Provider() cart.ProviderID          { return cart.ProviderManual }
func (WalletRedirect) Provider() cart.ProviderID  { return cart.ProviderPayPal }
func (Unselected) Provider() cart.ProviderID      { return "" }

func (CardProcessor) Label() string   { return "Checkout" }
func (RegionalGateway) Label() string { return "Checkout" }
func (Manual) Label() string          { return "Checkout" }
func (WalletRedirect) Label() string  { return "Pay with PayPal" }
func (Unselected) Label() string      { return "Select a payment method" }

func (CardProcessor) isVariant()   {}
func (RegionalGateway) isVariant() {}
func (Manual) isVariant()          {}
func (WalletRedirect) isVariant()  {}
func (Unselected) isVariant()      {}

// VariantFor maps a payment session to its control variant. A nil session
// or an unknown provider yields Unselected.
func VariantFor(session *cart.PaymentSession) Variant {
	if session == nil {
		return Unselected{}
	}
	switch session.ProviderID {
	case cart.ProviderStripe:
		return CardProcessor{ClientSecret: session.ClientSecret()}
	case cart.ProviderVNPay:
		return RegionalGateway{}
	case cart.ProviderManual:
		return Manual{}
	case cart.ProviderPayPal:
		return WalletRedirect{OrderID: session.OrderID()}
	default:
		return Unselected{}
	}
}

// Kind is the stable name of a variant, used in API responses and metrics.
func Kind(v Variant) string {
	switch v.(type) {
	case CardProcessor:
		return "card"
	case RegionalGateway:
		return "gateway"
	case Manual:
		return "manual"
	case WalletRedirect:
		return "wallet"
	case Unselected:
		return "unselected"
	default:
		panic("checkout: unknown variant")
	}
}
