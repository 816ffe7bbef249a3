package commerce

import "github.com/cassiomorais/checkout/internal/domain/cart"

type cartEnvelope struct {
	Cart cartDTO `json:"cart"`
}

type completeEnvelope struct {
	Type string `json:"type"`
}

type updateCartRequest struct {
	Context map[string]any `json:"context"`
}

type addressDTO struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Address1    *string `json:"address_1"`
	Address2    *string `json:"address_2"`
	City        *string `json:"city"`
	CountryCode *string `json:"country_code"`
	PostalCode  *string `json:"postal_code"`
	Province    *string `json:"province"`
	Phone       *string `json:"phone"`
}

type shippingMethodDTO struct {
	ID               string `json:"id"`
	ShippingOptionID string `json:"shipping_option_id"`
	Price            int64  `json:"price"`
}

type paymentSessionDTO struct {
	ID         string         `json:"id"`
	ProviderID string         `json:"provider_id"`
	Data       map[string]any `json:"data"`
}

type regionDTO struct {
	CurrencyCode string `json:"currency_code"`
}

type cartDTO struct {
	ID              string              `json:"id"`
	Email           *string             `json:"email"`
	ShippingAddress *addressDTO         `json:"shipping_address"`
	BillingAddress  *addressDTO         `json:"billing_address"`
	ShippingMethods []shippingMethodDTO `json:"shipping_methods"`
	Total           int64               `json:"total"`
	Region          *regionDTO          `json:"region"`
	Context         map[string]any      `json:"context"`
	PaymentSession  *paymentSessionDTO  `json:"payment_session"`
	UpdatedAt       string              `json:"updated_at"`
}

func (d *cartDTO) toDomain() *cart.Cart {
	c := &cart.Cart{
		ID:              d.ID,
		Email:           deref(d.Email),
		ShippingAddress: d.ShippingAddress.toDomain(),
		BillingAddress:  d.BillingAddress.toDomain(),
		Total:           d.Total,
		Context:         d.Context,
		Version:         d.UpdatedAt,
	}
	if c.Context == nil {
		c.Context = map[string]any{}
	}
	if d.Region != nil {
		c.CurrencyCode = d.Region.CurrencyCode
	}
	for _, sm := range d.ShippingMethods {
		c.ShippingMethods = append(c.ShippingMethods, cart.ShippingMethod{
			ID:               sm.ID,
			ShippingOptionID: sm.ShippingOptionID,
			Amount:           sm.Price,
		})
	}
	if d.PaymentSession != nil {
		c.PaymentSession = &cart.PaymentSession{
			ID:         d.PaymentSession.ID,
			ProviderID: cart.ProviderID(d.PaymentSession.ProviderID),
			Data:       d.PaymentSession.Data,
		}
	}
	return c
}

func (a *addressDTO) toDomain() *cart.Address {
	if a == nil {
		return nil
	}
	return &cart.Address{
		FirstName:   deref(a.FirstName),
		LastName:    deref(a.LastName),
		Address1:    a.Address1,
		Address2:    a.Address2,
		City:        a.City,
		CountryCode: a.CountryCode,
		PostalCode:  a.PostalCode,
		Province:    a.Province,
		Phone:       a.Phone,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
