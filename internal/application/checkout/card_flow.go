package checkout

import (
	"context"
	"errors"

	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/cassiomorais/checkout/internal/domain/checkout"
)

// Intent statuses after which the order may progress.
const (
	intentRequiresCapture = "requires_capture"
	intentSucceeded       = "succeeded"
)

func capturable(status string) bool {
	return status == intentRequiresCapture || status == intentSucceeded
}

// runCard confirms the card payment. A processor error still completes the
// attempt when it embeds a capturable intent; the error text is shown either way.
func (c *Control) runCard(ctx context.Context, v checkout.CardProcessor, current *cart.Cart, action Action) outcome {
	if current == nil || action.PaymentMethod == "" {
		return outcome{}
	}

	res, err := c.deps.Card.ConfirmCardPayment(ctx, CardConfirmation{
		ClientSecret:  v.ClientSecret,
		PaymentMethod: action.PaymentMethod,
		Billing:       billingFrom(current),
	})
	if err != nil {
		var cardErr *CardError
		if !errors.As(err, &cardErr) {
			c.logger.Error().Err(err).Msg("Card confirmation failed")
			return outcome{errMsg: MsgUnknownError}
		}
		msg := cardErr.Message
		if msg == "" {
			msg = MsgUnknownError
		}
		return outcome{completed: capturable(cardErr.IntentStatus), errMsg: msg}
	}

	if res != nil && capturable(res.IntentStatus) {
		return outcome{completed: true}
	}
	return outcome{}
}

func billingFrom(c *cart.Cart) BillingDetails {
	a := c.BillingAddress
	if a == nil {
		return BillingDetails{}
	}

	var email *string
	if c.Email != "" {
		e := c.Email
		email = &e
	}

	return BillingDetails{
		Name:       a.FullName(),
		City:       a.City,
		Country:    a.CountryCode,
		Line1:      a.Address1,
		Line2:      a.Address2,
		PostalCode: a.PostalCode,
		State:      a.Province,
		Email:      email,
		Phone:      a.Phone,
	}
}
