package checkout

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/checkout"
)

// StatusAuthorized is the wallet authorization status that completes payment.
const StatusAuthorized = "COMPLETED"

// runWallet authorizes the wallet order the customer approved. Nothing
// happens until the browser reports approval.
func (c *Control) runWallet(ctx context.Context, v checkout.WalletRedirect, action Action) outcome {
	if !action.Approved {
		return outcome{}
	}

	status, err := c.deps.Wallet.AuthorizeOrder(ctx, v.OrderID)
	if err != nil {
		c.logger.Warn().Err(err).Str("order_id", v.OrderID).Msg("Wallet authorization failed")
		return outcome{errMsg: MsgUnknownError}
	}
	if status != StatusAuthorized {
		return outcome{errMsg: msgStatusPrefix + status}
	}
	return outcome{completed: true}
}
