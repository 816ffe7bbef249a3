package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/cassiomorais/checkout/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/pkg/saga"
	"github.com/rs/zerolog"
)

const gatewayOrderInfoPrefix = "Thanh toan cho ma GD: "

// runGateway drives the regional gateway: sign the URL, record it on the
// cart, open the gateway window, watch it until closed, then reconcile
// against the backend's verification result.
func (c *Control) runGateway(ctx context.Context, current *cart.Cart, action Action) outcome {
	opts := c.deps.Options
	ref := current.ID + "-" + c.deps.Now().Format(time.RFC3339)

	url, err := c.deps.Signer.BuildPaymentURL(GatewayPayment{
		Amount:    current.Total,
		TxnRef:    ref,
		OrderInfo: gatewayOrderInfoPrefix + ref,
		ClientIP:  action.ClientIP,
		CreatedAt: c.deps.Now(),
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build gateway payment URL")
		return outcome{errMsg: msgProcessingPrefix + err.Error()}
	}
	if url == "" {
		return outcome{errMsg: MsgPaymentURLMissing}
	}

	win := checkout.NewWindow(current.ID, url, action.Viewport)
	logger := c.logger.With().Str("window_id", win.ID.String()).Logger()

	// closed before its opened event arrived, or that event was lost
	var closedEarly bool

	open := saga.New("gateway-open").
		AddStep(saga.Step{
			Name: "record-url",
			Execute: func(ctx context.Context) error {
				return c.deps.Context.Merge(ctx, current.ID, map[string]any{cart.ContextKeyPaymentURL: url})
			},
			Compensate: func(ctx context.Context) error {
				return c.deps.Context.Remove(ctx, current.ID, cart.ContextKeyPaymentURL)
			},
		}).
		AddStep(saga.Step{
			Name: "register-window",
			Execute: func(ctx context.Context) error {
				return c.deps.Windows.Register(ctx, win, opts.OpenTimeout+opts.WindowTimeout)
			},
			Compensate: func(ctx context.Context) error {
				return c.deps.Windows.Release(ctx, win.ID)
			},
		}).
		AddStep(saga.Step{
			Name: "await-open",
			Execute: func(ctx context.Context) error {
				c.showWindow(&WindowView{ID: win.ID, URL: win.URL, Geometry: win.Geometry})
				state, err := c.deps.Windows.AwaitOpen(ctx, win.ID, opts.OpenTimeout)
				if err != nil {
					return err
				}
				switch state {
				case checkout.WindowOpened:
					return nil
				case checkout.WindowClosed:
					closedEarly = true
					return nil
				default:
					c.showWindow(nil)
					return domainErrors.ErrPopupBlocked
				}
			},
		})

	if err := open.Execute(ctx); err != nil {
		c.showWindow(nil)
		switch {
		case errors.Is(err, domainErrors.ErrPopupBlocked):
			logger.Info().Msg("Payment window blocked")
			return outcome{errMsg: MsgPopupBlocked}
		case ctx.Err() != nil:
			return outcome{}
		default:
			logger.Error().Err(err).Msg("Failed to open payment window")
			return outcome{errMsg: msgProcessingPrefix + err.Error()}
		}
	}

	if closedEarly {
		c.showWindow(nil)
		releaseWindow(ctx, c.deps.Windows, win.ID, logger)
		logger.Info().Msg("Payment window closed before it was reported open")
		return c.reconcileGateway(ctx, current.ID, logger)
	}

	watch := &windowWatch{
		tracker:  c.deps.Windows,
		id:       win.ID,
		interval: opts.PollInterval,
		timeout:  opts.WindowTimeout,
		metrics:  c.deps.Metrics,
		logger:   logger,
	}
	if err := watch.wait(ctx); err != nil {
		if errors.Is(err, domainErrors.ErrWindowTimeout) {
			logger.Info().Msg("Payment window timed out")
			return outcome{errMsg: MsgWindowTimeout}
		}
		return outcome{}
	}

	return c.reconcileGateway(ctx, current.ID, logger)
}

// reconcileGateway marks the cart as returned from the gateway and checks the
// backend's verification of the payment, reading past any cart cache.
func (c *Control) reconcileGateway(ctx context.Context, cartID string, logger zerolog.Logger) outcome {
	marker := map[string]any{cart.ContextKeyCompletion: cart.CompletionMarker}
	if err := c.deps.Context.Merge(ctx, cartID, marker); err != nil {
		logger.Warn().Err(err).Msg("Failed to write gateway completion marker")
	}

	fresh, err := c.deps.Carts.Retrieve(ctx, cartID)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{}
		}
		logger.Error().Err(err).Msg("Failed to fetch cart for gateway reconciliation")
		return outcome{errMsg: MsgVerifyFailed}
	}
	if !fresh.GatewayVerified() {
		logger.Info().Msg("Gateway payment not verified")
		return outcome{}
	}
	return outcome{completed: true}
}
