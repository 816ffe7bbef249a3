package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/cassiomorais/checkout/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// User-visible control error texts.
const (
	MsgPopupBlocked      = "Unable to open payment popup. Please enable pop-ups."
	MsgUnknownError      = "An unknown error occurred, please try again."
	MsgPaymentURLMissing = "Payment URL not found in the response."
	MsgVerifyFailed      = "We could not verify your payment. Please refresh the page."
	MsgWindowTimeout     = "The payment window timed out. Please try again."
	MsgInProgress        = "A payment is already in progress."

	msgProcessingPrefix = "An error occurred while processing the payment. "
	msgStatusPrefix     = "An error occurred, status: "
)

const finishTimeout = 10 * time.Second

// Options tunes attempt execution.
type Options struct {
	PollInterval  time.Duration
	WindowTimeout time.Duration
	OpenTimeout   time.Duration
	LockTTL       time.Duration
}

// Dependencies are the collaborators shared by every control.
type Dependencies struct {
	// Carts must not serve cached carts: gateway reconciliation reads through it.
	Carts    CartStore
	Context  *ContextWriter
	Flow     CheckoutFlow
	Card     CardConfirmer
	Wallet   OrderAuthorizer
	Signer   URLSigner
	Windows  WindowTracker
	Locker   Locker
	Attempts checkout.AttemptRepository
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
	Options  Options
}

// Action is one user submit on a payment control.
type Action struct {
	// PaymentMethod is the tokenized card input (card variant).
	PaymentMethod string
	// Approved is set once the customer approved the wallet order (wallet variant).
	Approved bool
	ClientIP string
	Viewport checkout.Viewport
}

// WindowView tells the browser which gateway window to open and where.
type WindowView struct {
	ID       uuid.UUID
	URL      string
	Geometry checkout.Geometry
}

// State is a rendered snapshot of a control.
type State struct {
	CartID          string
	SessionID       string
	Variant         checkout.Variant
	NotReady        bool
	VariantDisabled bool
	Submitting      bool
	Completed       bool
	Error           string
	Window          *WindowView
	AttemptID       *uuid.UUID
}

// Disabled reports whether the control accepts a submit.
func (s State) Disabled() bool {
	return s.NotReady || s.Submitting || s.VariantDisabled || s.Completed
}

type outcome struct {
	completed bool
	errMsg    string
}

// Control is the payment control for one (cart, payment session) pair. At
// most one attempt runs at a time; attempts run on the control's lifetime
// context and are cancelled by Close.
type Control struct {
	cartID  string
	session cart.PaymentSession
	variant checkout.Variant
	deps    *Dependencies
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	submitting bool
	completed  bool
	closed     bool
	errMsg     string
	window     *WindowView
	attemptID  *uuid.UUID
	lastSeen   time.Time
}

func newControl(cartID string, session *cart.PaymentSession, deps *Dependencies) *Control {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Control{
		cartID:   cartID,
		variant:  checkout.VariantFor(session),
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: deps.Now(),
	}
	if session != nil {
		c.session = *session
	}
	c.logger = deps.Logger.With().
		Str("cart_id", cartID).
		Str("session_id", c.session.ID).
		Str("provider", string(c.variant.Provider())).
		Logger()
	return c
}

func (c *Control) CartID() string            { return c.cartID }
func (c *Control) Variant() checkout.Variant { return c.variant }
func (c *Control) SessionID() string         { return c.session.ID }

// State renders the control against the current cart.
func (c *Control) State(current *cart.Cart) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = c.deps.Now()

	s := State{
		CartID:          c.cartID,
		SessionID:       c.session.ID,
		Variant:         c.variant,
		NotReady:        cart.NotReady(current),
		VariantDisabled: c.variantDisabled(),
		Submitting:      c.submitting,
		Completed:       c.completed,
		Error:           c.errMsg,
		AttemptID:       c.attemptID,
	}
	if c.window != nil {
		w := *c.window
		s.Window = &w
	}
	return s
}

func (c *Control) variantDisabled() bool {
	switch c.variant.(type) {
	case checkout.Unselected:
		return true
	case checkout.CardProcessor:
		return !c.deps.Card.Ready()
	case checkout.RegionalGateway, checkout.Manual, checkout.WalletRedirect:
		return false
	default:
		panic("checkout: unknown variant")
	}
}

// Submit starts an attempt. The returned channel is closed once the attempt
// resolves. Submitting the Unselected variant is a no-op.
func (c *Control) Submit(current *cart.Cart, action Action) (<-chan struct{}, error) {
	done := make(chan struct{})

	c.mu.Lock()
	switch {
	case c.closed, c.completed:
		c.mu.Unlock()
		return nil, domainErrors.ErrControlDisabled
	case c.submitting:
		c.mu.Unlock()
		return nil, domainErrors.ErrAttemptInFlight
	}
	if _, ok := c.variant.(checkout.Unselected); ok {
		c.mu.Unlock()
		close(done)
		return done, nil
	}
	if c.variantDisabled() {
		c.mu.Unlock()
		return nil, domainErrors.ErrControlDisabled
	}
	if cart.NotReady(current) {
		c.mu.Unlock()
		return nil, domainErrors.ErrCheckoutNotReady
	}
	if current.ID != c.cartID || (current.PaymentSession != nil && current.PaymentSession.ID != c.session.ID) {
		c.mu.Unlock()
		return nil, domainErrors.ErrSessionMismatch
	}

	c.submitting = true
	c.errMsg = ""
	c.window = nil
	c.lastSeen = c.deps.Now()
	c.wg.Add(1)
	c.mu.Unlock()

	if _, ok := c.variant.(checkout.Manual); ok {
		c.run(current, action, done)
		return done, nil
	}
	go c.run(current, action, done)
	return done, nil
}

// Close tears the control down. A running attempt is cancelled, which
// releases any window being watched.
func (c *Control) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

// Wait blocks until the running attempt, if any, has finished.
func (c *Control) Wait() {
	c.wg.Wait()
}

// idle reports whether the control has no attempt in flight and has not been
// rendered or submitted since cutoff.
func (c *Control) idle(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.submitting && c.lastSeen.Before(cutoff)
}

func (c *Control) run(current *cart.Cart, action Action, done chan struct{}) {
	defer close(done)
	defer c.wg.Done()

	provider := string(c.variant.Provider())
	m := c.deps.Metrics
	start := time.Now()

	ctx, span := observability.Tracer().Start(c.ctx, "checkout.attempt", trace.WithAttributes(
		attribute.String("cart.id", c.cartID),
		attribute.String("payment.provider", provider),
	))
	defer span.End()

	m.ActiveAttempts.Inc()
	defer m.ActiveAttempts.Dec()

	attempt, err := checkout.NewAttempt(c.cartID, c.session.ID, c.variant.Provider())
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to create payment attempt")
		c.settle(outcome{errMsg: MsgUnknownError})
		return
	}
	span.SetAttributes(attribute.String("attempt.id", attempt.ID.String()))

	c.mu.Lock()
	c.attemptID = &attempt.ID
	c.mu.Unlock()

	if err := c.deps.Attempts.Create(ctx, attempt); err != nil {
		c.logger.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to record payment attempt")
	}

	out := c.guarded(ctx, current, action)
	out = c.finish(ctx, attempt, out)
	c.settle(out)

	if out.errMsg != "" {
		span.SetStatus(codes.Error, out.errMsg)
	}
	span.SetAttributes(attribute.String("attempt.status", string(attempt.Status)))
	m.AttemptsTotal.WithLabelValues(provider, string(attempt.Status)).Inc()
	m.AttemptDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// guarded runs the flow under the cross-replica attempt lock for the cart.
// Manual completes in place and takes no lock.
func (c *Control) guarded(ctx context.Context, current *cart.Cart, action Action) outcome {
	if _, ok := c.variant.(checkout.Manual); ok {
		return c.dispatch(ctx, current, action)
	}

	lease, err := c.deps.Locker.Acquire(ctx, "attempt:"+c.cartID, c.deps.Options.LockTTL)
	if err != nil {
		if errors.Is(err, domainErrors.ErrLockAcquisitionFailed) {
			return outcome{errMsg: MsgInProgress}
		}
		c.logger.Error().Err(err).Msg("Failed to acquire attempt lock")
		return outcome{errMsg: MsgUnknownError}
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lease.Release(rctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to release attempt lock")
		}
	}()

	return c.dispatch(ctx, current, action)
}

func (c *Control) dispatch(ctx context.Context, current *cart.Cart, action Action) outcome {
	switch v := c.variant.(type) {
	case checkout.CardProcessor:
		return c.runCard(ctx, v, current, action)
	case checkout.WalletRedirect:
		return c.runWallet(ctx, v, action)
	case checkout.RegionalGateway:
		return c.runGateway(ctx, current, action)
	case checkout.Manual:
		return outcome{completed: true}
	case checkout.Unselected:
		return outcome{}
	default:
		panic("checkout: unknown variant")
	}
}

// finish records the attempt's terminal status and raises the completion
// signal. Writes run detached from ctx so a torn-down control still records
// its attempt.
func (c *Control) finish(ctx context.Context, attempt *checkout.Attempt, out outcome) outcome {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	logger := c.logger.With().Str("attempt_id", attempt.ID.String()).Logger()

	if out.completed {
		_ = attempt.MarkCompleted(out.errMsg)
		if err := c.deps.Flow.OnPaymentCompleted(wctx, attempt); err != nil {
			logger.Error().Err(err).Msg("Failed to record payment completion")
			return outcome{errMsg: MsgVerifyFailed}
		}
		c.deps.Metrics.Completions.WithLabelValues(string(attempt.Provider)).Inc()
		logger.Info().Msg("Payment completed")
		return out
	}

	switch {
	case ctx.Err() != nil:
		_ = attempt.MarkAbandoned()
		out.errMsg = ""
	case out.errMsg != "":
		_ = attempt.MarkFailed(out.errMsg)
	default:
		_ = attempt.MarkEnded()
	}
	if err := c.deps.Attempts.Update(wctx, attempt); err != nil {
		logger.Warn().Err(err).Msg("Failed to update payment attempt")
	}
	logger.Info().Str("status", string(attempt.Status)).Msg("Payment attempt finished")
	return out
}

func (c *Control) settle(out outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	c.errMsg = out.errMsg
	c.completed = c.completed || out.completed
	c.window = nil
	c.lastSeen = c.deps.Now()
}

func (c *Control) showWindow(v *WindowView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = v
}
