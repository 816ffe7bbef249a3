package checkout

import (
	"context"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/cassiomorais/checkout/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/google/uuid"
)

// CartStore reads and writes carts on the commerce backend.
type CartStore interface {
	Retrieve(ctx context.Context, cartID string) (*cart.Cart, error)
	// UpdateContext replaces the cart's context bag. version is the cart
	// version the bag was derived from; a stale version yields
	// errors.ErrOptimisticLockFailed.
	UpdateContext(ctx context.Context, cartID, version string, bag map[string]any) (*cart.Cart, error)
}

// CheckoutFlow is notified when an attempt completes payment. Called at most
// once per attempt.
type CheckoutFlow interface {
	OnPaymentCompleted(ctx context.Context, attempt *checkout.Attempt) error
}

// BillingDetails is the billing address forwarded to the card processor.
// Nil fields are omitted from the request.
type BillingDetails struct {
	Name       string
	City       *string
	Country    *string
	Line1      *string
	Line2      *string
	PostalCode *string
	State      *string
	Email      *string
	Phone      *string
}

type CardConfirmation struct {
	ClientSecret  string
	PaymentMethod string
	Billing       BillingDetails
}

// CardResult carries the payment intent status after confirmation.
type CardResult struct {
	IntentStatus string
}

// CardError is a processor rejection. IntentStatus is set when the error
// response embedded a payment intent.
type CardError struct {
	Message      string
	IntentStatus string
}

func (e *CardError) Error() string {
	return e.Message
}

func (e *CardError) Unwrap() error {
	return domainErrors.ErrProviderRejected
}

// CardConfirmer confirms card payments with the card processor.
type CardConfirmer interface {
	// Ready reports whether the processor client is configured.
	Ready() bool
	ConfirmCardPayment(ctx context.Context, req CardConfirmation) (*CardResult, error)
}

// OrderAuthorizer authorizes wallet orders and returns the resulting status.
type OrderAuthorizer interface {
	AuthorizeOrder(ctx context.Context, orderID string) (string, error)
}

// GatewayPayment is the input to a signed gateway URL.
type GatewayPayment struct {
	Amount    int64
	TxnRef    string
	OrderInfo string
	ClientIP  string
	CreatedAt time.Time
}

// URLSigner builds signed regional gateway payment URLs.
type URLSigner interface {
	BuildPaymentURL(p GatewayPayment) (string, error)
}

// WindowTracker follows gateway windows through their browser-reported states.
type WindowTracker interface {
	Register(ctx context.Context, w *checkout.Window, ttl time.Duration) error
	// AwaitOpen blocks until the browser reports opened or blocked, or the
	// timeout elapses. A timeout reports WindowPending.
	AwaitOpen(ctx context.Context, id uuid.UUID, timeout time.Duration) (checkout.WindowState, error)
	State(ctx context.Context, id uuid.UUID) (checkout.WindowState, error)
	Release(ctx context.Context, id uuid.UUID) error
}

// WindowEvents records browser window events.
type WindowEvents interface {
	Record(ctx context.Context, id uuid.UUID, state checkout.WindowState) error
}

// Lease is a held single-flight lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker takes cross-replica single-flight locks. A lock held elsewhere
// yields errors.ErrLockAcquisitionFailed.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// TransactionManager defines the interface for transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxWriter defines the interface for writing to the transactional outbox.
type OutboxWriter interface {
	Insert(ctx context.Context, entry *outbox.Entry) error
}

// CartCompleter asks the commerce backend to turn a paid cart into an order.
type CartCompleter interface {
	CompleteCart(ctx context.Context, cartID string) error
}
