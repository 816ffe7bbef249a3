package testutil

import (
	"context"
	"maps"
	"sort"
	"strconv"
	"sync"
	"time"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/cassiomorais/checkout/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/google/uuid"
)

// --- Attempt Repository Mock ---

// MockAttemptRepository is a mock implementation of checkout.AttemptRepository.
type MockAttemptRepository struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*checkout.Attempt

	CreateFunc     func(ctx context.Context, a *checkout.Attempt) error
	UpdateFunc     func(ctx context.Context, a *checkout.Attempt) error
	GetByIDFunc    func(ctx context.Context, id uuid.UUID) (*checkout.Attempt, error)
	ListByCartFunc func(ctx context.Context, cartID string, limit int) ([]*checkout.Attempt, error)
}

func NewMockAttemptRepository() *MockAttemptRepository {
	return &MockAttemptRepository{attempts: make(map[uuid.UUID]*checkout.Attempt)}
}

func (m *MockAttemptRepository) Create(ctx context.Context, a *checkout.Attempt) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *MockAttemptRepository) Update(ctx context.Context, a *checkout.Attempt) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *MockAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*checkout.Attempt, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, domainErrors.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockAttemptRepository) ListByCart(ctx context.Context, cartID string, limit int) ([]*checkout.Attempt, error) {
	if m.ListByCartFunc != nil {
		return m.ListByCartFunc(ctx, cartID, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*checkout.Attempt
	for _, a := range m.attempts {
		if a.CartID == cartID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Statuses returns the stored status of every attempt for a cart.
func (m *MockAttemptRepository) Statuses(cartID string) []checkout.AttemptStatus {
	list, _ := m.ListByCart(context.Background(), cartID, 0)
	statuses := make([]checkout.AttemptStatus, 0, len(list))
	for _, a := range list {
		statuses = append(statuses, a.Status)
	}
	return statuses
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	CountPendingFunc  func(ctx context.Context) (int64, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.entries {
		if e.Status == outbox.StatusPending && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) CountPending(ctx context.Context) (int64, error) {
	if m.CountPendingFunc != nil {
		return m.CountPendingFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.entries {
		if e.Status == outbox.StatusPending {
			n++
		}
	}
	return n, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			now := time.Now()
			e.Status = outbox.StatusPublished
			e.PublishedAt = &now
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

// --- Event Publisher Mock ---

// MockEventPublisher records the entries relayed to the completion stream.
type MockEventPublisher struct {
	mu        sync.Mutex
	published []*outbox.Entry

	PublishCompletionFunc func(ctx context.Context, entry *outbox.Entry) error
}

func (m *MockEventPublisher) PublishCompletion(ctx context.Context, entry *outbox.Entry) error {
	if m.PublishCompletionFunc != nil {
		if err := m.PublishCompletionFunc(ctx, entry); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, entry)
	return nil
}

// Published returns the relayed entries in order.
func (m *MockEventPublisher) Published() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Entry(nil), m.published...)
}

// Entries returns every inserted entry.
func (m *MockOutboxRepository) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Entry(nil), m.entries...)
}

// --- Cart Store Mock ---

// MockCartStore is an in-memory commerce backend. Every successful context
// update bumps the cart version.
type MockCartStore struct {
	mu        sync.Mutex
	carts     map[string]*cart.Cart
	retrieves int
	updates   int

	RetrieveFunc      func(ctx context.Context, cartID string) (*cart.Cart, error)
	UpdateContextFunc func(ctx context.Context, cartID, version string, bag map[string]any) (*cart.Cart, error)
}

func NewMockCartStore(carts ...*cart.Cart) *MockCartStore {
	m := &MockCartStore{carts: make(map[string]*cart.Cart)}
	for _, c := range carts {
		m.Put(c)
	}
	return m
}

// Put stores a copy of c, defaulting its version to "1".
func (m *MockCartStore) Put(c *cart.Cart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copyCart(c)
	if cp.Version == "" {
		cp.Version = "1"
	}
	m.carts[c.ID] = cp
}

func (m *MockCartStore) Retrieve(ctx context.Context, cartID string) (*cart.Cart, error) {
	m.mu.Lock()
	m.retrieves++
	m.mu.Unlock()
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, cartID)
	}
	return m.Get(cartID)
}

// Get returns the stored cart without counting a retrieve.
func (m *MockCartStore) Get(cartID string) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return nil, domainErrors.ErrCartNotFound
	}
	return copyCart(c), nil
}

func (m *MockCartStore) UpdateContext(ctx context.Context, cartID, version string, bag map[string]any) (*cart.Cart, error) {
	if m.UpdateContextFunc != nil {
		return m.UpdateContextFunc(ctx, cartID, version, bag)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return nil, domainErrors.ErrCartNotFound
	}
	if c.Version != version {
		return nil, domainErrors.ErrOptimisticLockFailed
	}
	m.updates++
	c.Context = maps.Clone(bag)
	n, _ := strconv.Atoi(c.Version)
	c.Version = strconv.Itoa(n + 1)
	return copyCart(c), nil
}

// Retrieves returns how many times Retrieve was called.
func (m *MockCartStore) Retrieves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retrieves
}

// Updates returns how many context writes were applied.
func (m *MockCartStore) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// SetContextValue changes the stored context as the backend would on its own.
func (m *MockCartStore) SetContextValue(cartID, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[cartID]
	bag := maps.Clone(c.Context)
	if bag == nil {
		bag = make(map[string]any)
	}
	bag[key] = value
	c.Context = bag
	n, _ := strconv.Atoi(c.Version)
	c.Version = strconv.Itoa(n + 1)
}

func copyCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Context = maps.Clone(c.Context)
	cp.ShippingMethods = append([]cart.ShippingMethod(nil), c.ShippingMethods...)
	return &cp
}

// --- Checkout Flow Mock ---

// MockCheckoutFlow records completion signals.
type MockCheckoutFlow struct {
	mu        sync.Mutex
	completed []*checkout.Attempt

	OnPaymentCompletedFunc func(ctx context.Context, a *checkout.Attempt) error
}

func (m *MockCheckoutFlow) OnPaymentCompleted(ctx context.Context, a *checkout.Attempt) error {
	if m.OnPaymentCompletedFunc != nil {
		return m.OnPaymentCompletedFunc(ctx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, a)
	return nil
}

// Calls returns how many completion signals were raised.
func (m *MockCheckoutFlow) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.completed)
}

// Attempts returns the attempts that raised a completion signal.
func (m *MockCheckoutFlow) Attempts() []*checkout.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*checkout.Attempt(nil), m.completed...)
}

// --- Processor Mocks ---

// MockCardConfirmer is a mock implementation of CardConfirmer. It is ready
// unless NotReady is set.
type MockCardConfirmer struct {
	mu       sync.Mutex
	requests []checkoutApp.CardConfirmation

	NotReady               bool
	ConfirmCardPaymentFunc func(ctx context.Context, req checkoutApp.CardConfirmation) (*checkoutApp.CardResult, error)
}

func (m *MockCardConfirmer) Ready() bool {
	return !m.NotReady
}

func (m *MockCardConfirmer) ConfirmCardPayment(ctx context.Context, req checkoutApp.CardConfirmation) (*checkoutApp.CardResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.ConfirmCardPaymentFunc != nil {
		return m.ConfirmCardPaymentFunc(ctx, req)
	}
	return &checkoutApp.CardResult{IntentStatus: "succeeded"}, nil
}

// Requests returns every confirmation request received.
func (m *MockCardConfirmer) Requests() []checkoutApp.CardConfirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]checkoutApp.CardConfirmation(nil), m.requests...)
}

// MockOrderAuthorizer is a mock implementation of OrderAuthorizer.
type MockOrderAuthorizer struct {
	mu     sync.Mutex
	orders []string

	AuthorizeOrderFunc func(ctx context.Context, orderID string) (string, error)
}

func (m *MockOrderAuthorizer) AuthorizeOrder(ctx context.Context, orderID string) (string, error) {
	m.mu.Lock()
	m.orders = append(m.orders, orderID)
	m.mu.Unlock()
	if m.AuthorizeOrderFunc != nil {
		return m.AuthorizeOrderFunc(ctx, orderID)
	}
	return "COMPLETED", nil
}

func (m *MockOrderAuthorizer) Orders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.orders...)
}

// MockURLSigner is a mock implementation of URLSigner.
type MockURLSigner struct {
	mu       sync.Mutex
	payments []checkoutApp.GatewayPayment

	BuildPaymentURLFunc func(p checkoutApp.GatewayPayment) (string, error)
}

func (m *MockURLSigner) BuildPaymentURL(p checkoutApp.GatewayPayment) (string, error) {
	m.mu.Lock()
	m.payments = append(m.payments, p)
	m.mu.Unlock()
	if m.BuildPaymentURLFunc != nil {
		return m.BuildPaymentURLFunc(p)
	}
	return "https://gateway.test/pay?vnp_TxnRef=" + p.TxnRef, nil
}

func (m *MockURLSigner) Payments() []checkoutApp.GatewayPayment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]checkoutApp.GatewayPayment(nil), m.payments...)
}

// --- Window Tracker Mock ---

// MockWindowTracker keeps windows in memory. By default AwaitOpen reports
// OpenResult (opened when unset) and State reports closed from the
// ClosedAfterPolls-th poll on; zero never closes.
type MockWindowTracker struct {
	mu       sync.Mutex
	windows  map[uuid.UUID]*checkout.Window
	released map[uuid.UUID]int
	polls    int

	OpenResult       checkout.WindowState
	ClosedAfterPolls int

	RegisterFunc  func(ctx context.Context, w *checkout.Window, ttl time.Duration) error
	AwaitOpenFunc func(ctx context.Context, id uuid.UUID, timeout time.Duration) (checkout.WindowState, error)
	StateFunc     func(ctx context.Context, id uuid.UUID) (checkout.WindowState, error)
	ReleaseFunc   func(ctx context.Context, id uuid.UUID) error
}

func NewMockWindowTracker() *MockWindowTracker {
	return &MockWindowTracker{
		windows:  make(map[uuid.UUID]*checkout.Window),
		released: make(map[uuid.UUID]int),
	}
}

func (m *MockWindowTracker) Register(ctx context.Context, w *checkout.Window, ttl time.Duration) error {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, w, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.windows[w.ID] = &cp
	return nil
}

func (m *MockWindowTracker) AwaitOpen(ctx context.Context, id uuid.UUID, timeout time.Duration) (checkout.WindowState, error) {
	if m.AwaitOpenFunc != nil {
		return m.AwaitOpenFunc(ctx, id, timeout)
	}
	if m.OpenResult != "" {
		return m.OpenResult, nil
	}
	return checkout.WindowOpened, nil
}

func (m *MockWindowTracker) State(ctx context.Context, id uuid.UUID) (checkout.WindowState, error) {
	m.mu.Lock()
	m.polls++
	polls := m.polls
	m.mu.Unlock()
	if m.StateFunc != nil {
		return m.StateFunc(ctx, id)
	}
	if m.ClosedAfterPolls > 0 && polls >= m.ClosedAfterPolls {
		return checkout.WindowClosed, nil
	}
	return checkout.WindowOpened, nil
}

func (m *MockWindowTracker) Release(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	m.released[id]++
	m.mu.Unlock()
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, id)
	}
	return nil
}

// Polls returns how many times State was called.
func (m *MockWindowTracker) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

// Registered returns every registered window.
func (m *MockWindowTracker) Registered() []*checkout.Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*checkout.Window, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w)
	}
	return out
}

// Releases returns how many times each window was released.
func (m *MockWindowTracker) Releases() map[uuid.UUID]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.released)
}

// --- Locker Mock ---

// MockLocker is an in-memory single-flight lock.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool

	AcquireFunc func(ctx context.Context, key string, ttl time.Duration) (checkoutApp.Lease, error)
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (checkoutApp.Lease, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domainErrors.ErrLockAcquisitionFailed
	}
	m.held[key] = true
	return &mockLease{locker: m, key: key}, nil
}

// Hold marks key as held by another owner.
func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = true
}

func (m *MockLocker) IsHeld(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[key]
}

type mockLease struct {
	locker *MockLocker
	key    string
}

func (l *mockLease) Release(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.held, l.key)
	return nil
}

// --- Cart Completer Mock ---

type MockCartCompleter struct {
	mu    sync.Mutex
	carts []string

	CompleteCartFunc func(ctx context.Context, cartID string) error
}

func (m *MockCartCompleter) CompleteCart(ctx context.Context, cartID string) error {
	m.mu.Lock()
	m.carts = append(m.carts, cartID)
	m.mu.Unlock()
	if m.CompleteCartFunc != nil {
		return m.CompleteCartFunc(ctx, cartID)
	}
	return nil
}

func (m *MockCartCompleter) Completed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.carts...)
}
