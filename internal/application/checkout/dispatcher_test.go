package checkout_test

import (
	"context"
	"sync"
	"testing"
	"time"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	"github.com/cassiomorais/checkout/internal/domain/cart"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestDispatcher_ReusesControlForSameSession(t *testing.T) {
	c := cardCart()
	env := testutil.NewEnv(c)
	d := checkoutApp.NewDispatcher(env.Dependencies())

	first := d.Control(c.ID, c.PaymentSession)
	second := d.Control(c.ID, c.PaymentSession)
	assert.Same(t, first, second)

	held, ok := d.Lookup(c.ID)
	require.True(t, ok)
	assert.Same(t, first, held)
}

func TestDispatcher_SessionSwitchReplacesControl(t *testing.T) {
	c := cardCart()
	env := testutil.NewEnv(c)
	d := checkoutApp.NewDispatcher(env.Dependencies())

	old := d.Control(c.ID, c.PaymentSession)

	switched := walletCart()
	fresh := d.Control(switched.ID, switched.PaymentSession)
	require.NotSame(t, old, fresh)
	assert.Equal(t, cart.ProviderPayPal, fresh.Variant().Provider())

	_, err := old.Submit(c, checkoutApp.Action{PaymentMethod: "pm_card_visa"})
	assert.ErrorIs(t, err, domainErrors.ErrControlDisabled)

	fresh2 := d.Control(switched.ID, switched.PaymentSession)
	assert.Same(t, fresh, fresh2)
}

func TestDispatcher_SessionSwitchCancelsGatewayWatch(t *testing.T) {
	c := gatewayCart(true)
	env := testutil.NewEnv(c)
	d := checkoutApp.NewDispatcher(env.Dependencies())

	old := d.Control(c.ID, c.PaymentSession)
	done, err := old.Submit(c, gatewayAction())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.Windows.Polls() > 0 }, time.Second, time.Millisecond)

	d.Control(c.ID, cardCart().PaymentSession)
	waitDone(t, done)

	assert.Equal(t, 1, totalReleases(env.Windows.Releases()))
	assert.Equal(t, 0, env.Flow.Calls())
}

func TestDispatcher_UnselectedToSelected(t *testing.T) {
	c := testutil.NewReadyCart(testCartID)
	env := testutil.NewEnv(c)
	d := checkoutApp.NewDispatcher(env.Dependencies())

	unselected := d.Control(c.ID, nil)
	assert.Same(t, unselected, d.Control(c.ID, nil))

	card := d.Control(c.ID, cardCart().PaymentSession)
	assert.NotSame(t, unselected, card)
	assert.Equal(t, cart.ProviderStripe, card.Variant().Provider())
}

func TestDispatcher_Close(t *testing.T) {
	c := cardCart()
	env := testutil.NewEnv(c)
	d := checkoutApp.NewDispatcher(env.Dependencies())

	d.Control(c.ID, c.PaymentSession)
	assert.True(t, d.Close(c.ID))
	assert.False(t, d.Close(c.ID))

	_, ok := d.Lookup(c.ID)
	assert.False(t, ok)
}

func TestDispatcher_SweepClosesIdleControls(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	env := testutil.NewEnv(cardCart())
	deps := env.Dependencies()
	deps.Now = clock.Now
	d := checkoutApp.NewDispatcher(deps)

	idle := d.Control("cart_idle", cardCart().PaymentSession)
	clock.Advance(20 * time.Minute)
	active := d.Control("cart_active", cardCart().PaymentSession)

	clock.Advance(15 * time.Minute)
	active.State(cardCart())

	assert.Equal(t, 1, d.Sweep(30*time.Minute))

	_, ok := d.Lookup("cart_idle")
	assert.False(t, ok)
	_, ok = d.Lookup("cart_active")
	assert.True(t, ok)

	_, err := idle.Submit(cardCart(), checkoutApp.Action{PaymentMethod: "pm_card_visa"})
	assert.ErrorIs(t, err, domainErrors.ErrControlDisabled)
}

func TestDispatcher_SweepSkipsInFlightAttempts(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := cardCart()
	env := testutil.NewEnv(c)
	release := make(chan struct{})
	env.Card.ConfirmCardPaymentFunc = func(context.Context, checkoutApp.CardConfirmation) (*checkoutApp.CardResult, error) {
		<-release
		return &checkoutApp.CardResult{IntentStatus: "succeeded"}, nil
	}
	deps := env.Dependencies()
	deps.Now = clock.Now
	d := checkoutApp.NewDispatcher(deps)

	ctl := d.Control(c.ID, c.PaymentSession)
	done, err := ctl.Submit(c, checkoutApp.Action{PaymentMethod: "pm_card_visa"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	assert.Equal(t, 0, d.Sweep(30*time.Minute))

	close(release)
	waitDone(t, done)
}

func TestDispatcher_ShutdownWaitsForAttempts(t *testing.T) {
	c := gatewayCart(true)
	env := testutil.NewEnv(c)
	d := checkoutApp.NewDispatcher(env.Dependencies())

	ctl := d.Control(c.ID, c.PaymentSession)
	done, err := ctl.Submit(c, gatewayAction())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.Windows.Polls() > 0 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	select {
	case <-done:
	default:
		t.Fatal("shutdown returned before the attempt resolved")
	}
	_, ok := d.Lookup(c.ID)
	assert.False(t, ok)
}

func TestDispatcher_RunSweeperStopsOnCancel(t *testing.T) {
	env := testutil.NewEnv(cardCart())
	d := checkoutApp.NewDispatcher(env.Dependencies())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		d.RunSweeper(ctx, time.Millisecond, time.Hour)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
