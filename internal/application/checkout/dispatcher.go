package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/cassiomorais/checkout/internal/domain/checkout"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
)

// Dispatcher holds the live payment control of every cart served by this
// process and replaces a cart's control when its payment session changes.
type Dispatcher struct {
	deps *Dependencies

	mu       sync.Mutex
	controls map[string]*Control
}

// NewDispatcher creates a Dispatcher. deps.Now defaults to time.Now.
func NewDispatcher(deps Dependencies) *Dispatcher {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Logger = observability.Component(deps.Logger, "dispatcher")
	return &Dispatcher{
		deps:     &deps,
		controls: make(map[string]*Control),
	}
}

// Control returns the control for the cart's current payment session,
// building a fresh one when the session differs from the held control's.
// The replaced control is closed, cancelling any attempt it was running.
func (d *Dispatcher) Control(cartID string, session *cart.PaymentSession) *Control {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.controls[cartID]; ok {
		if sameSession(c, session) {
			return c
		}
		c.Close()
		d.deps.Logger.Info().
			Str("cart_id", cartID).
			Str("from_session", c.SessionID()).
			Msg("Payment session changed, replacing control")
	} else {
		d.deps.Metrics.ActiveControls.Inc()
	}

	c := newControl(cartID, session, d.deps)
	d.controls[cartID] = c
	return c
}

// Lookup returns the held control for a cart without creating one.
func (d *Dispatcher) Lookup(cartID string) (*Control, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.controls[cartID]
	return c, ok
}

// Close tears down the cart's control. Returns false when none was held.
func (d *Dispatcher) Close(cartID string) bool {
	d.mu.Lock()
	c, ok := d.controls[cartID]
	if ok {
		delete(d.controls, cartID)
		d.deps.Metrics.ActiveControls.Dec()
	}
	d.mu.Unlock()

	if ok {
		c.Close()
	}
	return ok
}

// Sweep closes controls idle for longer than ttl and returns how many it closed.
func (d *Dispatcher) Sweep(ttl time.Duration) int {
	cutoff := d.deps.Now().Add(-ttl)

	d.mu.Lock()
	var stale []*Control
	for id, c := range d.controls {
		if c.idle(cutoff) {
			stale = append(stale, c)
			delete(d.controls, id)
		}
	}
	d.deps.Metrics.ActiveControls.Sub(float64(len(stale)))
	d.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (d *Dispatcher) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.Sweep(ttl); n > 0 {
				d.deps.Logger.Debug().Int("closed", n).Msg("Swept idle payment controls")
			}
		}
	}
}

// Shutdown closes every control and waits for running attempts to record
// their outcome, or for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	all := make([]*Control, 0, len(d.controls))
	for _, c := range d.controls {
		all = append(all, c)
	}
	d.controls = make(map[string]*Control)
	d.deps.Metrics.ActiveControls.Set(0)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, c := range all {
			c.Close()
		}
		for _, c := range all {
			c.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serves reports whether the control was built for session.
func (c *Control) Serves(session *cart.PaymentSession) bool {
	return sameSession(c, session)
}

func sameSession(c *Control, session *cart.PaymentSession) bool {
	if session == nil {
		return c.SessionID() == "" && c.Variant() == checkout.Unselected{}
	}
	return c.SessionID() == session.ID && c.Variant() == checkout.VariantFor(session)
}
