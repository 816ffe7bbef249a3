package checkout

import (
	"slices"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/google/uuid"
)

// WindowState is the lifecycle of a gateway payment window as reported by the browser.
type WindowState string

const (
	WindowPending WindowState = "pending"
	WindowOpened  WindowState = "opened"
	WindowBlocked WindowState = "blocked"
	WindowClosed  WindowState = "closed"
)

// Gateway window size in CSS pixels.
const (
	WindowWidth  = 600
	WindowHeight = 400
)

var windowTransitions = map[WindowState][]WindowState{
	WindowPending: {WindowOpened, WindowBlocked, WindowClosed},
	WindowOpened:  {WindowClosed},
	WindowBlocked: {},
	WindowClosed:  {},
}

// Viewport is the browser window the payment window is centered on.
type Viewport struct {
	ScreenX     int
	ScreenY     int
	OuterWidth  int
	OuterHeight int
}

// Geometry is where the browser should place the payment window.
type Geometry struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// Window is a browser window opened for the regional gateway.
type Window struct {
	ID        uuid.UUID
	CartID    string
	URL       string
	Geometry  Geometry
	State     WindowState
	CreatedAt time.Time
}

// NewWindow creates a pending window centered on the given viewport.
func NewWindow(cartID, url string, vp Viewport) *Window {
	return &Window{
		ID:        uuid.New(),
		CartID:    cartID,
		URL:       url,
		Geometry:  CenteredGeometry(vp),
		State:     WindowPending,
		CreatedAt: time.Now(),
	}
}

// CenteredGeometry centers a fixed-size window on vp. A viewport smaller
// than the window pins it to the viewport origin.
func CenteredGeometry(vp Viewport) Geometry {
	return Geometry{
		Left:   vp.ScreenX + max(vp.OuterWidth-WindowWidth, 0)/2,
		Top:    vp.ScreenY + max(vp.OuterHeight-WindowHeight, 0)/2,
		Width:  WindowWidth,
		Height: WindowHeight,
	}
}

// CanTransition reports whether a window may move from one state to another.
func CanTransition(from, to WindowState) bool {
	return slices.Contains(windowTransitions[from], to)
}

// SourcesOf lists the states from which a window may move to target.
func SourcesOf(target WindowState) []WindowState {
	var sources []WindowState
	for _, from := range []WindowState{WindowPending, WindowOpened, WindowBlocked, WindowClosed} {
		if CanTransition(from, target) {
			sources = append(sources, from)
		}
	}
	return sources
}

// ParseWindowEvent maps a browser event name to the state it reports.
func ParseWindowEvent(event string) (WindowState, error) {
	switch s := WindowState(event); s {
	case WindowOpened, WindowBlocked, WindowClosed:
		return s, nil
	default:
		return "", errors.ErrInvalidWindowEvent
	}
}

// IsTerminal reports whether no further browser events are expected.
func (s WindowState) IsTerminal() bool {
	return s == WindowBlocked || s == WindowClosed
}
