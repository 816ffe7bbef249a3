package controller

import (
	"time"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	"github.com/cassiomorais/checkout/internal/domain/checkout"
)

// --- Request DTOs ---

// ViewportRequest is the browser window the gateway window is centered on.
type ViewportRequest struct {
	ScreenX     int `json:"screen_x"`
	ScreenY     int `json:"screen_y"`
	OuterWidth  int `json:"outer_width" validate:"gte=0"`
	OuterHeight int `json:"outer_height" validate:"gte=0"`
}

// SubmitPaymentRequest is one press of the pay button.
type SubmitPaymentRequest struct {
	// PaymentMethod is the tokenized card, required by the card control.
	PaymentMethod string `json:"payment_method" validate:"omitempty,max=255"`
	// Approved is set by the wallet button once the customer approved the order.
	Approved bool             `json:"approved"`
	Viewport *ViewportRequest `json:"viewport,omitempty"`
}

func (r SubmitPaymentRequest) action(clientIP string) checkoutApp.Action {
	a := checkoutApp.Action{
		PaymentMethod: r.PaymentMethod,
		Approved:      r.Approved,
		ClientIP:      clientIP,
	}
	if r.Viewport != nil {
		a.Viewport = checkout.Viewport{
			ScreenX:     r.Viewport.ScreenX,
			ScreenY:     r.Viewport.ScreenY,
			OuterWidth:  r.Viewport.OuterWidth,
			OuterHeight: r.Viewport.OuterHeight,
		}
	}
	return a
}

// --- Response DTOs ---

// WindowResponse tells the browser to open the gateway window.
type WindowResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Left   int    `json:"left"`
	Top    int    `json:"top"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ControlResponse is the rendered payment control.
type ControlResponse struct {
	CartID     string          `json:"cart_id"`
	SessionID  string          `json:"session_id,omitempty"`
	Variant    string          `json:"variant"`
	Provider   string          `json:"provider,omitempty"`
	Label      string          `json:"label"`
	Disabled   bool            `json:"disabled"`
	NotReady   bool            `json:"not_ready"`
	Submitting bool            `json:"submitting"`
	Completed  bool            `json:"completed"`
	Error      string          `json:"error,omitempty"`
	AttemptID  *string         `json:"attempt_id,omitempty"`
	Window     *WindowResponse `json:"window,omitempty"`
}

// AttemptResponse is one entry of a cart's attempt history.
type AttemptResponse struct {
	ID         string     `json:"id"`
	CartID     string     `json:"cart_id"`
	SessionID  string     `json:"session_id"`
	Provider   string     `json:"provider"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromState converts a control snapshot to its API response.
func FromState(s checkoutApp.State) *ControlResponse {
	resp := &ControlResponse{
		CartID:     s.CartID,
		SessionID:  s.SessionID,
		Variant:    checkout.Kind(s.Variant),
		Provider:   string(s.Variant.Provider()),
		Label:      s.Variant.Label(),
		Disabled:   s.Disabled(),
		NotReady:   s.NotReady,
		Submitting: s.Submitting,
		Completed:  s.Completed,
		Error:      s.Error,
	}
	if s.AttemptID != nil {
		id := s.AttemptID.String()
		resp.AttemptID = &id
	}
	if s.Window != nil {
		resp.Window = &WindowResponse{
			ID:     s.Window.ID.String(),
			URL:    s.Window.URL,
			Left:   s.Window.Geometry.Left,
			Top:    s.Window.Geometry.Top,
			Width:  s.Window.Geometry.Width,
			Height: s.Window.Geometry.Height,
		}
	}
	return resp
}

// FromAttempt converts a recorded attempt to its API response.
func FromAttempt(a *checkout.Attempt) *AttemptResponse {
	return &AttemptResponse{
		ID:         a.ID.String(),
		CartID:     a.CartID,
		SessionID:  a.SessionID,
		Provider:   string(a.Provider),
		Status:     string(a.Status),
		Error:      a.Error,
		StartedAt:  a.StartedAt,
		FinishedAt: a.FinishedAt,
	}
}
