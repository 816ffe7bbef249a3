package controller

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CheckoutController serves the payment control of a cart.
type CheckoutController struct {
	dispatcher *checkoutApp.Dispatcher
	// renders may serve a cached cart; submits always read through carts.
	renders    checkoutApp.CartStore
	carts      checkoutApp.CartStore
	history    *checkoutApp.AttemptHistoryUseCase
	submitWait time.Duration
	logger     zerolog.Logger
}

func NewCheckoutController(
	dispatcher *checkoutApp.Dispatcher,
	renders checkoutApp.CartStore,
	carts checkoutApp.CartStore,
	history *checkoutApp.AttemptHistoryUseCase,
	submitWait time.Duration,
	logger zerolog.Logger,
) *CheckoutController {
	if renders == nil {
		renders = carts
	}
	return &CheckoutController{
		dispatcher: dispatcher,
		renders:    renders,
		carts:      carts,
		history:    history,
		submitWait: submitWait,
		logger:     logger,
	}
}

// Render handles GET /api/v1/checkout/{cartID}/payment
func (h *CheckoutController) Render(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")

	current, err := h.renders.Retrieve(r.Context(), cartID)
	if err != nil {
		writeError(w, err)
		return
	}

	// A cached cart may predate a session switch the held control has
	// already seen. Only the backend's cart may replace that control.
	if held, ok := h.dispatcher.Lookup(cartID); ok && !held.Serves(current.PaymentSession) {
		current, err = h.carts.Retrieve(r.Context(), cartID)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	ctl := h.dispatcher.Control(current.ID, current.PaymentSession)
	writeJSON(w, http.StatusOK, FromState(ctl.State(current)))
}

// Submit handles POST /api/v1/checkout/{cartID}/payment/submit. It waits up
// to submitWait for the attempt to resolve and answers 202 while it is still
// running; the browser then polls Render.
func (h *CheckoutController) Submit(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")

	var req SubmitPaymentRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	current, err := h.carts.Retrieve(r.Context(), cartID)
	if err != nil {
		writeError(w, err)
		return
	}

	ctl := h.dispatcher.Control(current.ID, current.PaymentSession)
	done, err := ctl.Submit(current, req.action(clientIP(r)))
	if err != nil {
		if errors.Is(err, domainErrors.ErrAttemptInFlight) {
			writeJSON(w, http.StatusAccepted, FromState(ctl.State(current)))
			return
		}
		writeError(w, err)
		return
	}

	timer := time.NewTimer(h.submitWait)
	defer timer.Stop()

	status := http.StatusOK
	select {
	case <-done:
	case <-timer.C:
		status = http.StatusAccepted
	case <-r.Context().Done():
		// the attempt keeps running on the control
		h.logger.Debug().Str("cart_id", cartID).Msg("client went away during submit")
		return
	}
	writeJSON(w, status, FromState(ctl.State(current)))
}

// Teardown handles DELETE /api/v1/checkout/{cartID}/payment
func (h *CheckoutController) Teardown(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")
	if h.dispatcher.Close(cartID) {
		h.logger.Info().Str("cart_id", cartID).Msg("payment control torn down")
	}
	w.WriteHeader(http.StatusNoContent)
}

// Attempts handles GET /api/v1/checkout/{cartID}/payment/attempts
func (h *CheckoutController) Attempts(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, domainErrors.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	attempts, err := h.history.Execute(r.Context(), cartID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*AttemptResponse, len(attempts))
	for i, a := range attempts {
		resp[i] = FromAttempt(a)
	}
	writeJSON(w, http.StatusOK, resp)
}

// clientIP returns the caller's address after chi's RealIP has rewritten
// RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
