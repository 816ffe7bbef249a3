package controller

import (
	"net/http"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	"github.com/cassiomorais/checkout/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// WindowController receives the events the browser reports for a gateway window.
type WindowController struct {
	events checkoutApp.WindowEvents
}

func NewWindowController(events checkoutApp.WindowEvents) *WindowController {
	return &WindowController{events: events}
}

// Event handles POST /api/v1/checkout/windows/{windowID}/{event}
func (h *WindowController) Event(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "windowID"))
	if err != nil {
		writeError(w, domainErrors.NewValidationError("window_id", "must be a valid UUID"))
		return
	}

	state, err := checkout.ParseWindowEvent(chi.URLParam(r, "event"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.events.Record(r.Context(), id, state); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
