package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 64 << 10

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errorMapping turns a domain sentinel into a response. A non-empty message
// replaces the error text shown to the client.
type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrCartNotFound, http.StatusNotFound, "not_found", ""},
	{domainErrors.ErrAttemptNotFound, http.StatusNotFound, "not_found", ""},
	{domainErrors.ErrWindowNotFound, http.StatusNotFound, "window_not_found", ""},
	{domainErrors.ErrInvalidWindowEvent, http.StatusBadRequest, "invalid_window_event", ""},
	{domainErrors.ErrCheckoutNotReady, http.StatusUnprocessableEntity, "checkout_not_ready", ""},
	{domainErrors.ErrSessionMismatch, http.StatusConflict, "session_mismatch", ""},
	{domainErrors.ErrControlDisabled, http.StatusConflict, "control_disabled", ""},
	{domainErrors.ErrAttemptInFlight, http.StatusConflict, "attempt_in_flight", ""},
	{domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request", ""},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition", ""},
	{domainErrors.ErrOptimisticLockFailed, http.StatusConflict, "conflict", "concurrent modification, please retry"},
	{domainErrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable", ""},
	{domainErrors.ErrProviderTimeout, http.StatusGatewayTimeout, "provider_timeout", ""},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			if m.message != "" {
				resp.Error = m.message
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

// decodeAndValidate reads a JSON body of at most maxBodyBytes into dst and
// runs its validate tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
