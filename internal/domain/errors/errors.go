package errors

import (
	"errors"
	"fmt"
)

var (
	// Cart errors
	ErrCartNotFound         = errors.New("cart not found")
	ErrSessionMismatch      = errors.New("payment session does not match cart")
	ErrCheckoutNotReady     = errors.New("checkout is not ready for payment")
	ErrOptimisticLockFailed = errors.New("optimistic lock conflict")

	// Control errors
	ErrControlDisabled        = errors.New("payment control is disabled")
	ErrAttemptInFlight        = errors.New("payment attempt already in flight")
	ErrAttemptNotFound        = errors.New("payment attempt not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Window errors
	ErrPopupBlocked       = errors.New("payment window was blocked")
	ErrWindowNotFound     = errors.New("payment window not found")
	ErrWindowTimeout      = errors.New("payment window timed out")
	ErrInvalidWindowEvent = errors.New("invalid payment window event")

	// Provider errors
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderRejected    = errors.New("payment rejected by provider")
	ErrProviderTimeout     = errors.New("provider request timeout")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	ErrValidationFailed = errors.New("validation failed")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match any ValidationError with ErrValidationFailed.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
