package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError(t *testing.T) {
	cause := errors.New("attempt already completed")

	wrapped := NewDomainError("invalid_state", "cannot abandon attempt", cause)
	assert.Equal(t, "cannot abandon attempt: attempt already completed", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "invalid_state", wrapped.Code)

	bare := NewDomainError("checkout_closed", "checkout is closed", nil)
	assert.Equal(t, "checkout is closed", bare.Error())
	assert.Nil(t, bare.Unwrap())
}

func TestDomainError_MatchesWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("gateway: %w", NewDomainError("window", "window gone", ErrWindowNotFound))

	var dErr *DomainError
	assert.ErrorAs(t, err, &dErr)
	assert.ErrorIs(t, err, ErrWindowNotFound)
	assert.NotErrorIs(t, err, ErrWindowTimeout)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("payment_method", "is required for card payments")

	assert.Equal(t, "validation failed for field payment_method: is required for card payments", err.Error())
	assert.Equal(t, "payment_method", err.Field)
	assert.ErrorIs(t, fmt.Errorf("submit: %w", err), ErrValidationFailed)
	assert.NotErrorIs(t, err, ErrInvalidStateTransition)
}

func TestSentinelsDistinct(t *testing.T) {
	sentinels := []error{
		ErrCartNotFound, ErrSessionMismatch, ErrCheckoutNotReady, ErrOptimisticLockFailed,
		ErrControlDisabled, ErrAttemptInFlight, ErrAttemptNotFound, ErrInvalidStateTransition,
		ErrPopupBlocked, ErrWindowNotFound, ErrWindowTimeout, ErrInvalidWindowEvent,
		ErrProviderUnavailable, ErrProviderRejected, ErrProviderTimeout,
		ErrDuplicateIdempotencyKey, ErrLockAcquisitionFailed, ErrLockNotHeld, ErrValidationFailed,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b, "%v matches %v", a, b)
			}
		}
	}
}
