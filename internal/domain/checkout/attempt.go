package checkout

import (
	"time"

	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/google/uuid"
)

// AttemptStatus is the lifecycle state of one payment attempt.
type AttemptStatus string

const (
	AttemptSubmitting AttemptStatus = "submitting"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptFailed     AttemptStatus = "failed"
	// AttemptEnded is a silent non-completion: no error, no completion.
	AttemptEnded     AttemptStatus = "ended"
	AttemptAbandoned AttemptStatus = "abandoned"
)

// Attempt is the audit record of a single submit on a payment control.
type Attempt struct {
	ID         uuid.UUID
	CartID     string
	SessionID  string
	Provider   cart.ProviderID
	Status     AttemptStatus
	Error      *string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// NewAttempt creates an attempt in the submitting state.
func NewAttempt(cartID, sessionID string, provider cart.ProviderID) (*Attempt, error) {
	if cartID == "" {
		return nil, errors.NewValidationError("cart_id", "cannot be empty")
	}
	if provider == "" {
		return nil, errors.NewValidationError("provider", "cannot be empty")
	}

	return &Attempt{
		ID:        uuid.New(),
		CartID:    cartID,
		SessionID: sessionID,
		Provider:  provider,
		Status:    AttemptSubmitting,
		StartedAt: time.Now(),
	}, nil
}

// CanTransitionTo checks if the attempt can move to the given status.
// Every state other than submitting is terminal.
func (a *Attempt) CanTransitionTo(next AttemptStatus) bool {
	if a.Status != AttemptSubmitting {
		return false
	}
	switch next {
	case AttemptCompleted, AttemptFailed, AttemptEnded, AttemptAbandoned:
		return true
	default:
		return false
	}
}

func (a *Attempt) transitionTo(next AttemptStatus) error {
	if !a.CanTransitionTo(next) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition attempt from "+string(a.Status)+" to "+string(next),
			errors.ErrInvalidStateTransition,
		)
	}
	now := time.Now()
	a.Status = next
	a.FinishedAt = &now
	return nil
}

// MarkCompleted finishes the attempt as completed. errText is kept when the
// processor reported an error alongside a capturable intent.
func (a *Attempt) MarkCompleted(errText string) error {
	if err := a.transitionTo(AttemptCompleted); err != nil {
		return err
	}
	if errText != "" {
		a.Error = &errText
	}
	return nil
}

// MarkFailed finishes the attempt with a user-visible error.
func (a *Attempt) MarkFailed(errText string) error {
	if err := a.transitionTo(AttemptFailed); err != nil {
		return err
	}
	a.Error = &errText
	return nil
}

func (a *Attempt) MarkEnded() error {
	return a.transitionTo(AttemptEnded)
}

// MarkAbandoned finishes an attempt whose control was torn down mid-flight.
func (a *Attempt) MarkAbandoned() error {
	return a.transitionTo(AttemptAbandoned)
}

// IsTerminal reports whether the attempt has finished.
func (a *Attempt) IsTerminal() bool {
	return a.Status != AttemptSubmitting
}

// Duration returns how long the attempt ran, or zero while still submitting.
func (a *Attempt) Duration() time.Duration {
	if a.FinishedAt == nil {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}
