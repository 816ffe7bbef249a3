package outbox

import (
	"time"

	"github.com/google/uuid"
)

const (
	AggregateAttempt = "payment_attempt"

	// EventPaymentCompleted asks the commerce backend to complete the cart.
	EventPaymentCompleted = "checkout.payment_completed"
)

type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		RetryCount:    0,
		MaxRetries:    5,
		CreatedAt:     time.Now(),
	}
}

// NewPaymentCompleted builds the outbox entry announcing that an attempt
// completed payment for a cart.
func NewPaymentCompleted(attemptID uuid.UUID, cartID, sessionID, provider string) *Entry {
	return NewEntry(AggregateAttempt, attemptID, EventPaymentCompleted, map[string]any{
		"attempt_id": attemptID.String(),
		"cart_id":    cartID,
		"session_id": sessionID,
		"provider":   provider,
	})
}

// CartID returns the cart a completion entry refers to.
func (e *Entry) CartID() string {
	v, _ := e.Payload["cart_id"].(string)
	return v
}
