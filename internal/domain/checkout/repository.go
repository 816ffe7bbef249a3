package checkout

import (
	"context"

	"github.com/google/uuid"
)

// AttemptRepository defines the interface for attempt persistence
type AttemptRepository interface {
	// Create stores a new attempt
	Create(ctx context.Context, attempt *Attempt) error

	// Update persists the attempt's terminal status
	Update(ctx context.Context, attempt *Attempt) error

	// GetByID retrieves an attempt by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Attempt, error)

	// ListByCart returns the most recent attempts for a cart, newest first
	ListByCart(ctx context.Context, cartID string, limit int) ([]*Attempt, error)
}
