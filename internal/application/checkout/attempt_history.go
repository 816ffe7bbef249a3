package checkout

import (
	"context"

	"github.com/cassiomorais/checkout/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// AttemptHistoryUseCase lists the recorded attempts of a cart.
type AttemptHistoryUseCase struct {
	attempts checkout.AttemptRepository
}

func NewAttemptHistoryUseCase(attempts checkout.AttemptRepository) *AttemptHistoryUseCase {
	return &AttemptHistoryUseCase{attempts: attempts}
}

func (uc *AttemptHistoryUseCase) Execute(ctx context.Context, cartID string, limit int) ([]*checkout.Attempt, error) {
	if cartID == "" {
		return nil, domainErrors.NewValidationError("cart_id", "cannot be empty")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return uc.attempts.ListByCart(ctx, cartID, limit)
}
