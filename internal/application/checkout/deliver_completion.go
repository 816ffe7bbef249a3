package checkout

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
)

// DeliverCompletionUseCase forwards a queued completion to the commerce
// backend. The backend completes a cart at most once, so redelivery is safe.
type DeliverCompletionUseCase struct {
	completer CartCompleter
}

func NewDeliverCompletionUseCase(completer CartCompleter) *DeliverCompletionUseCase {
	return &DeliverCompletionUseCase{completer: completer}
}

// Execute handles one outbox event. Events other than payment completion are ignored.
func (uc *DeliverCompletionUseCase) Execute(ctx context.Context, eventType string, payload map[string]any) error {
	if eventType != outbox.EventPaymentCompleted {
		return nil
	}

	cartID, _ := payload["cart_id"].(string)
	if cartID == "" {
		return domainErrors.NewValidationError("cart_id", "missing from completion event")
	}

	if err := uc.completer.CompleteCart(ctx, cartID); err != nil {
		return fmt.Errorf("complete cart %s: %w", cartID, err)
	}
	return nil
}
