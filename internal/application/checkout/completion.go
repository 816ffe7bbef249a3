package checkout

import (
	"context"
	"fmt"

	"github.com/cassiomorais/checkout/internal/domain/checkout"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
)

// CompletionPublisher records a completed attempt and queues the completion
// for the commerce backend in a single transaction.
type CompletionPublisher struct {
	txManager TransactionManager
	attempts  checkout.AttemptRepository
	outbox    OutboxWriter
}

func NewCompletionPublisher(txManager TransactionManager, attempts checkout.AttemptRepository, outbox OutboxWriter) *CompletionPublisher {
	return &CompletionPublisher{
		txManager: txManager,
		attempts:  attempts,
		outbox:    outbox,
	}
}

// OnPaymentCompleted implements CheckoutFlow.
func (p *CompletionPublisher) OnPaymentCompleted(ctx context.Context, attempt *checkout.Attempt) error {
	if attempt.Status != checkout.AttemptCompleted {
		return fmt.Errorf("attempt %s is %s, not completed", attempt.ID, attempt.Status)
	}

	return p.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := p.attempts.Update(txCtx, attempt); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		entry := outbox.NewPaymentCompleted(attempt.ID, attempt.CartID, attempt.SessionID, string(attempt.Provider))
		if err := p.outbox.Insert(txCtx, entry); err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
		return nil
	})
}
