package checkout_test

import (
	"context"
	"errors"
	"testing"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/cassiomorais/checkout/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedAttempt(t *testing.T) *checkout.Attempt {
	t.Helper()
	a, err := checkout.NewAttempt(testCartID, "ps_stripe", cart.ProviderStripe)
	require.NoError(t, err)
	require.NoError(t, a.MarkCompleted(""))
	return a
}

func TestCompletionPublisher_RecordsAndQueues(t *testing.T) {
	attempts := testutil.NewMockAttemptRepository()
	outboxRepo := &testutil.MockOutboxRepository{}
	p := checkoutApp.NewCompletionPublisher(testutil.NewMockTransactionManager(), attempts, outboxRepo)

	a := completedAttempt(t)
	require.NoError(t, p.OnPaymentCompleted(context.Background(), a))

	stored, err := attempts.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.AttemptCompleted, stored.Status)

	entries := outboxRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventPaymentCompleted, entries[0].EventType)
	assert.Equal(t, a.ID, entries[0].AggregateID)
	assert.Equal(t, testCartID, entries[0].CartID())
}

func TestCompletionPublisher_RejectsUnfinishedAttempt(t *testing.T) {
	outboxRepo := &testutil.MockOutboxRepository{}
	p := checkoutApp.NewCompletionPublisher(testutil.NewMockTransactionManager(), testutil.NewMockAttemptRepository(), outboxRepo)

	a, err := checkout.NewAttempt(testCartID, "ps_stripe", cart.ProviderStripe)
	require.NoError(t, err)

	assert.Error(t, p.OnPaymentCompleted(context.Background(), a))
	assert.Empty(t, outboxRepo.Entries())
}

func TestCompletionPublisher_OutboxFailureFails(t *testing.T) {
	outboxRepo := &testutil.MockOutboxRepository{
		InsertFunc: func(context.Context, *outbox.Entry) error {
			return errors.New("connection refused")
		},
	}
	p := checkoutApp.NewCompletionPublisher(testutil.NewMockTransactionManager(), testutil.NewMockAttemptRepository(), outboxRepo)

	err := p.OnPaymentCompleted(context.Background(), completedAttempt(t))
	assert.ErrorContains(t, err, "insert outbox entry")
}

func TestDeliverCompletion(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   map[string]any
		wantCarts []string
		wantErr   bool
	}{
		{
			name:      "completes cart",
			eventType: outbox.EventPaymentCompleted,
			payload:   map[string]any{"cart_id": testCartID},
			wantCarts: []string{testCartID},
		},
		{
			name:      "ignores other events",
			eventType: "checkout.something_else",
			payload:   map[string]any{"cart_id": testCartID},
		},
		{
			name:      "missing cart id",
			eventType: outbox.EventPaymentCompleted,
			payload:   map[string]any{},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &testutil.MockCartCompleter{}
			uc := checkoutApp.NewDeliverCompletionUseCase(completer)

			err := uc.Execute(context.Background(), tt.eventType, tt.payload)
			if tt.wantErr {
				var vErr *domainErrors.ValidationError
				assert.ErrorAs(t, err, &vErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCarts, completer.Completed())
		})
	}
}

func TestDeliverCompletion_BackendError(t *testing.T) {
	completer := &testutil.MockCartCompleter{
		CompleteCartFunc: func(context.Context, string) error {
			return domainErrors.ErrProviderUnavailable
		},
	}
	uc := checkoutApp.NewDeliverCompletionUseCase(completer)

	err := uc.Execute(context.Background(), outbox.EventPaymentCompleted, map[string]any{"cart_id": testCartID})
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
}

func TestAttemptHistory(t *testing.T) {
	repo := testutil.NewMockAttemptRepository()
	ctx := context.Background()
	for range 3 {
		a, err := checkout.NewAttempt(testCartID, "ps_stripe", cart.ProviderStripe)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, a))
	}
	other, err := checkout.NewAttempt("cart_other", "ps_stripe", cart.ProviderStripe)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, other))

	uc := checkoutApp.NewAttemptHistoryUseCase(repo)

	list, err := uc.Execute(ctx, testCartID, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = uc.Execute(ctx, testCartID, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	var gotLimit int
	repo.ListByCartFunc = func(_ context.Context, _ string, limit int) ([]*checkout.Attempt, error) {
		gotLimit = limit
		return nil, nil
	}
	_, err = uc.Execute(ctx, testCartID, 10_000)
	require.NoError(t, err)
	assert.Equal(t, 100, gotLimit)

	_, err = uc.Execute(ctx, "", 0)
	var vErr *domainErrors.ValidationError
	assert.ErrorAs(t, err, &vErr)
}
