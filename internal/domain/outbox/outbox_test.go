package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	aggregateID := uuid.New()
	payload := map[string]any{
		"cart_id":  "cart_01",
		"provider": "stripe",
	}

	entry := NewEntry(AggregateAttempt, aggregateID, EventPaymentCompleted, payload)

	require.NotNil(t, entry)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, AggregateAttempt, entry.AggregateType)
	assert.Equal(t, aggregateID, entry.AggregateID)
	assert.Equal(t, EventPaymentCompleted, entry.EventType)
	assert.Equal(t, payload, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, 5, entry.MaxRetries)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Nil(t, entry.PublishedAt)
}

func TestNewEntry_EmptyPayload(t *testing.T) {
	entry := NewEntry(AggregateAttempt, uuid.New(), EventPaymentCompleted, nil)

	require.NotNil(t, entry)
	assert.Nil(t, entry.Payload)
	assert.Empty(t, entry.CartID())
}

func TestNewPaymentCompleted(t *testing.T) {
	attemptID := uuid.New()
	entry := NewPaymentCompleted(attemptID, "cart_01", "ps_01", "vn-pay")

	assert.Equal(t, EventPaymentCompleted, entry.EventType)
	assert.Equal(t, AggregateAttempt, entry.AggregateType)
	assert.Equal(t, attemptID, entry.AggregateID)
	assert.Equal(t, "cart_01", entry.CartID())
	assert.Equal(t, attemptID.String(), entry.Payload["attempt_id"])
	assert.Equal(t, "ps_01", entry.Payload["session_id"])
	assert.Equal(t, "vn-pay", entry.Payload["provider"])
}

func TestStatus_Constants(t *testing.T) {
	assert.Equal(t, Status("pending"), StatusPending)
	assert.Equal(t, Status("published"), StatusPublished)
	assert.Equal(t, Status("failed"), StatusFailed)
}

func TestEntry_UniqueIDs(t *testing.T) {
	attemptID := uuid.New()
	entry1 := NewPaymentCompleted(attemptID, "cart_01", "", "manual")
	entry2 := NewPaymentCompleted(attemptID, "cart_01", "", "manual")

	assert.NotEqual(t, entry1.ID, entry2.ID)
	assert.Equal(t, entry1.AggregateID, entry2.AggregateID)
}
