package redis

import (
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	id := uuid.MustParse("4b0e4d3c-6f0f-4a5b-9c37-2f4b1d2a9e10")

	assert.Equal(t, "checkout:window:4b0e4d3c-6f0f-4a5b-9c37-2f4b1d2a9e10", windowKey(id))
	assert.Equal(t, "checkout:window:4b0e4d3c-6f0f-4a5b-9c37-2f4b1d2a9e10:events", windowEventsKey(id))
	assert.Equal(t, "checkout:cart:cart_01", cartKey("cart_01"))
}

func TestDecodeMessage(t *testing.T) {
	msg := decodeMessage(redis.XMessage{
		ID: "1700000000000-0",
		Values: map[string]any{
			"event_id":   "evt-1",
			"event_type": "checkout.payment_completed",
			"cart_id":    "cart_01",
			"payload":    `{"cart_id":"cart_01","provider":"stripe"}`,
		},
	}, 2)

	assert.Equal(t, "1700000000000-0", msg.ID)
	assert.Equal(t, "evt-1", msg.EventID)
	assert.Equal(t, "checkout.payment_completed", msg.EventType)
	assert.Equal(t, "cart_01", msg.CartID)
	assert.Equal(t, "stripe", msg.Payload["provider"])
	assert.Equal(t, int64(2), msg.Deliveries)
}

func TestDecodeMessage_BadPayload(t *testing.T) {
	msg := decodeMessage(redis.XMessage{
		ID:     "1-0",
		Values: map[string]any{"event_type": "checkout.payment_completed", "payload": "{not json"},
	}, 1)

	assert.Nil(t, msg.Payload)
	assert.Empty(t, msg.CartID)
}
