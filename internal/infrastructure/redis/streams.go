package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/redis/go-redis/v9"
)

const (
	CompletionStream = "checkout:completions"
	DLQStream        = "checkout:completions:dlq"

	// streamMaxLen caps each stream; trimming is approximate.
	streamMaxLen = 100_000
)

// Message is one event read from a stream.
type Message struct {
	ID        string
	EventID   string
	EventType string
	CartID    string
	Payload   map[string]any
	// Deliveries counts how many times the message was handed out, including this one.
	Deliveries int64
}

type StreamProducer struct {
	client *redis.Client
}

func NewStreamProducer(client *redis.Client) *StreamProducer {
	return &StreamProducer{client: client}
}

// PublishCompletion appends a payment completion event to the completion stream.
func (p *StreamProducer) PublishCompletion(ctx context.Context, entry *outbox.Entry) error {
	if err := p.xadd(ctx, CompletionStream, entry.Payload, map[string]any{
		"event_id":   entry.ID.String(),
		"event_type": entry.EventType,
		"cart_id":    entry.CartID(),
	}); err != nil {
		return fmt.Errorf("failed to publish completion event: %w", err)
	}
	return nil
}

// PublishToDLQ parks a message that could not be delivered.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, msg Message, reason string) error {
	if err := p.xadd(ctx, DLQStream, msg.Payload, map[string]any{
		"event_id":    msg.EventID,
		"event_type":  msg.EventType,
		"cart_id":     msg.CartID,
		"reason":      reason,
		"deliveries":  msg.Deliveries,
		"original_id": msg.ID,
	}); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

func (p *StreamProducer) xadd(ctx context.Context, stream string, payload map[string]any, fields map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	fields["payload"] = string(raw)
	fields["timestamp"] = time.Now().Unix()

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: fields,
	}).Err()
}

type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

// CreateGroup creates the stream and consumer group. An existing group is kept.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !redis.HasErrorPrefix(err, "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read returns new messages for this consumer, blocking up to the block duration.
func (c *StreamConsumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var out []Message
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, decodeMessage(m, 1))
		}
	}
	return out, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", messageID, err)
	}
	return nil
}

// ClaimStale takes over messages another consumer read but did not ack
// within minIdle, e.g. because it crashed.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]Message, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
		deliveries[p.ID] = p.RetryCount + 1
	}

	messages, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}

	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, decodeMessage(m, deliveries[m.ID]))
	}
	return out, nil
}

func decodeMessage(m redis.XMessage, deliveries int64) Message {
	msg := Message{ID: m.ID, Deliveries: deliveries}
	msg.EventID, _ = m.Values["event_id"].(string)
	msg.EventType, _ = m.Values["event_type"].(string)
	msg.CartID, _ = m.Values["cart_id"].(string)
	if raw, ok := m.Values["payload"].(string); ok {
		_ = json.Unmarshal([]byte(raw), &msg.Payload)
	}
	return msg
}
