package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// transitionScript moves a window to ARGV[1] if its current state is one of
// ARGV[2..] and queues the event for AwaitOpen.
// Returns 1 on transition, 0 if already in the target state, -1 if the
// window is unknown and -2 if the transition is not allowed.
var transitionScript = redis.NewScript(`
	local cur = redis.call("hget", KEYS[1], "state")
	if not cur then
		return -1
	end
	if cur == ARGV[1] then
		return 0
	end
	for i = 2, #ARGV do
		if ARGV[i] == cur then
			redis.call("hset", KEYS[1], "state", ARGV[1])
			redis.call("rpush", KEYS[2], ARGV[1])
			local ttl = redis.call("pttl", KEYS[1])
			if ttl > 0 then
				redis.call("pexpire", KEYS[2], ttl)
			end
			return 1
		end
	end
	return -2
`)

// WindowTracker keeps gateway window state in Redis so that the browser's
// window events can reach the replica watching the window.
type WindowTracker struct {
	client  *redis.Client
	metrics *observability.Metrics
}

func NewWindowTracker(client *redis.Client, metrics *observability.Metrics) *WindowTracker {
	return &WindowTracker{client: client, metrics: metrics}
}

func windowKey(id uuid.UUID) string {
	return "checkout:window:" + id.String()
}

func windowEventsKey(id uuid.UUID) string {
	return "checkout:window:" + id.String() + ":events"
}

// Register stores a pending window that expires after ttl.
func (t *WindowTracker) Register(ctx context.Context, w *checkout.Window, ttl time.Duration) error {
	key := windowKey(w.ID)
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"cart_id":    w.CartID,
			"url":        w.URL,
			"state":      string(w.State),
			"created_at": w.CreatedAt.Unix(),
		})
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register window %s: %w", w.ID, err)
	}
	return nil
}

// AwaitOpen waits for the first event the browser reports for the window.
func (t *WindowTracker) AwaitOpen(ctx context.Context, id uuid.UUID, timeout time.Duration) (checkout.WindowState, error) {
	res, err := t.client.BLPop(ctx, timeout, windowEventsKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return checkout.WindowPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to await window %s: %w", id, err)
	}
	// BLPOP replies with [key, value]
	return checkout.WindowState(res[1]), nil
}

// State returns the window's current state.
func (t *WindowTracker) State(ctx context.Context, id uuid.UUID) (checkout.WindowState, error) {
	state, err := t.client.HGet(ctx, windowKey(id), "state").Result()
	if errors.Is(err, redis.Nil) {
		return "", domainErrors.ErrWindowNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read window %s: %w", id, err)
	}
	return checkout.WindowState(state), nil
}

// Release forgets the window.
func (t *WindowTracker) Release(ctx context.Context, id uuid.UUID) error {
	if err := t.client.Del(ctx, windowKey(id), windowEventsKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to release window %s: %w", id, err)
	}
	return nil
}

// Record applies a browser-reported window event. Repeating the current
// state is accepted.
func (t *WindowTracker) Record(ctx context.Context, id uuid.UUID, state checkout.WindowState) error {
	sources := checkout.SourcesOf(state)
	args := make([]any, 0, len(sources)+1)
	args = append(args, string(state))
	for _, s := range sources {
		args = append(args, string(s))
	}

	result, err := transitionScript.Run(ctx, t.client, []string{windowKey(id), windowEventsKey(id)}, args...).Int64()
	if err != nil {
		t.metrics.WindowEvents.WithLabelValues(string(state), "error").Inc()
		return fmt.Errorf("failed to record window event: %w", err)
	}

	switch result {
	case 1:
		t.metrics.WindowEvents.WithLabelValues(string(state), "applied").Inc()
		return nil
	case 0:
		t.metrics.WindowEvents.WithLabelValues(string(state), "duplicate").Inc()
		return nil
	case -1:
		t.metrics.WindowEvents.WithLabelValues(string(state), "unknown").Inc()
		return domainErrors.ErrWindowNotFound
	default:
		t.metrics.WindowEvents.WithLabelValues(string(state), "rejected").Inc()
		return domainErrors.ErrInvalidStateTransition
	}
}
