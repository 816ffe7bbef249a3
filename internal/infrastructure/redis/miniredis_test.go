package redis

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/cassiomorais/checkout/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/cassiomorais/checkout/internal/testutil"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func registerWindow(t *testing.T, tracker *WindowTracker) *checkout.Window {
	t.Helper()
	w := checkout.NewWindow("cart_01", "https://gateway.test/pay?vnp_TxnRef=cart_01-1", checkout.Viewport{OuterWidth: 1280, OuterHeight: 800})
	require.NoError(t, tracker.Register(context.Background(), w, 15*time.Minute))
	return w
}

func TestWindowTracker_Lifecycle(t *testing.T) {
	client, mr := setupRedis(t)
	tracker := NewWindowTracker(client, testutil.NewTestMetrics())
	ctx := context.Background()

	w := registerWindow(t, tracker)
	assert.True(t, mr.Exists(windowKey(w.ID)))
	assert.Equal(t, 15*time.Minute, mr.TTL(windowKey(w.ID)))

	state, err := tracker.State(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.WindowPending, state)

	require.NoError(t, tracker.Record(ctx, w.ID, checkout.WindowOpened))
	opened, err := tracker.AwaitOpen(ctx, w.ID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, checkout.WindowOpened, opened)

	// a repeated event is accepted
	require.NoError(t, tracker.Record(ctx, w.ID, checkout.WindowOpened))

	require.NoError(t, tracker.Record(ctx, w.ID, checkout.WindowClosed))
	state, err = tracker.State(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.WindowClosed, state)

	require.NoError(t, tracker.Release(ctx, w.ID))
	_, err = tracker.State(ctx, w.ID)
	assert.ErrorIs(t, err, domainErrors.ErrWindowNotFound)
}

func TestWindowTracker_RejectsInvalidTransition(t *testing.T) {
	client, _ := setupRedis(t)
	tracker := NewWindowTracker(client, testutil.NewTestMetrics())
	ctx := context.Background()

	w := registerWindow(t, tracker)
	require.NoError(t, tracker.Record(ctx, w.ID, checkout.WindowBlocked))

	err := tracker.Record(ctx, w.ID, checkout.WindowOpened)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	state, err := tracker.State(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.WindowBlocked, state)
}

func TestWindowTracker_UnknownWindow(t *testing.T) {
	client, _ := setupRedis(t)
	tracker := NewWindowTracker(client, testutil.NewTestMetrics())

	err := tracker.Record(context.Background(), uuid.New(), checkout.WindowOpened)
	assert.ErrorIs(t, err, domainErrors.ErrWindowNotFound)
}

func TestWindowTracker_AwaitOpenTimesOut(t *testing.T) {
	client, _ := setupRedis(t)
	tracker := NewWindowTracker(client, testutil.NewTestMetrics())

	w := registerWindow(t, tracker)
	state, err := tracker.AwaitOpen(context.Background(), w.ID, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, checkout.WindowPending, state)
}

func TestLocker_SingleFlight(t *testing.T) {
	client, mr := setupRedis(t)
	locker := NewLocker(client, zerolog.New(io.Discard))
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "checkout:cart_01", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:checkout:cart_01"))

	_, err = locker.Acquire(ctx, "checkout:cart_01", 30*time.Second)
	assert.ErrorIs(t, err, domainErrors.ErrLockAcquisitionFailed)

	require.NoError(t, lease.(*Lease).Extend(ctx, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("lock:checkout:cart_01"))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("lock:checkout:cart_01"))

	again, err := locker.Acquire(ctx, "checkout:cart_01", 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocker_ReleaseAfterExpiry(t *testing.T) {
	client, mr := setupRedis(t)
	locker := NewLocker(client, zerolog.New(io.Discard))
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "checkout:cart_01", time.Hour)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	other, err := locker.Acquire(ctx, "checkout:cart_01", time.Hour)
	require.NoError(t, err)

	assert.ErrorIs(t, lease.Release(ctx), domainErrors.ErrLockNotHeld)
	assert.True(t, mr.Exists("lock:checkout:cart_01"), "stale holder removed the new owner's lock")
	require.NoError(t, other.Release(ctx))
}

func TestCachedCartStore(t *testing.T) {
	client, mr := setupRedis(t)
	inner := testutil.NewMockCartStore(testutil.NewReadyCart("cart_01"))
	store := NewCachedCartStore(inner, client, time.Minute, zerolog.New(io.Discard))
	ctx := context.Background()

	first, err := store.Retrieve(ctx, "cart_01")
	require.NoError(t, err)
	second, err := store.Retrieve(ctx, "cart_01")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, inner.Retrieves())

	updated, err := store.UpdateContext(ctx, "cart_01", first.Version, map[string]any{cart.ContextKeyPaymentURL: "https://gateway.test/pay"})
	require.NoError(t, err)

	cached, err := store.Retrieve(ctx, "cart_01")
	require.NoError(t, err)
	assert.Equal(t, updated.Version, cached.Version)
	assert.Equal(t, "https://gateway.test/pay", cached.Context[cart.ContextKeyPaymentURL])
	assert.Equal(t, 1, inner.Retrieves())

	require.NoError(t, store.Invalidate(ctx, "cart_01"))
	assert.False(t, mr.Exists(cartKey("cart_01")))
}

func TestCachedCartStore_FailedWriteInvalidates(t *testing.T) {
	client, mr := setupRedis(t)
	inner := testutil.NewMockCartStore(testutil.NewReadyCart("cart_01"))
	store := NewCachedCartStore(inner, client, time.Minute, zerolog.New(io.Discard))
	ctx := context.Background()

	_, err := store.Retrieve(ctx, "cart_01")
	require.NoError(t, err)
	require.True(t, mr.Exists(cartKey("cart_01")))

	_, err = store.UpdateContext(ctx, "cart_01", "stale", map[string]any{"k": "v"})
	assert.ErrorIs(t, err, domainErrors.ErrOptimisticLockFailed)
	assert.False(t, mr.Exists(cartKey("cart_01")))
}

func TestCachedCartStore_CorruptEntryFallsBack(t *testing.T) {
	client, mr := setupRedis(t)
	inner := testutil.NewMockCartStore(testutil.NewReadyCart("cart_01"))
	store := NewCachedCartStore(inner, client, time.Minute, zerolog.New(io.Discard))

	require.NoError(t, mr.Set(cartKey("cart_01"), "{not json"))

	c, err := store.Retrieve(context.Background(), "cart_01")
	require.NoError(t, err)
	assert.Equal(t, "cart_01", c.ID)
	assert.Equal(t, 1, inner.Retrieves())
}

func TestStreams_PublishReadAck(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()
	producer := NewStreamProducer(client)
	consumer := NewStreamConsumer(client, CompletionStream, "checkout-workers", "worker-1", 10, 10*time.Millisecond)
	require.NoError(t, consumer.CreateGroup(ctx))
	require.NoError(t, consumer.CreateGroup(ctx))

	entry := outbox.NewPaymentCompleted(uuid.New(), "cart_01", "ps_stripe", "stripe")
	require.NoError(t, producer.PublishCompletion(ctx, entry))

	msgs, err := consumer.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, entry.ID.String(), msgs[0].EventID)
	assert.Equal(t, outbox.EventPaymentCompleted, msgs[0].EventType)
	assert.Equal(t, "cart_01", msgs[0].CartID)
	assert.Equal(t, "stripe", msgs[0].Payload["provider"])
	assert.Equal(t, int64(1), msgs[0].Deliveries)

	require.NoError(t, consumer.Ack(ctx, msgs[0].ID))

	msgs, err = consumer.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStreams_ClaimStale(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()
	producer := NewStreamProducer(client)
	crashed := NewStreamConsumer(client, CompletionStream, "checkout-workers", "worker-1", 10, 10*time.Millisecond)
	survivor := NewStreamConsumer(client, CompletionStream, "checkout-workers", "worker-2", 10, 10*time.Millisecond)
	require.NoError(t, crashed.CreateGroup(ctx))

	require.NoError(t, producer.PublishCompletion(ctx, outbox.NewPaymentCompleted(uuid.New(), "cart_01", "ps_1", "stripe")))
	read, err := crashed.Read(ctx)
	require.NoError(t, err)
	require.Len(t, read, 1)

	claimed, err := survivor.ClaimStale(ctx, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, read[0].ID, claimed[0].ID)
	assert.Equal(t, int64(2), claimed[0].Deliveries)
	require.NoError(t, survivor.Ack(ctx, claimed[0].ID))

	claimed, err = survivor.ClaimStale(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestStreams_PublishToDLQ(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()
	producer := NewStreamProducer(client)

	msg := Message{ID: "1-0", EventID: "evt-1", EventType: outbox.EventPaymentCompleted, CartID: "cart_01", Deliveries: 5,
		Payload: map[string]any{"cart_id": "cart_01"}}
	require.NoError(t, producer.PublishToDLQ(ctx, msg, "max deliveries exceeded"))

	entries, err := client.XRange(ctx, DLQStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "max deliveries exceeded", entries[0].Values["reason"])
	assert.Equal(t, "1-0", entries[0].Values["original_id"])
	assert.Equal(t, "5", entries[0].Values["deliveries"])
}
