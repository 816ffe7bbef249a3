package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// Lua script for safe lock release (only owner can release)
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// Lua script for lock extension
	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// Locker hands out single-flight locks shared by every replica. A held lock
// is kept alive until released, so it survives attempts longer than its TTL;
// a crashed holder loses it after one TTL.
type Locker struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewLocker(client *redis.Client, logger zerolog.Logger) *Locker {
	return &Locker{client: client, logger: logger}
}

// Acquire takes the lock or fails with ErrLockAcquisitionFailed when another
// owner holds it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (checkoutApp.Lease, error) {
	lease := &Lease{
		client: l.client,
		key:    "lock:" + key,
		value:  uuid.New().String(),
		ttl:    ttl,
		logger: l.logger,
		stop:   make(chan struct{}),
	}

	// SET NX PX atomically sets the lock only if it doesn't exist
	ok, err := l.client.SetNX(ctx, lease.key, lease.value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, domainErrors.ErrLockAcquisitionFailed
	}

	lease.wg.Add(1)
	go lease.keepAlive()
	return lease, nil
}

// Lease is an acquired lock.
type Lease struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
	logger zerolog.Logger

	once sync.Once
	stop chan struct{}
	wg   sync.WaitGroup
}

func (l *Lease) keepAlive() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			err := l.Extend(ctx, l.ttl)
			cancel()
			if err != nil {
				l.logger.Warn().Err(err).Str("key", l.key).Msg("Failed to extend lock")
				if errors.Is(err, domainErrors.ErrLockNotHeld) {
					return
				}
			}
		}
	}
}

// Extend resets the lock TTL.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if val, ok := result.(int64); !ok || val == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// Release stops the keepalive and deletes the lock if still owned.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() { close(l.stop) })
	l.wg.Wait()

	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if val, ok := result.(int64); !ok || val == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}
