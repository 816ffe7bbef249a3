package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	checkoutApp "github.com/cassiomorais/checkout/internal/application/checkout"
	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedCartStore serves recently fetched carts from Redis for page renders.
// Writes go through to the backend and refresh the cached copy. Flows that
// must observe backend-side changes use the wrapped store directly.
type CachedCartStore struct {
	inner  checkoutApp.CartStore
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedCartStore(inner checkoutApp.CartStore, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedCartStore {
	return &CachedCartStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func cartKey(cartID string) string {
	return "checkout:cart:" + cartID
}

func (s *CachedCartStore) Retrieve(ctx context.Context, cartID string) (*cart.Cart, error) {
	raw, err := s.client.Get(ctx, cartKey(cartID)).Bytes()
	switch {
	case err == nil:
		var c cart.Cart
		if err := json.Unmarshal(raw, &c); err == nil {
			return &c, nil
		}
		s.logger.Warn().Err(err).Str("cart_id", cartID).Msg("Discarding undecodable cached cart")
	case !errors.Is(err, redis.Nil):
		s.logger.Warn().Err(err).Str("cart_id", cartID).Msg("Cart cache read failed")
	}

	c, err := s.inner.Retrieve(ctx, cartID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, c)
	return c, nil
}

func (s *CachedCartStore) UpdateContext(ctx context.Context, cartID, version string, bag map[string]any) (*cart.Cart, error) {
	c, err := s.inner.UpdateContext(ctx, cartID, version, bag)
	if err != nil {
		if delErr := s.client.Del(ctx, cartKey(cartID)).Err(); delErr != nil {
			s.logger.Warn().Err(delErr).Str("cart_id", cartID).Msg("Cart cache invalidation failed")
		}
		return nil, err
	}
	s.store(ctx, c)
	return c, nil
}

// Invalidate drops the cached copy of a cart.
func (s *CachedCartStore) Invalidate(ctx context.Context, cartID string) error {
	return s.client.Del(ctx, cartKey(cartID)).Err()
}

func (s *CachedCartStore) store(ctx context.Context, c *cart.Cart) {
	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, cartKey(c.ID), raw, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("cart_id", c.ID).Msg("Cart cache write failed")
	}
}
