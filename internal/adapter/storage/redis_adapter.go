package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront-cart/internal/core/domain"
)

const (
	cartKeyPrefix     = "cart:"
	idempotencyKeyTTL = 24 * time.Hour
	DefaultCartTTL    = 7 * 24 * time.Hour
)

type RedisAdapter struct {
	client  *redis.Client
	cartTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, cartTTL time.Duration) *RedisAdapter {
	if cartTTL <= 0 {
		cartTTL = DefaultCartTTL
	}
	return &RedisAdapter{client: client, cartTTL: cartTTL}
}

func (r *RedisAdapter) LoadCart(ctx context.Context, sessionID string) ([]domain.LineItem, error) {
	data, err := r.client.Get(ctx, cartKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	var items []domain.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return items, nil
}

// SaveCart stores the items under the session key. An empty cart deletes the
// key instead of keeping an empty value around.
func (r *RedisAdapter) SaveCart(ctx context.Context, sessionID string, items []domain.LineItem) error {
	key := cartKeyPrefix + sessionID
	if len(items) == 0 {
		return errors.Wrap(r.client.Del(ctx, key).Err(), "delete cart")
	}

	data, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	return errors.Wrap(r.client.Set(ctx, key, data, r.cartTTL).Err(), "set cart")
}

func (r *RedisAdapter) DeleteCart(ctx context.Context, sessionID string) error {
	return errors.Wrap(r.client.Del(ctx, cartKeyPrefix+sessionID).Err(), "delete cart")
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return errors.Wrap(r.client.Del(ctx, key).Err(), "release idempotency key")
}
