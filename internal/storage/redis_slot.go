package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisSlot keeps the ride id in Redis so several client processes of the
// same actor (CLI and view server) see one slot.
type RedisSlot struct {
	client *redis.Client
	key    string
}

func NewRedisSlot(addr, password, key string) *RedisSlot {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisSlot{client: c, key: key}
}

// Scoped returns a slot sharing the connection but keyed to one actor.
func (r *RedisSlot) Scoped(actorID string) *RedisSlot {
	return &RedisSlot{client: r.client, key: r.key + ":" + actorID}
}

func (r *RedisSlot) Load(ctx context.Context) (string, error) {
	v, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *RedisSlot) Store(ctx context.Context, rideID string) error {
	if rideID == "" {
		return r.Clear(ctx)
	}
	return r.client.Set(ctx, r.key, rideID, 0).Err()
}

func (r *RedisSlot) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *RedisSlot) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisSlot) Close() error { return r.client.Close() }
