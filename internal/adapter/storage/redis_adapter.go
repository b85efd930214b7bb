package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/book-lending/internal/port"
)

const (
	revokedKeyPrefix  = "session:revoked:"
	idempotencyKeyTTL = 24 * time.Hour
)

// RedisAdapter keeps session revocations and borrow idempotency keys.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, redisError("set idempotency", err)
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return redisError("release idempotency", err)
	}
	return nil
}

func (r *RedisAdapter) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, revokedKeyPrefix+tokenID, 1, ttl).Err(); err != nil {
		return redisError("revoke", err)
	}
	return nil
}

func (r *RedisAdapter) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, redisError("is revoked", err)
	}
	return n > 0, nil
}

func redisError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("redis %s: %w: %w", op, port.ErrUnavailable, err)
	}
	return fmt.Errorf("redis %s: %w", op, err)
}
