package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "medisupply/pkg/domain"
)

const keyPrefix = "orders:idempotency:"

// Redis shares claims across server replicas with SETNX.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Claim(ctx context.Context, key string, orderID id.OrderID, ttl time.Duration) (id.OrderID, bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, orderID.String(), ttl).Result()
	if err != nil {
		return id.OrderID{}, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return orderID, true, nil
	}
	existing, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		return s.Claim(ctx, key, orderID, ttl)
	}
	if err != nil {
		return id.OrderID{}, false, fmt.Errorf("read idempotency key: %w", err)
	}
	bound, err := id.ParseOrderID(existing)
	if err != nil {
		return id.OrderID{}, false, fmt.Errorf("corrupt idempotency key %s: %w", key, err)
	}
	return bound, false, nil
}

func (s *Redis) Forget(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}
