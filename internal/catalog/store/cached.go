package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"medisupply/internal/catalog/models"
	id "medisupply/pkg/domain"
	"medisupply/pkg/platform/circuit"
)

const productKeyPrefix = "catalog:product:"

// Source is the authoritative catalog behind the cache.
type Source interface {
	FindProduct(ctx context.Context, productID id.ProductID) (*models.Product, error)
	FindWarehouse(ctx context.Context, warehouseID id.WarehouseID) (*models.Warehouse, error)
	ListWarehouses(ctx context.Context) ([]models.Warehouse, error)
}

// Cached is a read-through Redis cache for product lookups. Redis failures
// degrade to the source; they never fail the lookup. After repeated
// failures the breaker opens and reads go straight to the source, while
// cache writes keep probing Redis until it recovers.
type Cached struct {
	source  Source
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	breaker *circuit.Breaker
}

type CachedOption func(*Cached)

// WithBreaker replaces the default breaker (3 failures to open, 2
// successes to close).
func WithBreaker(b *circuit.Breaker) CachedOption {
	return func(c *Cached) { c.breaker = b }
}

func NewCached(source Source, client *redis.Client, ttl time.Duration, logger *slog.Logger, opts ...CachedOption) *Cached {
	c := &Cached{
		source:  source,
		client:  client,
		ttl:     ttl,
		logger:  logger,
		breaker: circuit.New("catalog-cache", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(2)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) FindProduct(ctx context.Context, productID id.ProductID) (*models.Product, error) {
	key := productKeyPrefix + productID.String()

	if !c.breaker.IsOpen() {
		raw, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			c.recordSuccess(ctx)
			var p models.Product
			if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
				return &p, nil
			}
			c.logger.WarnContext(ctx, "discarding corrupt catalog cache entry", "key", key)
		case errors.Is(err, redis.Nil):
			c.recordSuccess(ctx)
		default:
			c.recordFailure(ctx, "read", key, err)
		}
	}

	p, err := c.source.FindProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if encoded, jsonErr := json.Marshal(p); jsonErr == nil {
		if setErr := c.client.Set(ctx, key, encoded, c.ttl).Err(); setErr != nil {
			c.recordFailure(ctx, "write", key, setErr)
		} else {
			c.recordSuccess(ctx)
		}
	}
	return p, nil
}

func (c *Cached) recordFailure(ctx context.Context, op, key string, err error) {
	_, change := c.breaker.RecordFailure()
	c.logger.WarnContext(ctx, "catalog cache "+op+" failed", "key", key, "error", err)
	if change.Opened {
		c.logger.WarnContext(ctx, "catalog cache circuit opened; reading from source", "breaker", c.breaker.Name())
	}
}

func (c *Cached) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "catalog cache circuit closed", "breaker", c.breaker.Name())
	}
}

// Invalidate drops a cached product, e.g. after an upstream catalog change.
func (c *Cached) Invalidate(ctx context.Context, productID id.ProductID) error {
	return c.client.Del(ctx, productKeyPrefix+productID.String()).Err()
}

func (c *Cached) FindWarehouse(ctx context.Context, warehouseID id.WarehouseID) (*models.Warehouse, error) {
	return c.source.FindWarehouse(ctx, warehouseID)
}

func (c *Cached) ListWarehouses(ctx context.Context) ([]models.Warehouse, error) {
	return c.source.ListWarehouses(ctx)
}
