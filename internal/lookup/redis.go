package lookup

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/kalder/pos-engine/internal/domain/product"
)

// baseTTL bounds staleness of cached lookups; a random jitter spreads
// expirations so a busy shift doesn't trigger a thundering rewarm.
const (
	baseTTL   = 15 * time.Minute
	ttlJitter = 5 * time.Minute
)

var _ Cache = (*RedisCache)(nil)

// RedisCache caches barcode lookups in Redis as JSON values.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache returns a RedisCache over the given client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached product for a barcode, or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, barcode string) (*product.Product, error) {
	data, err := c.client.Get(ctx, cacheKey(barcode)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, errors.Wrap(err, "redis get")
	}

	var p product.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "unmarshal cached product")
	}
	return &p, nil
}

// Set stores the product under its barcode with a jittered TTL.
func (c *RedisCache) Set(ctx context.Context, barcode string, p *product.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal product")
	}

	ttl := baseTTL + time.Duration(rand.Int63n(int64(ttlJitter)))
	if err := c.client.Set(ctx, cacheKey(barcode), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Delete drops the cached entry for a barcode.
func (c *RedisCache) Delete(ctx context.Context, barcode string) error {
	if err := c.client.Del(ctx, cacheKey(barcode)).Err(); err != nil {
		return errors.Wrap(err, "redis delete")
	}
	return nil
}

func cacheKey(barcode string) string {
	return "barcode:" + barcode
}
