package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheNamespace = "catalog:product"

// Cached is a read-through redis cache in front of another catalog. Redis
// failures never fail a lookup, the inner catalog is asked instead.
type Cached struct {
	log   *zap.Logger
	inner Catalog
	rdb   redis.UniversalClient
	ttl   time.Duration
}

type cacheOption func(*Cached)

func CacheLogger(log *zap.Logger) cacheOption {
	return func(c *Cached) {
		if log != nil {
			c.log = log
		}
	}
}

func NewCached(inner Catalog, rdb redis.UniversalClient, ttl time.Duration, options ...cacheOption) *Cached {
	c := &Cached{
		log:   zap.NewNop(),
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Cached) Product(ctx context.Context, productID string) (Product, error) {
	key := cacheNamespace + ":" + productID

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		p := Product{}
		if err := json.Unmarshal(data, &p); err == nil {
			return p, nil
		}
		c.log.Warn("dropping unreadable cached product", zap.String("product", productID))
		_ = c.rdb.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		c.log.Warn("catalog cache read failed", zap.String("product", productID), zap.Error(err))
	}

	p, err := c.inner.Product(ctx, productID)
	if err != nil {
		return p, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("catalog cache write failed", zap.String("product", productID), zap.Error(err))
		}
	}
	return p, nil
}
