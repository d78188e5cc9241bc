package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	categoryListKey   = "categories:all"
	categoryKeyPrefix = "categories:id:"
)

type (
	ListLoader func(ctx context.Context) ([]*domain.Category, error)
	ItemLoader func(ctx context.Context, id uuid.UUID) (*domain.Category, error)
)

// CategoryCache is a cache-aside layer over category reads. Stock and other
// product data are never cached.
type CategoryCache interface {
	List(ctx context.Context, load ListLoader) ([]*domain.Category, error)
	Get(ctx context.Context, id uuid.UUID, load ItemLoader) (*domain.Category, error)
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

type redisCategoryCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// NewRedisCategoryCache caches category rows in Redis for ttl. Redis errors
// are logged and the loader is used instead.
func NewRedisCategoryCache(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) CategoryCache {
	return &redisCategoryCache{client: client, ttl: ttl, logger: logger}
}

func (c *redisCategoryCache) List(ctx context.Context, load ListLoader) ([]*domain.Category, error) {
	var categories []*domain.Category
	if c.read(ctx, categoryListKey, &categories) {
		return categories, nil
	}

	// Concurrent misses share one database read.
	v, err, _ := c.group.Do(categoryListKey, func() (any, error) {
		fresh, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.write(ctx, categoryListKey, fresh)
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*domain.Category), nil
}

func (c *redisCategoryCache) Get(ctx context.Context, id uuid.UUID, load ItemLoader) (*domain.Category, error) {
	key := categoryKeyPrefix + id.String()

	var category domain.Category
	if c.read(ctx, key, &category) {
		return &category, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		fresh, err := load(ctx, id)
		if err != nil {
			return nil, err
		}
		c.write(ctx, key, fresh)
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Category), nil
}

// Invalidate drops the list entry and the entries for ids.
func (c *redisCategoryCache) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	keys := []string{categoryListKey}
	for _, id := range ids {
		keys = append(keys, categoryKeyPrefix+id.String())
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Error("Failed to invalidate category cache",
			zap.Error(err),
			zap.Strings("keys", keys),
		)
	}
}

func (c *redisCategoryCache) read(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Category cache read failed",
				zap.Error(err),
				zap.String("key", key),
			)
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("Discarding corrupt category cache entry",
			zap.Error(err),
			zap.String("key", key),
		)
		return false
	}
	return true
}

func (c *redisCategoryCache) write(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("Failed to encode category cache entry", zap.Error(err), zap.String("key", key))
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Category cache write failed", zap.Error(err), zap.String("key", key))
	}
}

// NopCategoryCache always calls the loader.
type NopCategoryCache struct{}

func (NopCategoryCache) List(ctx context.Context, load ListLoader) ([]*domain.Category, error) {
	return load(ctx)
}

func (NopCategoryCache) Get(ctx context.Context, id uuid.UUID, load ItemLoader) (*domain.Category, error) {
	return load(ctx, id)
}

func (NopCategoryCache) Invalidate(context.Context, ...uuid.UUID) {}
