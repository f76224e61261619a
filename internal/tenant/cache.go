package tenant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

// Cache keeps resolved tenant rows. A failing cache behaves as a miss.
type Cache interface {
	Get(ctx context.Context, tenantID string) (*model.Tenant, bool)
	Set(ctx context.Context, t *model.Tenant)
	Invalidate(ctx context.Context, tenantID string)
}

type noopCache struct{}

func NewNoopCache() Cache {
	return noopCache{}
}

func (noopCache) Get(context.Context, string) (*model.Tenant, bool) { return nil, false }
func (noopCache) Set(context.Context, *model.Tenant)                {}
func (noopCache) Invalidate(context.Context, string)                {}

const cacheType = "tenant"

type redisCache struct {
	client  redis.Cmdable
	ttl     time.Duration
	logger  *logger.Logger
	metrics Metrics
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration, logger *logger.Logger, metrics Metrics) Cache {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &redisCache{client: client, ttl: ttl, logger: logger, metrics: metrics}
}

func cacheKey(tenantID string) string {
	return "tenant:" + tenantID
}

func (c *redisCache) Get(ctx context.Context, tenantID string) (*model.Tenant, bool) {
	raw, err := c.client.Get(ctx, cacheKey(tenantID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.metrics.RecordCacheOperation(cacheType, "error")
			c.logger.Warn("[TenantCache][Get] cache read failed", map[string]string{
				"tenantID": tenantID,
				"error":    err.Error(),
			})
			return nil, false
		}
		c.metrics.RecordCacheOperation(cacheType, "miss")
		return nil, false
	}

	var t model.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		c.metrics.RecordCacheOperation(cacheType, "error")
		c.logger.Warn("[TenantCache][Get] cache entry is corrupt", map[string]string{
			"tenantID": tenantID,
			"error":    err.Error(),
		})
		return nil, false
	}
	c.metrics.RecordCacheOperation(cacheType, "hit")
	return &t, true
}

func (c *redisCache) Set(ctx context.Context, t *model.Tenant) {
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(t.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("[TenantCache][Set] cache write failed", map[string]string{
			"tenantID": t.ID,
			"error":    err.Error(),
		})
	}
}

func (c *redisCache) Invalidate(ctx context.Context, tenantID string) {
	if err := c.client.Del(ctx, cacheKey(tenantID)).Err(); err != nil {
		c.logger.Warn("[TenantCache][Invalidate] cache delete failed", map[string]string{
			"tenantID": tenantID,
			"error":    err.Error(),
		})
	}
}
