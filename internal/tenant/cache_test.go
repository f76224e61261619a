package tenant

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/types/environments"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

func TestRedisCache_UnreachableIsAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	metrics := &recordingMetrics{}
	c := NewRedisCache(client, time.Minute, logger.New(environments.Test), metrics)
	ctx := context.Background()

	c.Set(ctx, &model.Tenant{ID: "acme"})
	got, ok := c.Get(ctx, "acme")
	assert.False(t, ok)
	assert.Nil(t, got)
	c.Invalidate(ctx, "acme")
	assert.Equal(t, []string{"tenant/error"}, metrics.recorded())
}

func TestRedisCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer client.Close()

	metrics := &recordingMetrics{}
	c := NewRedisCache(client, time.Minute, logger.New(environments.Test), metrics)
	ctx := context.Background()

	c.Set(ctx, &model.Tenant{ID: "acme", SchemaRef: "tenant_acme", Status: model.TenantStatusActive})
	got, ok := c.Get(ctx, "acme")
	require.True(t, ok)
	assert.Equal(t, "tenant_acme", got.SchemaRef)

	c.Invalidate(ctx, "acme")
	_, ok = c.Get(ctx, "acme")
	assert.False(t, ok)
	assert.Equal(t, []string{"tenant/hit", "tenant/miss"}, metrics.recorded())
}
