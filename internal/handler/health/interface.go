package health

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// IHealthHandler defines the interface for health check handlers
type IHealthHandler interface {
	Basic(c *gin.Context)
	Database(c *gin.Context)
	External(c *gin.Context)
	Jobs(c *gin.Context)
}

// PriceSource is the exchange call used as a liveness probe.
type PriceSource interface {
	GetMarketPrice(ctx context.Context) (decimal.Decimal, error)
}

// Pinger is satisfied by *redis.Client.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}
