package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/monitoring"
	"github.com/dwarvesf/treasury-settlement/internal/utils/config"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

// HealthHandler implements IHealthHandler interface
type HealthHandler struct {
	config           *config.AppConfig
	logger           *logger.Logger
	db               *gorm.DB
	exchange         PriceSource
	redis            Pinger
	jobStatusManager *monitoring.JobStatusManager
	checkTimeout     time.Duration
}

// New creates a new health handler instance. redis may be nil when the
// tenant cache is disabled.
func New(config *config.AppConfig, logger *logger.Logger, db *gorm.DB, exchange PriceSource, redis Pinger, jobStatusManager *monitoring.JobStatusManager) IHealthHandler {
	return &HealthHandler{
		config:           config,
		logger:           logger,
		db:               db,
		exchange:         exchange,
		redis:            redis,
		jobStatusManager: jobStatusManager,
		checkTimeout:     monitoring.DefaultTimeoutConfig.HealthCheckTimeout,
	}
}

// Basic handles the basic health check endpoint (/healthz)
// @Summary Basic health check
// @Description Returns basic system availability status
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} BasicHealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Basic(c *gin.Context) {
	response := BasicHealthResponse{
		Message: "ok",
	}
	c.JSON(http.StatusOK, response)
}

// Database handles the database health check endpoint
// @Summary Database health check
// @Description Validates database connectivity and performance
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /api/v1/health/db [get]
func (h *HealthHandler) Database(c *gin.Context) {
	start := time.Now()

	response := HealthResponse{
		Timestamp: start,
		Checks:    make(map[string]HealthCheck),
	}

	dbCheck := h.checkDatabase(requestContext(c))
	response.Checks["database"] = dbCheck
	response.DurationMs = time.Since(start).Milliseconds()

	response.Status = dbCheck.Status
	c.JSON(httpStatusFor(response.Status), response)
}

// External handles the external dependencies health check endpoint
// @Summary External dependencies health check
// @Description Validates exchange and cache connectivity
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /api/v1/health/external [get]
func (h *HealthHandler) External(c *gin.Context) {
	start := time.Now()

	response := HealthResponse{
		Timestamp: start,
		Checks:    make(map[string]HealthCheck),
	}

	ctx, cancel := context.WithTimeout(requestContext(c), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	run := func(name string, check func(ctx context.Context) HealthCheck) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := check(ctx)
			mu.Lock()
			response.Checks[name] = result
			mu.Unlock()
		}()
	}

	run("exchange", h.checkExchange)
	if h.redis != nil {
		run("redis", h.checkRedis)
	}

	wg.Wait()
	response.DurationMs = time.Since(start).Milliseconds()

	response.Status = statusHealthy
	for _, check := range response.Checks {
		if check.Status != statusHealthy {
			response.Status = statusUnhealthy
			break
		}
	}
	c.JSON(httpStatusFor(response.Status), response)
}

func requestContext(c *gin.Context) context.Context {
	if c.Request != nil {
		return c.Request.Context()
	}
	return context.Background()
}

// checkDatabase performs database health validation
func (h *HealthHandler) checkDatabase(ctx context.Context) HealthCheck {
	start := time.Now()

	check := HealthCheck{
		Metadata: make(map[string]interface{}),
	}

	if h.db == nil {
		check.Status = statusUnhealthy
		check.Error = "database connection not available"
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		check.Status = statusUnhealthy
		check.Error = fmt.Sprintf("failed to get underlying database: %v", err)
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		check.Status = statusUnhealthy
		if pingCtx.Err() == context.DeadlineExceeded {
			check.Error = "timeout"
		} else {
			check.Error = err.Error()
		}
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	stats := sqlDB.Stats()

	check.Status = statusHealthy
	check.Latency = time.Since(start).Milliseconds()
	check.Metadata["driver"] = "postgres"
	check.Metadata["connection_pool"] = map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"max_open":         stats.MaxOpenConnections,
	}

	return check
}

// checkExchange asks the exchange backend for the configured pair's price
func (h *HealthHandler) checkExchange(ctx context.Context) HealthCheck {
	if h.exchange == nil {
		return HealthCheck{Status: statusUnhealthy, Error: "exchange not available"}
	}
	return h.probe(ctx, func(ctx context.Context, metadata map[string]interface{}) error {
		price, err := h.exchange.GetMarketPrice(ctx)
		if err == nil {
			metadata["price"] = price.String()
			if h.config != nil {
				metadata["backend"] = h.config.Exchange.Backend
				metadata["pair"] = h.config.Exchange.Pair
			}
		}
		return err
	})
}

func (h *HealthHandler) checkRedis(ctx context.Context) HealthCheck {
	return h.probe(ctx, func(ctx context.Context, _ map[string]interface{}) error {
		return h.redis.Ping(ctx).Err()
	})
}

// probe runs fn under the per-check timeout. fn owns its metadata map until
// it returns.
func (h *HealthHandler) probe(ctx context.Context, fn func(ctx context.Context, metadata map[string]interface{}) error) HealthCheck {
	start := time.Now()
	check := HealthCheck{}

	timeout := h.checkTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	metadata := make(map[string]interface{})
	done := make(chan error, 1)
	go func() {
		done <- fn(checkCtx, metadata)
	}()

	select {
	case err := <-done:
		check.Metadata = metadata
		if err != nil {
			check.Status = statusUnhealthy
			check.Error = err.Error()
		} else {
			check.Status = statusHealthy
		}
	case <-checkCtx.Done():
		check.Status = statusUnhealthy
		if checkCtx.Err() == context.DeadlineExceeded {
			check.Error = "timeout"
		} else {
			check.Error = checkCtx.Err().Error()
		}
	}

	check.Latency = time.Since(start).Milliseconds()
	return check
}
