package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/dwarvesf/treasury-settlement/internal/exchange"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

const exchangeService = "exchange"

// CircuitBreakerExchange wraps exchange.IExchange with circuit breaker functionality.
// Only retryable failures count against the breaker; a rejected order means
// the backend is healthy.
type CircuitBreakerExchange struct {
	wrapped        exchange.IExchange
	circuitBreaker *gobreaker.CircuitBreaker
	metrics        *ExternalAPIMetrics
	logger         *logger.Logger
	timeoutConfig  TimeoutConfig
}

// NewCircuitBreakerExchange creates a new circuit breaker wrapper for an exchange backend
func NewCircuitBreakerExchange(wrapped exchange.IExchange, config CircuitBreakerConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) (*CircuitBreakerExchange, error) {
	return NewCircuitBreakerExchangeWithTimeout(wrapped, config, DefaultTimeoutConfig, metrics, logger)
}

// NewCircuitBreakerExchangeWithTimeout creates a new circuit breaker wrapper with custom timeout config
func NewCircuitBreakerExchangeWithTimeout(wrapped exchange.IExchange, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) (*CircuitBreakerExchange, error) {
	if err := validateCircuitBreakerConfig(config); err != nil {
		return nil, err
	}

	cb := &CircuitBreakerExchange{
		wrapped:       wrapped,
		metrics:       metrics,
		logger:        logger,
		timeoutConfig: timeoutConfig,
	}

	settings := gobreaker.Settings{
		Name:        exchangeService,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.ConsecutiveFailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !exchange.IsRetryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state change", map[string]string{
				"service": name,
				"backend": wrapped.Name(),
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.UpdateCircuitBreakerState(exchangeService, to)
		},
	}

	cb.circuitBreaker = gobreaker.NewCircuitBreaker(settings)
	return cb, nil
}

// State exposes the breaker state for health reporting.
func (cb *CircuitBreakerExchange) State() gobreaker.State {
	return cb.circuitBreaker.State()
}

func (cb *CircuitBreakerExchange) Name() string {
	return cb.wrapped.Name()
}

func (cb *CircuitBreakerExchange) GetMarketPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	return execute(ctx, cb, "get_market_price", func(ctx context.Context) (decimal.Decimal, error) {
		return cb.wrapped.GetMarketPrice(ctx, pair)
	})
}

func (cb *CircuitBreakerExchange) PlaceBuyOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	return execute(ctx, cb, "place_buy_order", func(ctx context.Context) (*exchange.Order, error) {
		return cb.wrapped.PlaceBuyOrder(ctx, req)
	})
}

func (cb *CircuitBreakerExchange) GetOrderStatus(ctx context.Context, orderID string) (*exchange.Order, error) {
	return execute(ctx, cb, "get_order_status", func(ctx context.Context) (*exchange.Order, error) {
		return cb.wrapped.GetOrderStatus(ctx, orderID)
	})
}

func (cb *CircuitBreakerExchange) FindOrderByClientID(ctx context.Context, clientOrderID string) (*exchange.Order, error) {
	return execute(ctx, cb, "find_order", func(ctx context.Context) (*exchange.Order, error) {
		return cb.wrapped.FindOrderByClientID(ctx, clientOrderID)
	})
}

func (cb *CircuitBreakerExchange) Withdraw(ctx context.Context, req exchange.WithdrawalRequest) (*exchange.Withdrawal, error) {
	return execute(ctx, cb, "withdraw", func(ctx context.Context) (*exchange.Withdrawal, error) {
		return cb.wrapped.Withdraw(ctx, req)
	})
}

// execute runs fn through the breaker. An open breaker surfaces as a
// transient exchange error so the executor backs off instead of failing the
// purchase outright.
func execute[T any](ctx context.Context, cb *CircuitBreakerExchange, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := cb.circuitBreaker.Execute(func() (interface{}, error) {
		return cb.executeWithTimeout(ctx, operation, func(ctx context.Context) (interface{}, error) {
			return fn(ctx)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			cb.metrics.RecordAPICall(exchangeService, operation, "rejected_open", 0)
			return zero, exchange.Transient(operation, errors.Wrap(exchange.ErrBackendUnavailable, err.Error()))
		}
		return zero, err
	}
	return result.(T), nil
}

// executeWithTimeout executes a function with timeout and metrics recording
func (cb *CircuitBreakerExchange) executeWithTimeout(parent context.Context, operation string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	start := time.Now()

	timeout := cb.timeoutConfig.RequestTimeout
	if operation == "health_check" {
		timeout = cb.timeoutConfig.HealthCheckTimeout
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan struct{})
	var result interface{}
	var err error

	go func() {
		defer close(done)
		result, err = fn(ctx)
	}()

	select {
	case <-done:
		if err != nil && ctx.Err() != nil && parent.Err() == nil {
			cb.metrics.RecordTimeout(exchangeService, operation)
			cb.logError(exchangeService, operation, time.Since(start).Seconds(), ctx.Err())
			return nil, exchange.Timeout(operation, ctx.Err())
		}
		duration := time.Since(start).Seconds()
		status := "success"
		if err != nil {
			status = "error"
			cb.logError(exchangeService, operation, duration, err)
		}
		cb.metrics.RecordAPICall(exchangeService, operation, status, duration)
		return result, err

	case <-ctx.Done():
		cb.metrics.RecordTimeout(exchangeService, operation)
		cb.logError(exchangeService, operation, time.Since(start).Seconds(), ctx.Err())
		return nil, exchange.Timeout(operation, ctx.Err())
	}
}

func (cb *CircuitBreakerExchange) logError(service, operation string, duration float64, err error) {
	cb.logger.Error("External API call failed", map[string]string{
		"service":    service,
		"operation":  operation,
		"duration":   strconv.FormatFloat(duration, 'f', 3, 64),
		"error":      err.Error(),
		"error_type": string(classifyError(err)),
		"cb_state":   cb.circuitBreaker.State().String(),
	})
}

// classifyError classifies errors into different types for metrics and logging
func classifyError(err error) APIErrorType {
	if err == nil {
		return ""
	}

	switch {
	case exchange.IsTimeout(err):
		return ErrorTypeTimeout
	case exchange.IsPermanent(err):
		return ErrorTypeRejected
	}

	errMsg := strings.ToLower(err.Error())

	// Timeout errors
	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded") ||
		strings.Contains(errMsg, "context canceled") {
		return ErrorTypeTimeout
	}

	// Network errors
	if strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "connection") ||
		strings.Contains(errMsg, "unreachable") ||
		strings.Contains(errMsg, "dns") {
		return ErrorTypeNetworkError
	}

	// Server errors (5xx)
	if strings.Contains(errMsg, "500") ||
		strings.Contains(errMsg, "502") ||
		strings.Contains(errMsg, "503") ||
		strings.Contains(errMsg, "internal server error") ||
		strings.Contains(errMsg, "bad gateway") ||
		strings.Contains(errMsg, "service unavailable") {
		return ErrorTypeServerError
	}

	// Client errors (4xx)
	if strings.Contains(errMsg, "400") ||
		strings.Contains(errMsg, "401") ||
		strings.Contains(errMsg, "403") ||
		strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "bad request") ||
		strings.Contains(errMsg, "unauthorized") ||
		strings.Contains(errMsg, "forbidden") ||
		strings.Contains(errMsg, "rate limit") {
		return ErrorTypeClientError
	}

	return ErrorTypeUnknown
}

// validateCircuitBreakerConfig validates circuit breaker configuration
func validateCircuitBreakerConfig(config CircuitBreakerConfig) error {
	if config.MaxRequests == 0 {
		return fmt.Errorf("max_requests must be greater than 0")
	}

	if config.ConsecutiveFailureThreshold <= 0 {
		return fmt.Errorf("consecutive_failure_threshold must be greater than 0")
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	if config.Interval < 0 {
		return fmt.Errorf("interval must be non-negative")
	}

	return nil
}
