// Package exchange places bitcoin buy orders on a brokerage backend and
// turns the outcome into a purchase result.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// IExchange is a brokerage backend. PlaceBuyOrder must be idempotent on
// ClientOrderID.
type IExchange interface {
	Name() string
	GetMarketPrice(ctx context.Context, pair string) (decimal.Decimal, error)
	PlaceBuyOrder(ctx context.Context, req OrderRequest) (*Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (*Order, error)
	// FindOrderByClientID returns ErrOrderNotFound when nothing was placed.
	FindOrderByClientID(ctx context.Context, clientOrderID string) (*Order, error)
	Withdraw(ctx context.Context, req WithdrawalRequest) (*Withdrawal, error)
}

// IExecutor is what the ingestion pipeline depends on.
type IExecutor interface {
	GetMarketPrice(ctx context.Context) (decimal.Decimal, error)
	// ExecuteBuyOrder always returns a result. A failed result carries the
	// cause as the returned error.
	ExecuteBuyOrder(ctx context.Context, req BuyOrderRequest) (*BuyOrderResult, error)
	GetOrderStatus(ctx context.Context, orderID string) (*Order, error)
}
