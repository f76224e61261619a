package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderRequest spends FiatAmount of the quote currency. Fees are already
// taken out by the executor.
type OrderRequest struct {
	ClientOrderID string          `json:"clientOrderId"`
	Pair          string          `json:"pair"`
	FiatAmount    decimal.Decimal `json:"fiatAmount"`
}

type Order struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"clientOrderId"`
	Pair          string          `json:"pair"`
	Status        OrderStatus     `json:"status"`
	FiatAmount    decimal.Decimal `json:"fiatAmount"`
	BitcoinAmount decimal.Decimal `json:"bitcoinAmount"`
	Price         decimal.Decimal `json:"price"`
	RejectReason  string          `json:"rejectReason,omitempty"`
}

func (o Order) IsFinal() bool {
	return o.Status != OrderStatusPending
}

type WithdrawalRequest struct {
	ClientWithdrawalID string          `json:"clientWithdrawalId"`
	Address            string          `json:"address"`
	BitcoinAmount      decimal.Decimal `json:"bitcoinAmount"`
}

type Withdrawal struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// BuyOrderRequest is a gross fiat amount to convert for a tenant.
type BuyOrderRequest struct {
	TenantID           string
	AmountFiat         decimal.Decimal
	IdempotencyKey     string
	DestinationAddress string
}

// BuyOrderResult maps onto a BitcoinPurchase. FiatAmount is net of Fees.
type BuyOrderResult struct {
	Status        model.PurchaseStatus
	OrderID       string
	BitcoinAmount decimal.Decimal
	FiatAmount    decimal.Decimal
	ExchangeRate  decimal.Decimal
	Fees          decimal.Decimal
	WithdrawalID  string
	FailureReason string
	Attempts      int
}

// ApplyTo copies the outcome onto a purchase row.
func (r BuyOrderResult) ApplyTo(p *model.BitcoinPurchase) {
	p.Status = r.Status
	p.ExchangeOrderID = r.OrderID
	p.BitcoinAmount = r.BitcoinAmount
	p.FiatAmount = r.FiatAmount
	p.ExchangeRate = r.ExchangeRate
	p.Fees = r.Fees
	p.WithdrawalID = r.WithdrawalID
	p.FailureReason = r.FailureReason
}
