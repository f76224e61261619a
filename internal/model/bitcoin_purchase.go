package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
)

type PurchaseTrigger string

const (
	PurchaseTriggerPayment  PurchaseTrigger = "payment"
	PurchaseTriggerSchedule PurchaseTrigger = "schedule"
)

// BitcoinPurchase records one buy attempt. FiatAmount is the net amount
// spent on bitcoin; Fees is what the exchange kept out of the gross.
type BitcoinPurchase struct {
	ID                string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID          string          `gorm:"column:tenant_id;type:varchar(64);not null" json:"tenantId"`
	ExternalPaymentID *string         `gorm:"column:external_payment_id;type:varchar(255);uniqueIndex" json:"externalPaymentId"`
	IdempotencyKey    string          `gorm:"column:idempotency_key;type:varchar(255);not null;uniqueIndex" json:"idempotencyKey"`
	Trigger           PurchaseTrigger `gorm:"column:purchase_trigger;type:varchar(16);not null" json:"trigger"`
	BitcoinAmount     decimal.Decimal `gorm:"column:bitcoin_amount;type:numeric(20,8);not null" json:"bitcoinAmount"`
	FiatAmount        decimal.Decimal `gorm:"column:fiat_amount;type:numeric(20,2);not null" json:"fiatAmount"`
	ExchangeRate      decimal.Decimal `gorm:"column:exchange_rate;type:numeric(20,2);not null" json:"exchangeRate"`
	Fees              decimal.Decimal `gorm:"column:fees;type:numeric(20,2);not null" json:"fees"`
	ExchangeOrderID   string          `gorm:"column:exchange_order_id;type:varchar(255)" json:"exchangeOrderId"`
	WithdrawalID      string          `gorm:"column:withdrawal_id;type:varchar(255)" json:"withdrawalId,omitempty"`
	Status            PurchaseStatus  `gorm:"column:status;type:varchar(16);not null" json:"status"`
	FailureReason     string          `gorm:"column:failure_reason;type:text" json:"failureReason,omitempty"`
	CreatedAt         time.Time       `gorm:"column:created_at;not null;index" json:"createdAt"`
	UpdatedAt         time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (BitcoinPurchase) TableName() string {
	return "bitcoin_purchases"
}

func (p BitcoinPurchase) IsTerminal() bool {
	return p.Status == PurchaseStatusCompleted || p.Status == PurchaseStatusFailed
}
