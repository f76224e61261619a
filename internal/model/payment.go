package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/consts"
)

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusPending   PaymentStatus = "pending"
)

// Payment is an inbound customer payment together with the conversion
// decision taken for it. The decision is written once, in the same
// transaction as the row, so a redelivery reads it back instead of
// evaluating again against a moved accumulator.
type Payment struct {
	ID                string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID          string          `gorm:"column:tenant_id;type:varchar(64);not null" json:"tenantId"`
	ExternalPaymentID string          `gorm:"column:external_payment_id;type:varchar(255);not null;uniqueIndex" json:"externalPaymentId"`
	AmountMinorUnits  int64           `gorm:"column:amount_minor_units;not null" json:"amountMinorUnits"`
	Currency          string          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Status            PaymentStatus   `gorm:"column:status;type:varchar(16);not null" json:"status"`
	ShouldConvert     bool            `gorm:"column:should_convert;not null" json:"shouldConvert"`
	ConversionAmount  decimal.Decimal `gorm:"column:conversion_amount;type:numeric(20,2);not null" json:"conversionAmount"`
	DecisionReason    string          `gorm:"column:decision_reason;type:varchar(255)" json:"decisionReason"`
	CreatedAt         time.Time       `gorm:"column:created_at;not null;index" json:"createdAt"`
}

func (Payment) TableName() string {
	return "payments"
}

// Amount returns the payment in major currency units.
func (p Payment) Amount() decimal.Decimal {
	return decimal.New(p.AmountMinorUnits, -consts.FIAT_DECIMALS)
}
