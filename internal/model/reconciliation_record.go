package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReconciliationClassification string

const (
	ClassificationMatched          ReconciliationClassification = "MATCHED"
	ClassificationOrphanedPayment  ReconciliationClassification = "ORPHANED_PAYMENT"
	ClassificationOrphanedPurchase ReconciliationClassification = "ORPHANED_PURCHASE"
	ClassificationAmountMismatch   ReconciliationClassification = "AMOUNT_MISMATCH"
)

// ReconciliationRecord is append-only; nothing updates or deletes it.
type ReconciliationRecord struct {
	ID                string                       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SweepID           string                       `gorm:"column:sweep_id;type:uuid;not null;index" json:"sweepId"`
	TenantID          string                       `gorm:"column:tenant_id;type:varchar(64);not null" json:"tenantId"`
	PaymentID         *string                      `gorm:"column:payment_id;type:uuid" json:"paymentId,omitempty"`
	PurchaseID        *string                      `gorm:"column:purchase_id;type:uuid" json:"purchaseId,omitempty"`
	ExternalPaymentID string                       `gorm:"column:external_payment_id;type:varchar(255)" json:"externalPaymentId"`
	Classification    ReconciliationClassification `gorm:"column:classification;type:varchar(32);not null" json:"classification"`
	ExpectedAmount    decimal.NullDecimal          `gorm:"column:expected_amount;type:numeric(20,2)" json:"expectedAmount,omitempty"`
	ActualAmount      decimal.NullDecimal          `gorm:"column:actual_amount;type:numeric(20,2)" json:"actualAmount,omitempty"`
	DetectedAt        time.Time                    `gorm:"column:detected_at;not null" json:"detectedAt"`
}

func (ReconciliationRecord) TableName() string {
	return "reconciliation_records"
}
