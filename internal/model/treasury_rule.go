package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type RuleType string

const (
	RuleTypePercentage  RuleType = "PERCENTAGE"
	RuleTypeThreshold   RuleType = "THRESHOLD"
	RuleTypeFixedAmount RuleType = "FIXED_AMOUNT"
	RuleTypeDCA         RuleType = "DCA"
)

type TreasuryRule struct {
	ID                   string              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TenantID             string              `gorm:"column:tenant_id;type:varchar(64);not null" json:"tenantId"`
	Type                 RuleType            `gorm:"column:type;type:varchar(32);not null" json:"type"`
	Percentage           decimal.NullDecimal `gorm:"column:percentage;type:numeric(7,4)" json:"percentage,omitempty"`
	ThresholdAmount      decimal.NullDecimal `gorm:"column:threshold_amount;type:numeric(20,2)" json:"thresholdAmount,omitempty"`
	FixedAmount          decimal.NullDecimal `gorm:"column:fixed_amount;type:numeric(20,2)" json:"fixedAmount,omitempty"`
	MinTransactionAmount decimal.Decimal     `gorm:"column:min_transaction_amount;type:numeric(20,2);not null" json:"minTransactionAmount"`
	MaxTransactionAmount decimal.Decimal     `gorm:"column:max_transaction_amount;type:numeric(20,2);not null" json:"maxTransactionAmount"`
	IsActive             bool                `gorm:"column:is_active;not null" json:"isActive"`
	CreatedAt            time.Time           `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt            time.Time           `gorm:"column:updated_at" json:"updatedAt"`
}

func (TreasuryRule) TableName() string {
	return "treasury_rules"
}
