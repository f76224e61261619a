package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ThresholdAccumulator is the running balance a THRESHOLD rule converts
// once it crosses the configured amount.
type ThresholdAccumulator struct {
	TenantID  string          `gorm:"column:tenant_id;type:varchar(64);primaryKey"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(20,2);not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (ThresholdAccumulator) TableName() string {
	return "threshold_accumulators"
}
