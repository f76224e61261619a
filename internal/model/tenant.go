package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

type SubscriptionTier string

const (
	SubscriptionTierStarter    SubscriptionTier = "starter"
	SubscriptionTierGrowth     SubscriptionTier = "growth"
	SubscriptionTierEnterprise SubscriptionTier = "enterprise"
)

// Tenant lives in the shared schema and points at the tenant's own partition.
type Tenant struct {
	ID                  string              `gorm:"column:id;type:varchar(64);primaryKey" json:"id"`
	Name                string              `gorm:"column:name;type:varchar(255);not null" json:"name"`
	SchemaRef           string              `gorm:"column:schema_ref;type:varchar(63);not null;uniqueIndex" json:"schema_ref"`
	Status              TenantStatus        `gorm:"column:status;type:varchar(32);not null" json:"status"`
	SubscriptionTier    SubscriptionTier    `gorm:"column:subscription_tier;type:varchar(32);not null" json:"subscription_tier"`
	MonthlyVolumeLimit  decimal.NullDecimal `gorm:"column:monthly_volume_limit;type:numeric(20,2)" json:"monthly_volume_limit"`
	DailyVolumeLimit    decimal.NullDecimal `gorm:"column:daily_volume_limit;type:numeric(20,2)" json:"daily_volume_limit"`
	PerTransactionLimit decimal.NullDecimal `gorm:"column:per_transaction_limit;type:numeric(20,2)" json:"per_transaction_limit"`
	WithdrawalAddress   string              `gorm:"column:withdrawal_address;type:varchar(128)" json:"withdrawal_address,omitempty"`
	CreatedAt           time.Time           `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"column:updated_at" json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

func (t Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// VolumeLimits groups the caps applied after rule evaluation. An invalid
// NullDecimal means no cap.
type VolumeLimits struct {
	Monthly        decimal.NullDecimal
	Daily          decimal.NullDecimal
	PerTransaction decimal.NullDecimal
}

func (t Tenant) VolumeLimits() VolumeLimits {
	return VolumeLimits{
		Monthly:        t.MonthlyVolumeLimit,
		Daily:          t.DailyVolumeLimit,
		PerTransaction: t.PerTransactionLimit,
	}
}
