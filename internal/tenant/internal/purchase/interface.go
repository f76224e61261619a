package purchase

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

type IStore interface {
	// InsertIfAbsent is guarded by the unique idempotency key and external payment id.
	InsertIfAbsent(tx *gorm.DB, p *model.BitcoinPurchase) (bool, error)
	GetByIdempotencyKey(tx *gorm.DB, key string) (*model.BitcoinPurchase, error)
	GetByExternalPaymentID(tx *gorm.DB, externalPaymentID string) (*model.BitcoinPurchase, error)
	UpdateOutcome(tx *gorm.DB, p *model.BitcoinPurchase) error
	ListCreatedBetween(tx *gorm.DB, start, end time.Time) ([]model.BitcoinPurchase, error)
	ListByExternalIDs(tx *gorm.DB, externalPaymentIDs []string) ([]model.BitcoinPurchase, error)
	// SumScheduledSince totals gross fiat spent by scheduled purchases that did not fail.
	SumScheduledSince(tx *gorm.DB, since time.Time) (decimal.Decimal, error)
}
