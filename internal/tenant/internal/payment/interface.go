package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

type IStore interface {
	InsertIfAbsent(tx *gorm.DB, p *model.Payment) (bool, error)
	GetByExternalID(tx *gorm.DB, externalPaymentID string) (*model.Payment, error)
	// MarkSucceeded moves a recorded payment to succeeded. It reports false
	// when the row was already succeeded.
	MarkSucceeded(tx *gorm.DB, externalPaymentID string) (bool, error)
	SaveDecision(tx *gorm.DB, p *model.Payment) error
	ListCreatedBetween(tx *gorm.DB, start, end time.Time) ([]model.Payment, error)
	ListByExternalIDs(tx *gorm.DB, externalPaymentIDs []string) ([]model.Payment, error)
	// SumConvertedSince totals the decided conversion amounts since a point in time.
	SumConvertedSince(tx *gorm.DB, since time.Time) (decimal.Decimal, error)
}
