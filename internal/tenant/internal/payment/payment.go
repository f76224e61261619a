package payment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/partition"
)

type store struct {
	scope partition.Scope
}

func New(scope partition.Scope) IStore {
	return &store{scope: scope}
}

func (s *store) InsertIfAbsent(tx *gorm.DB, p *model.Payment) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (id, tenant_id, external_payment_id, amount_minor_units, currency, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (external_payment_id) DO NOTHING`, s.scope.Quoted("payments"))

	res := tx.Exec(query, p.ID, p.TenantID, p.ExternalPaymentID, p.AmountMinorUnits, p.Currency, p.Status, p.CreatedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *store) GetByExternalID(tx *gorm.DB, externalPaymentID string) (*model.Payment, error) {
	var p model.Payment
	err := tx.Table(s.scope.Table("payments")).
		Where("external_payment_id = ?", externalPaymentID).
		Take(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *store) MarkSucceeded(tx *gorm.DB, externalPaymentID string) (bool, error) {
	res := tx.Table(s.scope.Table("payments")).
		Where("external_payment_id = ? AND status <> ?", externalPaymentID, model.PaymentStatusSucceeded).
		Update("status", model.PaymentStatusSucceeded)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *store) SaveDecision(tx *gorm.DB, p *model.Payment) error {
	return tx.Table(s.scope.Table("payments")).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"should_convert":    p.ShouldConvert,
			"conversion_amount": p.ConversionAmount,
			"decision_reason":   p.DecisionReason,
		}).Error
}

func (s *store) ListCreatedBetween(tx *gorm.DB, start, end time.Time) ([]model.Payment, error) {
	var payments []model.Payment
	err := tx.Table(s.scope.Table("payments")).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *store) ListByExternalIDs(tx *gorm.DB, externalPaymentIDs []string) ([]model.Payment, error) {
	var payments []model.Payment
	if len(externalPaymentIDs) == 0 {
		return payments, nil
	}
	err := tx.Table(s.scope.Table("payments")).
		Where("external_payment_id IN ?", externalPaymentIDs).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *store) SumConvertedSince(tx *gorm.DB, since time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := tx.Table(s.scope.Table("payments")).
		Select("SUM(conversion_amount)").
		Where("should_convert = ? AND created_at >= ?", true, since).
		Row().Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
