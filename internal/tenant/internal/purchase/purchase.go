package purchase

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

func (s *store) InsertIfAbsent(tx *gorm.DB, p *model.BitcoinPurchase) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (id, tenant_id, external_payment_id, idempotency_key, purchase_trigger, fiat_amount, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`, s.scope.Quoted("bitcoin_purchases"))

	res := tx.Exec(query, p.ID, p.TenantID, p.ExternalPaymentID, p.IdempotencyKey, p.Trigger,
		p.FiatAmount, p.Status, p.CreatedAt, p.UpdatedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *store) GetByIdempotencyKey(tx *gorm.DB, key string) (*model.BitcoinPurchase, error) {
	var p model.BitcoinPurchase
	err := tx.Table(s.scope.Table("bitcoin_purchases")).
		Where("idempotency_key = ?", key).
		Take(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *store) GetByExternalPaymentID(tx *gorm.DB, externalPaymentID string) (*model.BitcoinPurchase, error) {
	var p model.BitcoinPurchase
	err := tx.Table(s.scope.Table("bitcoin_purchases")).
		Where("external_payment_id = ?", externalPaymentID).
		Take(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateOutcome writes the exchange result. Terminal rows are never rewritten.
func (s *store) UpdateOutcome(tx *gorm.DB, p *model.BitcoinPurchase) error {
	return tx.Table(s.scope.Table("bitcoin_purchases")).
		Where("id = ? AND status = ?", p.ID, model.PurchaseStatusPending).
		Updates(map[string]interface{}{
			"bitcoin_amount":    p.BitcoinAmount,
			"fiat_amount":       p.FiatAmount,
			"exchange_rate":     p.ExchangeRate,
			"fees":              p.Fees,
			"exchange_order_id": p.ExchangeOrderID,
			"withdrawal_id":     p.WithdrawalID,
			"status":            p.Status,
			"failure_reason":    p.FailureReason,
			"updated_at":        p.UpdatedAt,
		}).Error
}

func (s *store) ListCreatedBetween(tx *gorm.DB, start, end time.Time) ([]model.BitcoinPurchase, error) {
	var purchases []model.BitcoinPurchase
	err := tx.Table(s.scope.Table("bitcoin_purchases")).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at").
		Find(&purchases).Error
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *store) ListByExternalIDs(tx *gorm.DB, externalPaymentIDs []string) ([]model.BitcoinPurchase, error) {
	var purchases []model.BitcoinPurchase
	if len(externalPaymentIDs) == 0 {
		return purchases, nil
	}
	err := tx.Table(s.scope.Table("bitcoin_purchases")).
		Where("external_payment_id IN ?", externalPaymentIDs).
		Find(&purchases).Error
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *store) SumScheduledSince(tx *gorm.DB, since time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := tx.Table(s.scope.Table("bitcoin_purchases")).
		Select("SUM(fiat_amount + fees)").
		Where("purchase_trigger = ? AND status <> ? AND created_at >= ?",
			model.PurchaseTriggerSchedule, model.PurchaseStatusFailed, since).
		Row().Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
