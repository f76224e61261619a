package accumulator

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/partition"
)

type IStore interface {
	// Add increments the balance and returns the new total. The row stays
	// locked until tx ends, so concurrent payments serialise here.
	Add(tx *gorm.DB, tenantID string, amount decimal.Decimal) (decimal.Decimal, error)
	// Release subtracts amount only if the balance still covers it.
	Release(tx *gorm.DB, tenantID string, amount decimal.Decimal) (bool, error)
	Get(tx *gorm.DB, tenantID string) (decimal.Decimal, error)
}

type store struct {
	scope partition.Scope
}

func New(scope partition.Scope) IStore {
	return &store{scope: scope}
}

func (s *store) Add(tx *gorm.DB, tenantID string, amount decimal.Decimal) (decimal.Decimal, error) {
	table := s.scope.Quoted("threshold_accumulators")
	query := fmt.Sprintf(`INSERT INTO %s AS acc (tenant_id, balance, updated_at)
VALUES (?, ?, now())
ON CONFLICT (tenant_id) DO UPDATE SET balance = acc.balance + EXCLUDED.balance, updated_at = now()
RETURNING balance`, table)

	var balance decimal.Decimal
	if err := tx.Raw(query, tenantID, amount).Row().Scan(&balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (s *store) Release(tx *gorm.DB, tenantID string, amount decimal.Decimal) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET balance = balance - ?, updated_at = now()
WHERE tenant_id = ? AND balance >= ?`, s.scope.Quoted("threshold_accumulators"))

	res := tx.Exec(query, amount, tenantID, amount)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *store) Get(tx *gorm.DB, tenantID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.Table(s.scope.Table("threshold_accumulators")).
		Select("balance").
		Where("tenant_id = ?", tenantID).
		Row().Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}
