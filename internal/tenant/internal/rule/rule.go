package rule

import (
	"errors"

	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/partition"
)

type IStore interface {
	// GetActive returns nil without error when the tenant has no active rule.
	GetActive(tx *gorm.DB) (*model.TreasuryRule, error)
	// Replace deactivates every rule and inserts r as the active one.
	Replace(tx *gorm.DB, r *model.TreasuryRule) error
}

type store struct {
	scope partition.Scope
}

func New(scope partition.Scope) IStore {
	return &store{scope: scope}
}

func (s *store) GetActive(tx *gorm.DB) (*model.TreasuryRule, error) {
	var r model.TreasuryRule
	err := tx.Table(s.scope.Table("treasury_rules")).
		Where("is_active = ?", true).
		Order("updated_at DESC").
		Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *store) Replace(tx *gorm.DB, r *model.TreasuryRule) error {
	err := tx.Table(s.scope.Table("treasury_rules")).
		Where("is_active = ?", true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": r.UpdatedAt,
		}).Error
	if err != nil {
		return err
	}
	return tx.Table(s.scope.Table("treasury_rules")).Create(r).Error
}
