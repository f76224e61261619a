package reconrecord

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/partition"
)

// IStore only appends and reads; records are immutable once written.
type IStore interface {
	Append(tx *gorm.DB, records []model.ReconciliationRecord) error
	ListBySweep(tx *gorm.DB, sweepID string) ([]model.ReconciliationRecord, error)
}

type store struct {
	scope partition.Scope
}

func New(scope partition.Scope) IStore {
	return &store{scope: scope}
}

func (s *store) Append(tx *gorm.DB, records []model.ReconciliationRecord) error {
	if len(records) == 0 {
		return nil
	}
	return tx.Table(s.scope.Table("reconciliation_records")).CreateInBatches(records, 200).Error
}

func (s *store) ListBySweep(tx *gorm.DB, sweepID string) ([]model.ReconciliationRecord, error) {
	var records []model.ReconciliationRecord
	err := tx.Table(s.scope.Table("reconciliation_records")).
		Where("sweep_id = ?", sweepID).
		Order("detected_at").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
