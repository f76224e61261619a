package tenant

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

type store struct{}

func New() IStore {
	return &store{}
}

func (s *store) GetByID(tx *gorm.DB, id string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := tx.Where("id = ?", id).First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *store) ListActive(tx *gorm.DB) ([]model.Tenant, error) {
	var tenants []model.Tenant
	err := tx.Where("status = ?", model.TenantStatusActive).Order("id").Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *store) Create(tx *gorm.DB, tenant *model.Tenant) error {
	return tx.Create(tenant).Error
}
