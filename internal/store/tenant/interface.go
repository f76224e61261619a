package tenant

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

type IStore interface {
	GetByID(tx *gorm.DB, id string) (*model.Tenant, error)
	ListActive(tx *gorm.DB) ([]model.Tenant, error)
	Create(tx *gorm.DB, tenant *model.Tenant) error
}
