package webhookevent

import (
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

type IStore interface {
	// Reserve inserts the event if absent and reports whether this call created it.
	Reserve(tx *gorm.DB, event *model.WebhookEvent) (bool, error)
	Get(tx *gorm.DB, eventID, provider string) (*model.WebhookEvent, error)
	// MarkProcessed flips processed to true once; it never flips it back.
	MarkProcessed(tx *gorm.DB, eventID, provider string, at time.Time) (bool, error)
	DeleteExpired(tx *gorm.DB, now time.Time) (int64, error)
}
