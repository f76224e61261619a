package webhookevent

import (
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
)

type store struct{}

func New() IStore {
	return &store{}
}

const reserveSQL = `INSERT INTO webhook_events (event_id, provider, event_type, processed, created_at, expires_at)
VALUES (?, ?, ?, false, ?, ?)
ON CONFLICT (event_id, provider) DO NOTHING`

func (s *store) Reserve(tx *gorm.DB, event *model.WebhookEvent) (bool, error) {
	res := tx.Exec(reserveSQL, event.EventID, event.Provider, event.EventType, event.CreatedAt, event.ExpiresAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *store) Get(tx *gorm.DB, eventID, provider string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent
	err := tx.Where("event_id = ? AND provider = ?", eventID, provider).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *store) MarkProcessed(tx *gorm.DB, eventID, provider string, at time.Time) (bool, error) {
	res := tx.Model(&model.WebhookEvent{}).
		Where("event_id = ? AND provider = ? AND processed = ?", eventID, provider, false).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *store) DeleteExpired(tx *gorm.DB, now time.Time) (int64, error) {
	res := tx.Where("expires_at < ?", now).Delete(&model.WebhookEvent{})
	return res.RowsAffected, res.Error
}
