package model

import "time"

// WebhookEvent is the idempotency record for one inbound delivery.
type WebhookEvent struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID     string     `gorm:"column:event_id;type:varchar(255);not null;uniqueIndex:uq_webhook_events_event_provider"`
	Provider    string     `gorm:"column:provider;type:varchar(32);not null;uniqueIndex:uq_webhook_events_event_provider"`
	EventType   string     `gorm:"column:event_type;type:varchar(255);not null"`
	Processed   bool       `gorm:"column:processed;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	ExpiresAt   time.Time  `gorm:"column:expires_at;not null;index"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
