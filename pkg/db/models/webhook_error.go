package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookErrorLog captures a webhook event that failed during processing.
// The provider has already been acked; rows here feed the manual
// reconciliation path instead of provider retries.
type WebhookErrorLog struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider  string          `gorm:"column:provider;not null"`
	EventType string          `gorm:"column:event_type;not null"`
	Payload   json.RawMessage `gorm:"column:payload;type:jsonb"`
	Error     string          `gorm:"column:error;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName matches the persisted layout.
func (WebhookErrorLog) TableName() string { return "webhook_error_log" }
