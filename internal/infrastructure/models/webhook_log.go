package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// WebhookLog is one row per inbound gateway delivery, never deduplicated
type WebhookLog struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Topic          string         `gorm:"type:text;not null"`
	GatewayEventID string         `gorm:"type:text"`
	PaymentID      string         `gorm:"type:text;index"`
	RawPayload     datatypes.JSON `gorm:"type:jsonb;not null"`
	SignatureValid bool           `gorm:"not null"`
	Processed      bool           `gorm:"not null"`
	RetryCount     int            `gorm:"not null;default:0"`
	LastError      *string        `gorm:"type:text"`
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}

func (WebhookLog) TableName() string {
	return "webhook_logs"
}
