package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"
)

// WebhookLogEntry is the append-only record of one inbound gateway delivery
type WebhookLogEntry struct {
	ID             uuid.UUID      `json:"id"`
	Topic          string         `json:"topic"`
	GatewayEventID string         `json:"gatewayEventId"`
	PaymentID      string         `json:"paymentId,omitempty"`
	RawPayload     datatypes.JSON `json:"rawPayload"`
	SignatureValid bool           `json:"signatureValid"`
	Processed      bool           `json:"processed"`
	RetryCount     int            `json:"retryCount"`
	LastError      null.String    `json:"lastError,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	ProcessedAt    null.Time      `json:"processedAt,omitempty"`
}
