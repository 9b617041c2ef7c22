package repositories

import (
	"context"

	"checkout.backend/internal/domain/entities"
	"github.com/google/uuid"
)

// WebhookLogRepository is the append-only store of inbound gateway deliveries
type WebhookLogRepository interface {
	Create(ctx context.Context, entry *entities.WebhookLogEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookLogEntry, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, lastError string) error
	MarkUnprocessed(ctx context.Context, id uuid.UUID, retryCount int, lastError string) error
	ListByPaymentID(ctx context.Context, paymentID string) ([]*entities.WebhookLogEntry, error)
}
