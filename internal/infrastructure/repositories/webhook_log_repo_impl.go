package repositories

import (
	"context"
	"errors"
	"time"

	"checkout.backend/internal/domain/entities"
	domainerrors "checkout.backend/internal/domain/errors"
	"checkout.backend/internal/domain/repositories"
	"checkout.backend/internal/infrastructure/models"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
)

type webhookLogRepo struct {
	db *gorm.DB
}

// NewWebhookLogRepository creates a new webhook log repository
func NewWebhookLogRepository(db *gorm.DB) repositories.WebhookLogRepository {
	return &webhookLogRepo{db: db}
}

// Create appends a delivery to the log
func (r *webhookLogRepo) Create(ctx context.Context, entry *entities.WebhookLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m := &models.WebhookLog{
		ID:             entry.ID,
		Topic:          entry.Topic,
		GatewayEventID: entry.GatewayEventID,
		PaymentID:      entry.PaymentID,
		RawPayload:     entry.RawPayload,
		SignatureValid: entry.SignatureValid,
		Processed:      entry.Processed,
		RetryCount:     entry.RetryCount,
		LastError:      entry.LastError.Ptr(),
		CreatedAt:      entry.CreatedAt,
		ProcessedAt:    entry.ProcessedAt.Ptr(),
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// GetByID gets a log entry by ID
func (r *webhookLogRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookLogEntry, error) {
	var m models.WebhookLog
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// MarkProcessed closes the entry; a non-empty lastError records why it was not applied
func (r *webhookLogRepo) MarkProcessed(ctx context.Context, id uuid.UUID, lastError string) error {
	now := time.Now().UTC()
	return r.update(ctx, id, map[string]interface{}{
		"processed":    true,
		"processed_at": now,
		"last_error":   nullableString(lastError),
	})
}

// MarkUnprocessed leaves the entry open for gateway redelivery
func (r *webhookLogRepo) MarkUnprocessed(ctx context.Context, id uuid.UUID, retryCount int, lastError string) error {
	return r.update(ctx, id, map[string]interface{}{
		"processed":   false,
		"retry_count": retryCount,
		"last_error":  nullableString(lastError),
	})
}

// ListByPaymentID lists every delivery for one gateway payment, oldest first
func (r *webhookLogRepo) ListByPaymentID(ctx context.Context, paymentID string) ([]*entities.WebhookLogEntry, error) {
	var ms []models.WebhookLog
	if err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	entries := make([]*entities.WebhookLogEntry, 0, len(ms))
	for i := range ms {
		entries = append(entries, r.toEntity(&ms[i]))
	}
	return entries, nil
}

func (r *webhookLogRepo) update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.WebhookLog{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *webhookLogRepo) toEntity(m *models.WebhookLog) *entities.WebhookLogEntry {
	return &entities.WebhookLogEntry{
		ID:             m.ID,
		Topic:          m.Topic,
		GatewayEventID: m.GatewayEventID,
		PaymentID:      m.PaymentID,
		RawPayload:     m.RawPayload,
		SignatureValid: m.SignatureValid,
		Processed:      m.Processed,
		RetryCount:     m.RetryCount,
		LastError:      null.StringFromPtr(m.LastError),
		CreatedAt:      m.CreatedAt,
		ProcessedAt:    null.TimeFromPtr(m.ProcessedAt),
	}
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
