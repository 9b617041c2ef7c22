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
	"gorm.io/gorm/clause"
)

type provisioningQueueRepo struct {
	db *gorm.DB
}

// NewProvisioningQueueRepository creates a new provisioning queue repository
func NewProvisioningQueueRepository(db *gorm.DB) repositories.ProvisioningQueueRepository {
	return &provisioningQueueRepo{db: db}
}

// Enqueue inserts a pending item for saleID, or requeues it when the existing item failed.
// Pending, processing and completed items are left alone.
func (r *provisioningQueueRepo) Enqueue(ctx context.Context, saleID uuid.UUID) (entities.EnqueueOutcome, error) {
	now := time.Now().UTC()
	m := &models.ProvisioningJob{
		ID:        uuid.New(),
		SaleID:    saleID,
		Status:    string(entities.ProvisioningStatusPending),
		Stage:     string(entities.StageQueued),
		CreatedAt: now,
		UpdatedAt: now,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sale_id"}}, DoNothing: true}).
		Create(m)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected > 0 {
		return entities.EnqueueCreated, nil
	}

	result = r.db.WithContext(ctx).Model(&models.ProvisioningJob{}).
		Where("sale_id = ? AND status = ?", saleID, string(entities.ProvisioningStatusFailed)).
		Updates(map[string]interface{}{
			"status":      string(entities.ProvisioningStatusPending),
			"retry_count": 0,
			"last_error":  nil,
			"updated_at":  now,
		})
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected > 0 {
		return entities.EnqueueRequeued, nil
	}
	return entities.EnqueueUnchanged, nil
}

// GetBySaleID gets the queue item of a sale
func (r *provisioningQueueRepo) GetBySaleID(ctx context.Context, saleID uuid.UUID) (*entities.ProvisioningQueueItem, error) {
	var m models.ProvisioningJob
	if err := r.db.WithContext(ctx).Where("sale_id = ?", saleID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// ListDrainable lists pending items and failed items under the retry ceiling
// last touched before updatedBefore, plus processing items abandoned before
// staleBefore, oldest first
func (r *provisioningQueueRepo) ListDrainable(ctx context.Context, maxRetries int, staleBefore, updatedBefore time.Time, limit int) ([]*entities.ProvisioningQueueItem, error) {
	var ms []models.ProvisioningJob
	query := r.db.WithContext(ctx).
		Where("retry_count < ?", maxRetries).
		Where("((status IN ? AND updated_at < ?) OR (status = ? AND updated_at < ?))",
			[]string{string(entities.ProvisioningStatusPending), string(entities.ProvisioningStatusFailed)}, updatedBefore.UTC(),
			string(entities.ProvisioningStatusProcessing), staleBefore.UTC()).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&ms).Error; err != nil {
		return nil, err
	}

	items := make([]*entities.ProvisioningQueueItem, 0, len(ms))
	for i := range ms {
		items = append(items, r.toEntity(&ms[i]))
	}
	return items, nil
}

// Claim takes item for one processing run
func (r *provisioningQueueRepo) Claim(ctx context.Context, item *entities.ProvisioningQueueItem, maxRetries int, staleBefore time.Time) (bool, error) {
	now := time.Now().UTC()
	entry := item.Stage.EntryStage()
	result := r.db.WithContext(ctx).Model(&models.ProvisioningJob{}).
		Where("id = ? AND stage = ? AND retry_count = ? AND retry_count < ?", item.ID, string(item.Stage), item.RetryCount, maxRetries).
		Where("(status IN ? OR (status = ? AND updated_at < ?))",
			[]string{string(entities.ProvisioningStatusPending), string(entities.ProvisioningStatusFailed)},
			string(entities.ProvisioningStatusProcessing), staleBefore.UTC()).
		Updates(map[string]interface{}{
			"status":     string(entities.ProvisioningStatusProcessing),
			"stage":      string(entry),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	item.Status = entities.ProvisioningStatusProcessing
	item.Stage = entry
	item.UpdatedAt = now
	return true, nil
}

// SaveCredentials records the created account and advances to sending_credentials
func (r *provisioningQueueRepo) SaveCredentials(ctx context.Context, id uuid.UUID, cred entities.AccountCredential) error {
	return r.updateClaimed(ctx, id, map[string]interface{}{
		"account_user_id": cred.AccountUserID,
		"account_login":   cred.Login,
		"password_sealed": cred.PasswordSealed,
		"password_hash":   cred.PasswordHash,
		"stage":           string(entities.StageSendingCredentials),
		"last_error":      nil,
	})
}

// MarkFailed releases the item as failed at stage and counts the attempt
func (r *provisioningQueueRepo) MarkFailed(ctx context.Context, id uuid.UUID, stage entities.ProvisioningStage, lastError string) error {
	return r.updateClaimed(ctx, id, map[string]interface{}{
		"status":      string(entities.ProvisioningStatusFailed),
		"stage":       string(stage),
		"retry_count": gorm.Expr("retry_count + 1"),
		"last_error":  nullableString(lastError),
	})
}

// MarkCompleted finishes the item and drops the sealed password
func (r *provisioningQueueRepo) MarkCompleted(ctx context.Context, id uuid.UUID, emailMessageID string) error {
	now := time.Now().UTC()
	return r.updateClaimed(ctx, id, map[string]interface{}{
		"status":           string(entities.ProvisioningStatusCompleted),
		"stage":            string(entities.StageCompleted),
		"email_message_id": nullableString(emailMessageID),
		"password_sealed":  nil,
		"last_error":       nil,
		"completed_at":     now,
	})
}

func (r *provisioningQueueRepo) updateClaimed(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.ProvisioningJob{}).
		Where("id = ? AND status = ?", id, string(entities.ProvisioningStatusProcessing)).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotClaimed
	}
	return nil
}

func (r *provisioningQueueRepo) toEntity(m *models.ProvisioningJob) *entities.ProvisioningQueueItem {
	return &entities.ProvisioningQueueItem{
		ID:             m.ID,
		SaleID:         m.SaleID,
		Status:         entities.ProvisioningStatus(m.Status),
		Stage:          entities.ProvisioningStage(m.Stage),
		RetryCount:     m.RetryCount,
		LastError:      null.StringFromPtr(m.LastError),
		AccountUserID:  null.StringFromPtr(m.AccountUserID),
		AccountLogin:   null.StringFromPtr(m.AccountLogin),
		PasswordSealed: null.StringFromPtr(m.PasswordSealed),
		PasswordHash:   null.StringFromPtr(m.PasswordHash),
		EmailMessageID: null.StringFromPtr(m.EmailMessageID),
		CompletedAt:    null.TimeFromPtr(m.CompletedAt),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
