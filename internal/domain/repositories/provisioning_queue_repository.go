package repositories

import (
	"context"
	"time"

	"checkout.backend/internal/domain/entities"
	"github.com/google/uuid"
)

// ProvisioningQueueRepository is the relational provisioning queue.
// Every mutation is a conditional write; callers never read-modify-write.
type ProvisioningQueueRepository interface {
	Enqueue(ctx context.Context, saleID uuid.UUID) (entities.EnqueueOutcome, error)
	GetBySaleID(ctx context.Context, saleID uuid.UUID) (*entities.ProvisioningQueueItem, error)
	ListDrainable(ctx context.Context, maxRetries int, staleBefore, updatedBefore time.Time, limit int) ([]*entities.ProvisioningQueueItem, error)
	// Claim moves item to processing at its entry stage. The observed stage and
	// retry count act as the version, so a lost race reports false.
	Claim(ctx context.Context, item *entities.ProvisioningQueueItem, maxRetries int, staleBefore time.Time) (bool, error)
	SaveCredentials(ctx context.Context, id uuid.UUID, cred entities.AccountCredential) error
	MarkFailed(ctx context.Context, id uuid.UUID, stage entities.ProvisioningStage, lastError string) error
	MarkCompleted(ctx context.Context, id uuid.UUID, emailMessageID string) error
}
