package usecases

import (
	"context"
	"fmt"

	"checkout.backend/internal/domain/entities"
	"checkout.backend/internal/domain/repositories"
	"checkout.backend/internal/infrastructure/metrics"
	"checkout.backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EnqueueSourceWebhook = "webhook"
	EnqueueSourceSweep   = "sweep"
)

// ProvisioningQueue is the idempotent entry point into provisioning
type ProvisioningQueue struct {
	repo    repositories.ProvisioningQueueRepository
	metrics *metrics.PipelineMetrics
}

func NewProvisioningQueue(repo repositories.ProvisioningQueueRepository, m *metrics.PipelineMetrics) *ProvisioningQueue {
	return &ProvisioningQueue{repo: repo, metrics: m}
}

// Enqueue inserts a queue item for saleID, or requeues it when it failed.
// Pending, processing and completed items are left alone.
func (q *ProvisioningQueue) Enqueue(ctx context.Context, saleID uuid.UUID, source string) (entities.EnqueueOutcome, error) {
	outcome, err := q.repo.Enqueue(ctx, saleID)
	if err != nil {
		q.metrics.ObserveEnqueue(source, "error")
		return "", fmt.Errorf("enqueue sale %s: %w", saleID, err)
	}
	q.metrics.ObserveEnqueue(source, string(outcome))
	if outcome != entities.EnqueueUnchanged {
		logger.Info(ctx, "Provisioning item queued",
			zap.String("sale_id", saleID.String()),
			zap.String("outcome", string(outcome)),
			zap.String("source", source),
		)
	}
	return outcome, nil
}
