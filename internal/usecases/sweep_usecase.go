package usecases

import (
	"context"
	"fmt"
	"time"

	"checkout.backend/internal/domain/entities"
	"checkout.backend/internal/domain/repositories"
	"checkout.backend/internal/infrastructure/metrics"
	"checkout.backend/pkg/logger"
	"go.uber.org/zap"
)

const sweepLeaseName = "reconcile-sweep"

// SweepConfig bounds the scheduled reconciliation
type SweepConfig struct {
	Lookback time.Duration
	LockTTL  time.Duration
}

// SweepReport is the JSON body returned by the cron endpoint
type SweepReport struct {
	Skipped   bool          `json:"skipped"`
	Scanned   int           `json:"scanned"`
	Enqueued  int           `json:"enqueued"`
	Requeued  int           `json:"requeued"`
	Unchanged int           `json:"unchanged"`
	Errors    int           `json:"errors"`
	Drain     *DrainSummary `json:"drain,omitempty"`
}

// SweepUsecase re-enqueues recent paid sales that never made it into the
// queue (or failed there) and then drains the queue.
type SweepUsecase struct {
	sales   repositories.SaleRepository
	queue   *ProvisioningQueue
	worker  *ProvisioningWorker
	locker  SweepLocker
	cfg     SweepConfig
	metrics *metrics.PipelineMetrics
	now     func() time.Time
}

func NewSweepUsecase(
	sales repositories.SaleRepository,
	queue *ProvisioningQueue,
	worker *ProvisioningWorker,
	locker SweepLocker,
	cfg SweepConfig,
	m *metrics.PipelineMetrics,
) *SweepUsecase {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 48 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 4 * time.Minute
	}
	return &SweepUsecase{
		sales:   sales,
		queue:   queue,
		worker:  worker,
		locker:  locker,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
	}
}

// Sweep runs one reconciliation pass. Without the lease it reports Skipped.
func (u *SweepUsecase) Sweep(ctx context.Context) (report *SweepReport, err error) {
	started := u.now()
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case report != nil && report.Skipped:
			outcome = "skipped"
		}
		u.metrics.ObserveSweep(outcome, u.now().Sub(started))
	}()

	if u.locker != nil {
		release, acquired, lockErr := u.locker.Acquire(ctx, sweepLeaseName, u.cfg.LockTTL)
		switch {
		case lockErr != nil:
			// queue invariants are enforced by the database, so run unlocked
			logger.Warn(ctx, "Sweep lease unavailable, running without it", zap.Error(lockErr))
		case !acquired:
			logger.Info(ctx, "Sweep already running elsewhere")
			return &SweepReport{Skipped: true}, nil
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn(ctx, "Failed to release sweep lease", zap.Error(err))
				}
			}()
		}
	}

	since := started.UTC().Add(-u.cfg.Lookback)
	sales, err := u.sales.ListPaidSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list paid sales: %w", err)
	}

	report = &SweepReport{Scanned: len(sales)}
	for _, sale := range sales {
		outcome, err := u.queue.Enqueue(ctx, sale.ID, EnqueueSourceSweep)
		if err != nil {
			report.Errors++
			logger.Error(ctx, "Sweep enqueue failed", zap.String("sale_id", sale.ID.String()), zap.Error(err))
			continue
		}
		switch outcome {
		case entities.EnqueueCreated:
			report.Enqueued++
		case entities.EnqueueRequeued:
			report.Requeued++
		default:
			report.Unchanged++
		}
	}

	drain, err := u.worker.DrainQueue(ctx)
	report.Drain = drain
	if err != nil {
		return report, fmt.Errorf("drain queue: %w", err)
	}

	logger.Info(ctx, "Reconciliation sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("enqueued", report.Enqueued),
		zap.Int("requeued", report.Requeued),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

// Drain runs only the provisioning drain
func (u *SweepUsecase) Drain(ctx context.Context) (*DrainSummary, error) {
	return u.worker.DrainQueue(ctx)
}
