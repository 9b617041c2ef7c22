package jobs

import (
	"context"
	"sync"
	"time"

	"checkout.backend/internal/usecases"
	"checkout.backend/pkg/logger"
	"go.uber.org/zap"
)

type sweeper interface {
	Sweep(ctx context.Context) (*usecases.SweepReport, error)
}

// ReconcileSweepJob runs the reconciliation sweep on a ticker, for deployments
// without an external cron calling the HTTP trigger
type ReconcileSweepJob struct {
	sweeper  sweeper
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewReconcileSweepJob(s sweeper, interval time.Duration) *ReconcileSweepJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconcileSweepJob{
		sweeper:  s,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (j *ReconcileSweepJob) Start(ctx context.Context) {
	logger.Info(ctx, "Starting reconciliation sweep job", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Reconciliation sweep job stopped (context cancelled)")
			return
		case <-j.stop:
			logger.Info(ctx, "Reconciliation sweep job stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *ReconcileSweepJob) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

func (j *ReconcileSweepJob) runOnce(ctx context.Context) {
	report, err := j.sweeper.Sweep(ctx)
	if err != nil {
		logger.Error(ctx, "Reconciliation sweep failed", zap.Error(err))
		return
	}
	if report.Skipped {
		logger.Debug(ctx, "Reconciliation sweep skipped, lease held elsewhere")
	}
}
