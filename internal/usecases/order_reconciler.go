package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout.backend/internal/domain/entities"
	domainerrors "checkout.backend/internal/domain/errors"
	"checkout.backend/internal/domain/repositories"
	"checkout.backend/internal/infrastructure/metrics"
	"checkout.backend/pkg/logger"
	"checkout.backend/pkg/retry"
	"go.uber.org/zap"
)

// ReconcileOutcome reports what one reconciliation did to the matching sale
type ReconcileOutcome struct {
	Sale           *entities.Sale
	Found          bool
	Attempts       int
	PreviousStatus entities.SaleStatus
	NewStatus      entities.SaleStatus
	Result         entities.StatusApplyResult
	BecamePaid     bool
	Changed        bool
	Enqueue        entities.EnqueueOutcome
	EnqueueErr     error
}

// AlreadyPaid reports whether the sale was paid before this delivery
func (o *ReconcileOutcome) AlreadyPaid() bool {
	return o.Found && o.PreviousStatus == entities.SaleStatusPaid && o.NewStatus == entities.SaleStatusPaid
}

// OrderReconciler applies a resolved gateway payment to the matching sale
type OrderReconciler struct {
	sales          repositories.SaleRepository
	attempts       repositories.CheckoutAttemptRepository
	queue          *ProvisioningQueue
	lookup         retry.Policy
	enrichmentSkew time.Duration
	metrics        *metrics.PipelineMetrics
}

func NewOrderReconciler(
	sales repositories.SaleRepository,
	attempts repositories.CheckoutAttemptRepository,
	queue *ProvisioningQueue,
	lookup retry.Policy,
	enrichmentSkew time.Duration,
	m *metrics.PipelineMetrics,
) *OrderReconciler {
	return &OrderReconciler{
		sales:          sales,
		attempts:       attempts,
		queue:          queue,
		lookup:         lookup,
		enrichmentSkew: enrichmentSkew,
		metrics:        m,
	}
}

// Reconcile finds the sale for payment, waiting for checkout to attach the
// gateway id when the webhook won the race, then writes the mapped status
// under the rank guard and enqueues provisioning for paid sales.
func (r *OrderReconciler) Reconcile(ctx context.Context, payment *entities.GatewayPayment) (*ReconcileOutcome, error) {
	if payment == nil || payment.ID == "" {
		return nil, domainerrors.ErrInvalidInput
	}

	var sale *entities.Sale
	attempts, err := r.lookup.Do(ctx, func(ctx context.Context, attempt int) (bool, error) {
		found, err := r.sales.GetByGatewayPaymentID(ctx, payment.ID)
		if errors.Is(err, domainerrors.ErrNotFound) {
			logger.Debug(ctx, "Sale not found yet",
				zap.String("payment_id", payment.ID),
				zap.Int("attempt", attempt),
			)
			return false, nil
		}
		if err != nil {
			return false, err
		}
		sale = found
		return true, nil
	})
	if errors.Is(err, retry.ErrExhausted) {
		r.metrics.ObserveLookup("not_found")
		logger.Warn(ctx, "Sale not found after retries",
			zap.String("payment_id", payment.ID),
			zap.Int("attempts", attempts),
		)
		return &ReconcileOutcome{Found: false, Attempts: attempts}, nil
	}
	if err != nil {
		r.metrics.ObserveLookup("error")
		return nil, fmt.Errorf("lookup sale for payment %s: %w", payment.ID, err)
	}
	if attempts > 1 {
		r.metrics.ObserveLookup("found_after_retry")
	} else {
		r.metrics.ObserveLookup("found")
	}

	r.enrich(ctx, sale)

	out := &ReconcileOutcome{
		Sale:           sale,
		Found:          true,
		Attempts:       attempts,
		PreviousStatus: sale.Status,
		NewStatus:      payment.Status.SaleStatus(),
	}

	result, err := r.sales.ApplyStatus(ctx, sale.ID, entities.StatusUpdate{
		Status:         out.NewStatus,
		PaymentMethod:  payment.Method,
		PaymentDetails: payment.Raw,
	})
	if err != nil {
		r.metrics.ObserveStatusWrite(string(out.NewStatus), "error")
		return nil, fmt.Errorf("apply status to sale %s: %w", sale.ID, err)
	}
	r.metrics.ObserveStatusWrite(string(out.NewStatus), string(result))

	out.Result = result
	out.Changed = result == entities.StatusApplyTransitioned
	out.BecamePaid = out.Changed && out.NewStatus == entities.SaleStatusPaid
	if result != entities.StatusApplyStale {
		sale.Status = out.NewStatus
	} else {
		logger.Info(ctx, "Stale payment status ignored",
			zap.String("sale_id", sale.ID.String()),
			zap.String("current", string(out.PreviousStatus)),
			zap.String("incoming", string(out.NewStatus)),
		)
	}

	if out.NewStatus == entities.SaleStatusPaid && result != entities.StatusApplyStale {
		out.Enqueue, out.EnqueueErr = r.queue.Enqueue(ctx, sale.ID, EnqueueSourceWebhook)
		if out.EnqueueErr != nil {
			// the sweep re-enqueues paid sales, so this is not fatal
			logger.Error(ctx, "Failed to enqueue provisioning",
				zap.String("sale_id", sale.ID.String()),
				zap.Error(out.EnqueueErr),
			)
		}
	}
	return out, nil
}

// enrich backfills missing phone and cpf from the checkout log. Best effort.
func (r *OrderReconciler) enrich(ctx context.Context, sale *entities.Sale) {
	if r.attempts == nil || !sale.NeedsContactBackfill() || sale.CustomerEmail == "" {
		return
	}
	from := sale.CreatedAt.Add(-r.enrichmentSkew)
	to := sale.CreatedAt.Add(r.enrichmentSkew)
	attempt, err := r.attempts.FindLatestByEmailBetween(ctx, sale.CustomerEmail, from, to)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrNotFound) {
			logger.Warn(ctx, "Checkout attempt lookup failed", zap.String("sale_id", sale.ID.String()), zap.Error(err))
		}
		return
	}

	phone, cpf := "", ""
	if !sale.CustomerPhone.Valid && attempt.CustomerPhone.Valid {
		phone = attempt.CustomerPhone.String
	}
	if !sale.CustomerCPF.Valid && attempt.CustomerCPF.Valid {
		cpf = attempt.CustomerCPF.String
	}
	if phone == "" && cpf == "" {
		return
	}
	if err := r.sales.BackfillContact(ctx, sale.ID, phone, cpf); err != nil {
		logger.Warn(ctx, "Contact backfill failed", zap.String("sale_id", sale.ID.String()), zap.Error(err))
		return
	}
	if phone != "" {
		sale.CustomerPhone.SetValid(phone)
	}
	if cpf != "" {
		sale.CustomerCPF.SetValid(cpf)
	}
}
