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
	"checkout.backend/pkg/crypto"
	"checkout.backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"
)

// WorkerConfig bounds one drain
type WorkerConfig struct {
	MaxRetries int
	BatchSize  int
	StaleAfter time.Duration
}

// ProcessResult is the outcome of one ProcessItem call
type ProcessResult struct {
	Success      bool
	Skipped      bool
	StageReached entities.ProvisioningStage
	Err          error
}

// DrainSummary aggregates one DrainQueue pass
type DrainSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ProvisioningWorker walks queue items through
// creating_user -> sending_credentials -> completed
type ProvisioningWorker struct {
	queue      repositories.ProvisioningQueueRepository
	sales      repositories.SaleRepository
	accounts   AccountProvisioner
	dispatcher *NotificationDispatcher
	sealer     CredentialSealer
	cfg        WorkerConfig
	metrics    *metrics.PipelineMetrics

	generatePassword func() (string, error)
	hashPassword     func(string) (string, error)
	now              func() time.Time
}

func NewProvisioningWorker(
	queue repositories.ProvisioningQueueRepository,
	sales repositories.SaleRepository,
	accounts AccountProvisioner,
	dispatcher *NotificationDispatcher,
	sealer CredentialSealer,
	cfg WorkerConfig,
	m *metrics.PipelineMetrics,
) *ProvisioningWorker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	return &ProvisioningWorker{
		queue:            queue,
		sales:            sales,
		accounts:         accounts,
		dispatcher:       dispatcher,
		sealer:           sealer,
		cfg:              cfg,
		metrics:          m,
		generatePassword: crypto.GeneratePassword,
		hashPassword:     crypto.HashPassword,
		now:              time.Now,
	}
}

func (w *ProvisioningWorker) staleBefore() time.Time {
	return w.now().UTC().Add(-w.cfg.StaleAfter)
}

// DrainQueue processes every item that was drainable when it started, page by
// page. Items fail independently; an item touched during this pass is not
// listed again, so a failing item is tried at most once per call.
func (w *ProvisioningWorker) DrainQueue(ctx context.Context) (*DrainSummary, error) {
	startedAt := w.now().UTC()
	seen := make(map[uuid.UUID]struct{})
	summary := &DrainSummary{}

	for {
		items, err := w.queue.ListDrainable(ctx, w.cfg.MaxRetries, w.staleBefore(), startedAt, w.cfg.BatchSize)
		if err != nil {
			return summary, fmt.Errorf("list drainable items: %w", err)
		}

		fresh := 0
		for _, item := range items {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			fresh++

			res := w.ProcessItem(ctx, item)
			if res.Skipped {
				summary.Skipped++
				continue
			}
			summary.Processed++
			if res.Success {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
		}
		// a short page is the last one; a page of already-seen items means the
		// remaining rows could not be moved (e.g. claim errors)
		if len(items) < w.cfg.BatchSize || fresh == 0 {
			break
		}
	}

	if summary.Processed > 0 || summary.Skipped > 0 {
		logger.Info(ctx, "Provisioning queue drained",
			zap.Int("processed", summary.Processed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped),
		)
	}
	return summary, nil
}

// ProcessItem claims item and runs it from its entry stage to completion or
// to the failure branch of the stage that broke.
func (w *ProvisioningWorker) ProcessItem(ctx context.Context, item *entities.ProvisioningQueueItem) ProcessResult {
	claimed, err := w.queue.Claim(ctx, item, w.cfg.MaxRetries, w.staleBefore())
	if err != nil {
		return ProcessResult{StageReached: item.Stage, Err: fmt.Errorf("claim item %s: %w", item.ID, err)}
	}
	if !claimed {
		return ProcessResult{Skipped: true, StageReached: item.Stage}
	}

	sale, err := w.sales.GetByID(ctx, item.SaleID)
	if err != nil {
		return w.fail(ctx, item, item.Stage.FailureStage(), fmt.Errorf("load sale: %w", err))
	}

	var password string
	if item.Stage == entities.StageCreatingUser {
		password, err = w.createUser(ctx, item, sale)
		if err != nil {
			if errors.Is(err, domainerrors.ErrNotClaimed) {
				return ProcessResult{Skipped: true, StageReached: item.Stage, Err: err}
			}
			return w.fail(ctx, item, entities.StageFailedAtUser, err)
		}
		w.metrics.ObserveStage(string(entities.StageCreatingUser), "success")
		item.Stage = entities.StageSendingCredentials
	}

	if password == "" {
		if !item.PasswordSealed.Valid || item.PasswordSealed.String == "" {
			// nothing to send; the user stage regenerates and resets the password
			return w.fail(ctx, item, entities.StageFailedAtUser, domainerrors.ErrMissingCredential)
		}
		password, err = w.sealer.Open(item.PasswordSealed.String)
		if err != nil {
			return w.fail(ctx, item, entities.StageFailedAtUser, fmt.Errorf("%w: %v", domainerrors.ErrMissingCredential, err))
		}
	}

	login := sale.CustomerEmail
	if item.AccountLogin.Valid && item.AccountLogin.String != "" {
		login = item.AccountLogin.String
	}
	messageID, err := w.dispatcher.SendWelcome(ctx, sale, login, password)
	if err != nil {
		return w.fail(ctx, item, entities.StageFailedAtEmail, fmt.Errorf("send welcome email: %w", err))
	}
	w.metrics.ObserveStage(string(entities.StageSendingCredentials), "success")

	if err := w.queue.MarkCompleted(ctx, item.ID, messageID); err != nil {
		logger.Error(ctx, "Failed to mark provisioning completed",
			zap.String("item_id", item.ID.String()),
			zap.Error(err),
		)
		return ProcessResult{StageReached: entities.StageSendingCredentials, Err: err}
	}
	item.Status = entities.ProvisioningStatusCompleted
	item.Stage = entities.StageCompleted
	item.EmailMessageID.SetValid(messageID)
	item.PasswordSealed = null.String{}
	return ProcessResult{Success: true, StageReached: entities.StageCompleted}
}

// createUser generates the password, makes sure the login exists and stores
// the sealed credential. It returns the plaintext for the email stage.
func (w *ProvisioningWorker) createUser(ctx context.Context, item *entities.ProvisioningQueueItem, sale *entities.Sale) (string, error) {
	password, err := w.generatePassword()
	if err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	hash, err := w.hashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	sealed, err := w.sealer.Seal(password)
	if err != nil {
		return "", fmt.Errorf("seal password: %w", err)
	}

	user, err := w.accounts.EnsureUser(ctx, entities.NewAccount{
		Email:    sale.CustomerEmail,
		Password: password,
		Metadata: map[string]string{
			"name":    sale.CustomerName,
			"sale_id": sale.ID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("ensure account: %w", err)
	}
	if user.AlreadyExisted {
		logger.Info(ctx, "Account already existed, password reset",
			zap.String("sale_id", sale.ID.String()),
			zap.String("account_user_id", user.ID),
		)
	}

	login := user.Email
	if login == "" {
		login = sale.CustomerEmail
	}
	cred := entities.AccountCredential{
		AccountUserID:  user.ID,
		Login:          login,
		PasswordSealed: sealed,
		PasswordHash:   hash,
	}
	if err := w.queue.SaveCredentials(ctx, item.ID, cred); err != nil {
		return "", fmt.Errorf("save credentials: %w", err)
	}
	item.AccountUserID.SetValid(user.ID)
	item.AccountLogin.SetValid(login)
	item.PasswordSealed.SetValid(sealed)
	item.PasswordHash.SetValid(hash)
	return password, nil
}

// fail releases item at the failure stage. Recording errors are logged; the
// stale window reclaims an item whose release did not stick.
func (w *ProvisioningWorker) fail(ctx context.Context, item *entities.ProvisioningQueueItem, stage entities.ProvisioningStage, cause error) ProcessResult {
	w.metrics.ObserveStage(string(stage), "failure")
	logger.Warn(ctx, "Provisioning stage failed",
		zap.String("item_id", item.ID.String()),
		zap.String("sale_id", item.SaleID.String()),
		zap.String("stage", string(stage)),
		zap.Int("retry_count", item.RetryCount+1),
		zap.Error(cause),
	)
	if err := w.queue.MarkFailed(ctx, item.ID, stage, cause.Error()); err != nil {
		logger.Error(ctx, "Failed to record provisioning failure",
			zap.String("item_id", item.ID.String()),
			zap.Error(err),
		)
	} else {
		item.Status = entities.ProvisioningStatusFailed
		item.Stage = stage
		item.RetryCount++
		item.LastError.SetValid(cause.Error())
	}
	return ProcessResult{StageReached: stage, Err: cause}
}
