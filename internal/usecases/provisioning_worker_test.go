package usecases_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"checkout.backend/internal/domain/entities"
	domainerrors "checkout.backend/internal/domain/errors"
	"checkout.backend/internal/usecases"
	"checkout.backend/pkg/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"
)

const testCredentialKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type workerFixture struct {
	queue    *MockProvisioningQueueRepository
	sales    *MockSaleRepository
	accounts *MockAccountProvisioner
	mailer   *MockMailer
	sealer   *crypto.Sealer
	worker   *usecases.ProvisioningWorker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	sealer, err := crypto.NewSealer(testCredentialKey)
	require.NoError(t, err)

	f := &workerFixture{
		queue:    new(MockProvisioningQueueRepository),
		sales:    new(MockSaleRepository),
		accounts: new(MockAccountProvisioner),
		mailer:   new(MockMailer),
		sealer:   sealer,
	}
	f.worker = usecases.NewProvisioningWorker(
		f.queue,
		f.sales,
		f.accounts,
		usecases.NewNotificationDispatcher(f.mailer, "https://app.example.com/login"),
		sealer,
		usecases.WorkerConfig{MaxRetries: 5, BatchSize: 10, StaleAfter: time.Minute},
		nil,
	)
	return f
}

func queuedItem(saleID uuid.UUID, stage entities.ProvisioningStage, status entities.ProvisioningStatus) *entities.ProvisioningQueueItem {
	return &entities.ProvisioningQueueItem{ID: uuid.New(), SaleID: saleID, Stage: stage, Status: status}
}

func TestProvisioningWorker_ProcessItem_FullRun(t *testing.T) {
	f := newWorkerFixture(t)
	sale := completeSale(entities.SaleStatusPaid)
	item := queuedItem(sale.ID, entities.StageQueued, entities.ProvisioningStatusPending)

	var generated string
	f.queue.On("Claim", mock.Anything, item, 5, mock.Anything).Return(true, nil).Once()
	f.sales.On("GetByID", mock.Anything, sale.ID).Return(sale, nil).Once()
	f.accounts.On("EnsureUser", mock.Anything, mock.MatchedBy(func(req entities.NewAccount) bool {
		generated = req.Password
		return req.Email == sale.CustomerEmail && req.Metadata["sale_id"] == sale.ID.String()
	})).Return(&entities.AccountUser{ID: "user-1", Email: sale.CustomerEmail}, nil).Once()
	f.queue.On("SaveCredentials", mock.Anything, item.ID, mock.MatchedBy(func(c entities.AccountCredential) bool {
		opened, err := f.sealer.Open(c.PasswordSealed)
		return err == nil && opened == generated && bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(generated)) == nil && c.AccountUserID == "user-1"
	})).Return(nil).Once()
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg entities.EmailMessage) bool {
		return msg.Category == usecases.CategoryWelcome && strings.Contains(msg.PlainText, generated)
	})).Return("msg-1", nil).Once()
	f.queue.On("MarkCompleted", mock.Anything, item.ID, "msg-1").Return(nil).Once()

	res := f.worker.ProcessItem(context.Background(), item)

	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, entities.StageCompleted, res.StageReached)
	assert.Equal(t, entities.ProvisioningStatusCompleted, item.Status)
	assert.False(t, item.PasswordSealed.Valid)
	assert.Len(t, generated, crypto.PasswordLength)
	f.queue.AssertExpectations(t)
	f.accounts.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
}

func TestProvisioningWorker_ProcessItem_LostClaimSkips(t *testing.T) {
	f := newWorkerFixture(t)
	item := queuedItem(uuid.New(), entities.StageQueued, entities.ProvisioningStatusPending)
	f.queue.On("Claim", mock.Anything, item, 5, mock.Anything).Return(false, nil).Once()

	res := f.worker.ProcessItem(context.Background(), item)

	assert.True(t, res.Skipped)
	f.sales.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestProvisioningWorker_ProcessItem_ClaimError(t *testing.T) {
	f := newWorkerFixture(t)
	item := queuedItem(uuid.New(), entities.StageQueued, entities.ProvisioningStatusPending)
	f.queue.On("Claim", mock.Anything, item, 5, mock.Anything).Return(false, errors.New("db down")).Once()

	res := f.worker.ProcessItem(context.Background(), item)

	require.Error(t, res.Err)
	assert.False(t, res.Success)
	assert.False(t, res.Skipped)
}

func TestProvisioningWorker_ProcessItem_AccountFailure(t *testing.T) {
	f := newWorkerFixture(t)
	sale := completeSale(entities.SaleStatusPaid)
	item := queuedItem(sale.ID, entities.StageQueued, entities.ProvisioningStatusPending)

	f.queue.On("Claim", mock.Anything, item, 5, mock.Anything).Return(true, nil).Once()
	f.sales.On("GetByID", mock.Anything, sale.ID).Return(sale, nil).Once()
	f.accounts.On("EnsureUser", mock.Anything, mock.Anything).Return(nil, errors.New("accounts down")).Once()
	f.queue.On("MarkFailed", mock.Anything, item.ID, entities.StageFailedAtUser, mock.AnythingOfType("string")).Return(nil).Once()

	res := f.worker.ProcessItem(context.Background(), item)

	require.Error(t, res.Err)
	assert.Equal(t, entities.StageFailedAtUser, res.StageReached)
	assert.Equal(t, entities.ProvisioningStatusFailed, item.Status)
	assert.Equal(t, 1, item.RetryCount)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestProvisioningWorker_ProcessItem_EmailFailureKeepsAccount(t *testing.T) {
	f := newWorkerFixture(t)
	sale := completeSale(entities.SaleStatusPaid)
	item := queuedItem(sale.ID, entities.StageQueued, entities.ProvisioningStatusPending)

	f.queue.On("Claim", mock.Anything, item, 5, mock.Anything).Return(true, nil).Once()
	f.sales.On("GetByID", mock.Anything, sale.ID).Return(sale, nil).Once()
	f.accounts.On("EnsureUser", mock.Anything, mock.Anything).Return(&entities.AccountUser{ID: "user-1"}, nil).Once()
	f.queue.On("SaveCredentials", mock.Anything, item.ID, mock.Anything).Return(nil).Once()
	f.mailer.On("Send", mock.Anything, mock.Anything).Return("", domainerrors.ErrMailRejected).Once()
	f.queue.On("MarkFailed", mock.Anything, item.ID, entities.StageFailedAtEmail, mock.AnythingOfType("string")).Return(nil).Once()

	res := f.worker.ProcessItem(context.Background(), item)

	require.ErrorIs(t, res.Err, domainerrors.ErrMailRejected)
	assert.Equal(t, entities.StageFailedAtEmail, item.Stage)
	assert.True(t, item.PasswordSealed.Valid)
	assert.Equal(t, sale.CustomerEmail, item.AccountLogin.String)
}

func TestProvisioningWorker_ProcessItem_ResumesAtEmailStage(t *testing.T) {
	f := newWorkerFixture(t)
	sale := completeSale(entities.SaleStatusPaid)
	sealed, err := f.sealer.Seal("Secret-Pass-123")
	require.NoError(t, err)

	item := queuedItem(sale.ID, entities.StageFailedAtEmail, entities.ProvisioningStatusFailed)
	item.RetryCount = 1
	item.AccountLogin = null.StringFrom("login@example.com")
	item.PasswordSealed = null.StringFrom(sealed)

	f.queue.On("Claim", mock.Anything, item, 5, mock.Anything).Return(true, nil).Once()
	f.sales.On("GetByID", mock.Anything, sale.ID).Return(sale, nil).Once()
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg entities.EmailMessage) bool {
		return strings.Contains(msg.PlainText, "Secret-Pass-123") && strings.Contains(msg.PlainText, "login@example.com")
	})).Return("msg-2", nil).Once()
	f.queue.On("MarkCompleted", mock.Anything, item.ID, "msg-2").Return(nil).Once()

	res := f.worker.ProcessItem(context.Background(), item)

	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	f.accounts.AssertNotCalled(t, "EnsureUser", mock.Anything, mock.Anything)
	f.queue.AssertNotCalled(t, "SaveCredentials", mock.Anything, mock.Anything, mock.Anything)
}

func TestProvisioningWorker_ProcessItem_MissingCredentialFallsBackToUserStage(t *testing.T) {
	f := newWorkerFixture(t)
	sale := completeSale(entities.SaleStatusPaid)
	item := queuedItem(sale.ID, entities.StageSendingCredentials, entities.ProvisioningStatusPending)

	f.queue.On("Claim", mock.Anything, item, 5, mock.Anything).Return(true, nil).Once()
	f.sales.On("GetByID", mock.Anything, sale.ID).Return(sale, nil).Once()
	f.queue.On("MarkFailed", mock.Anything, item.ID, entities.StageFailedAtUser, domainerrors.ErrMissingCredential.Error()).Return(nil).Once()

	res := f.worker.ProcessItem(context.Background(), item)

	require.ErrorIs(t, res.Err, domainerrors.ErrMissingCredential)
	assert.Equal(t, entities.StageFailedAtUser, res.StageReached)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestProvisioningWorker_ProcessItem_SaleMissing(t *testing.T) {
	f := newWorkerFixture(t)
	item := queuedItem(uuid.New(), entities.StageQueued, entities.ProvisioningStatusPending)

	f.queue.On("Claim", mock.Anything, item, 5, mock.Anything).Return(true, nil).Once()
	f.sales.On("GetByID", mock.Anything, item.SaleID).Return(nil, domainerrors.ErrNotFound).Once()
	f.queue.On("MarkFailed", mock.Anything, item.ID, entities.StageFailedAtUser, mock.AnythingOfType("string")).Return(nil).Once()

	res := f.worker.ProcessItem(context.Background(), item)
	require.ErrorIs(t, res.Err, domainerrors.ErrNotFound)
}

func TestProvisioningWorker_ProcessItem_SaveCredentialsLostClaim(t *testing.T) {
	f := newWorkerFixture(t)
	sale := completeSale(entities.SaleStatusPaid)
	item := queuedItem(sale.ID, entities.StageQueued, entities.ProvisioningStatusPending)

	f.queue.On("Claim", mock.Anything, item, 5, mock.Anything).Return(true, nil).Once()
	f.sales.On("GetByID", mock.Anything, sale.ID).Return(sale, nil).Once()
	f.accounts.On("EnsureUser", mock.Anything, mock.Anything).Return(&entities.AccountUser{ID: "user-1"}, nil).Once()
	f.queue.On("SaveCredentials", mock.Anything, item.ID, mock.Anything).Return(domainerrors.ErrNotClaimed).Once()

	res := f.worker.ProcessItem(context.Background(), item)

	assert.True(t, res.Skipped)
	f.queue.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProvisioningWorker_DrainQueue(t *testing.T) {
	f := newWorkerFixture(t)
	okSale := completeSale(entities.SaleStatusPaid)
	badSale := completeSale(entities.SaleStatusPaid)
	sealed, err := f.sealer.Seal("pw")
	require.NoError(t, err)

	ok := queuedItem(okSale.ID, entities.StageSendingCredentials, entities.ProvisioningStatusPending)
	ok.PasswordSealed = null.StringFrom(sealed)
	bad := queuedItem(badSale.ID, entities.StageFailedAtEmail, entities.ProvisioningStatusFailed)
	bad.PasswordSealed = null.StringFrom(sealed)
	taken := queuedItem(uuid.New(), entities.StageQueued, entities.ProvisioningStatusPending)

	f.queue.On("ListDrainable", mock.Anything, 5, mock.Anything, mock.Anything, 10).
		Return([]*entities.ProvisioningQueueItem{ok, bad, taken}, nil).Once()
	f.queue.On("Claim", mock.Anything, ok, 5, mock.Anything).Return(true, nil).Once()
	f.queue.On("Claim", mock.Anything, bad, 5, mock.Anything).Return(true, nil).Once()
	f.queue.On("Claim", mock.Anything, taken, 5, mock.Anything).Return(false, nil).Once()
	f.sales.On("GetByID", mock.Anything, okSale.ID).Return(okSale, nil).Once()
	f.sales.On("GetByID", mock.Anything, badSale.ID).Return(badSale, nil).Once()
	f.mailer.On("Send", mock.Anything, mock.Anything).Return("msg-ok", nil).Once()
	f.mailer.On("Send", mock.Anything, mock.Anything).Return("", errors.New("bounce")).Once()
	f.queue.On("MarkCompleted", mock.Anything, ok.ID, "msg-ok").Return(nil).Once()
	f.queue.On("MarkFailed", mock.Anything, bad.ID, entities.StageFailedAtEmail, mock.AnythingOfType("string")).Return(nil).Once()

	summary, err := f.worker.DrainQueue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, &usecases.DrainSummary{Processed: 2, Succeeded: 1, Failed: 1, Skipped: 1}, summary)
	f.queue.AssertExpectations(t)
}

func TestProvisioningWorker_DrainQueue_ListError(t *testing.T) {
	f := newWorkerFixture(t)
	f.queue.On("ListDrainable", mock.Anything, 5, mock.Anything, mock.Anything, 10).Return(nil, errors.New("db down")).Once()

	_, err := f.worker.DrainQueue(context.Background())
	require.Error(t, err)
}

func TestProvisioningWorker_DrainQueue_WalksEveryPage(t *testing.T) {
	f := newWorkerFixture(t)

	page := func(n int) []*entities.ProvisioningQueueItem {
		items := make([]*entities.ProvisioningQueueItem, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, queuedItem(uuid.New(), entities.StageQueued, entities.ProvisioningStatusPending))
		}
		return items
	}
	first, second := page(10), page(3)
	f.queue.On("ListDrainable", mock.Anything, 5, mock.Anything, mock.Anything, 10).Return(first, nil).Once()
	f.queue.On("ListDrainable", mock.Anything, 5, mock.Anything, mock.Anything, 10).Return(second, nil).Once()
	f.queue.On("Claim", mock.Anything, mock.Anything, 5, mock.Anything).Return(false, nil).Times(13)

	summary, err := f.worker.DrainQueue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 13, summary.Skipped)
	f.queue.AssertExpectations(t)
}

func TestProvisioningWorker_DrainQueue_StopsWhenPageMakesNoProgress(t *testing.T) {
	f := newWorkerFixture(t)
	stuck := make([]*entities.ProvisioningQueueItem, 0, 10)
	for i := 0; i < 10; i++ {
		stuck = append(stuck, queuedItem(uuid.New(), entities.StageQueued, entities.ProvisioningStatusPending))
	}
	f.queue.On("ListDrainable", mock.Anything, 5, mock.Anything, mock.Anything, 10).Return(stuck, nil).Twice()
	f.queue.On("Claim", mock.Anything, mock.Anything, 5, mock.Anything).Return(false, errors.New("db down")).Times(10)

	summary, err := f.worker.DrainQueue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 10, summary.Failed)
	f.queue.AssertExpectations(t)
}
