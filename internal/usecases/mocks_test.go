package usecases_test

import (
	"context"
	"net/http"
	"time"

	"checkout.backend/internal/domain/entities"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock SaleRepository
type MockSaleRepository struct {
	mock.Mock
}

func (m *MockSaleRepository) Create(ctx context.Context, sale *entities.Sale) error {
	args := m.Called(ctx, sale)
	return args.Error(0)
}

func (m *MockSaleRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Sale, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Sale), args.Error(1)
}

func (m *MockSaleRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*entities.Sale, error) {
	args := m.Called(ctx, gatewayPaymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Sale), args.Error(1)
}

func (m *MockSaleRepository) ApplyStatus(ctx context.Context, id uuid.UUID, update entities.StatusUpdate) (entities.StatusApplyResult, error) {
	args := m.Called(ctx, id, update)
	return args.Get(0).(entities.StatusApplyResult), args.Error(1)
}

func (m *MockSaleRepository) BackfillContact(ctx context.Context, id uuid.UUID, phone, cpf string) error {
	args := m.Called(ctx, id, phone, cpf)
	return args.Error(0)
}

func (m *MockSaleRepository) ListPaidSince(ctx context.Context, since time.Time) ([]*entities.Sale, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Sale), args.Error(1)
}

// Mock CheckoutAttemptRepository
type MockCheckoutAttemptRepository struct {
	mock.Mock
}

func (m *MockCheckoutAttemptRepository) FindLatestByEmailBetween(ctx context.Context, email string, from, to time.Time) (*entities.CheckoutAttempt, error) {
	args := m.Called(ctx, email, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.CheckoutAttempt), args.Error(1)
}

// Mock WebhookLogRepository
type MockWebhookLogRepository struct {
	mock.Mock
}

func (m *MockWebhookLogRepository) Create(ctx context.Context, entry *entities.WebhookLogEntry) error {
	args := m.Called(ctx, entry)
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockWebhookLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WebhookLogEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WebhookLogEntry), args.Error(1)
}

func (m *MockWebhookLogRepository) MarkProcessed(ctx context.Context, id uuid.UUID, lastError string) error {
	args := m.Called(ctx, id, lastError)
	return args.Error(0)
}

func (m *MockWebhookLogRepository) MarkUnprocessed(ctx context.Context, id uuid.UUID, retryCount int, lastError string) error {
	args := m.Called(ctx, id, retryCount, lastError)
	return args.Error(0)
}

func (m *MockWebhookLogRepository) ListByPaymentID(ctx context.Context, paymentID string) ([]*entities.WebhookLogEntry, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.WebhookLogEntry), args.Error(1)
}

// Mock ProvisioningQueueRepository
type MockProvisioningQueueRepository struct {
	mock.Mock
}

func (m *MockProvisioningQueueRepository) Enqueue(ctx context.Context, saleID uuid.UUID) (entities.EnqueueOutcome, error) {
	args := m.Called(ctx, saleID)
	return args.Get(0).(entities.EnqueueOutcome), args.Error(1)
}

func (m *MockProvisioningQueueRepository) GetBySaleID(ctx context.Context, saleID uuid.UUID) (*entities.ProvisioningQueueItem, error) {
	args := m.Called(ctx, saleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ProvisioningQueueItem), args.Error(1)
}

func (m *MockProvisioningQueueRepository) ListDrainable(ctx context.Context, maxRetries int, staleBefore, updatedBefore time.Time, limit int) ([]*entities.ProvisioningQueueItem, error) {
	args := m.Called(ctx, maxRetries, staleBefore, updatedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ProvisioningQueueItem), args.Error(1)
}

func (m *MockProvisioningQueueRepository) Claim(ctx context.Context, item *entities.ProvisioningQueueItem, maxRetries int, staleBefore time.Time) (bool, error) {
	args := m.Called(ctx, item, maxRetries, staleBefore)
	if args.Bool(0) {
		item.Status = entities.ProvisioningStatusProcessing
		item.Stage = item.Stage.EntryStage()
	}
	return args.Bool(0), args.Error(1)
}

func (m *MockProvisioningQueueRepository) SaveCredentials(ctx context.Context, id uuid.UUID, cred entities.AccountCredential) error {
	args := m.Called(ctx, id, cred)
	return args.Error(0)
}

func (m *MockProvisioningQueueRepository) MarkFailed(ctx context.Context, id uuid.UUID, stage entities.ProvisioningStage, lastError string) error {
	args := m.Called(ctx, id, stage, lastError)
	return args.Error(0)
}

func (m *MockProvisioningQueueRepository) MarkCompleted(ctx context.Context, id uuid.UUID, emailMessageID string) error {
	args := m.Called(ctx, id, emailMessageID)
	return args.Error(0)
}

// Mock PaymentResolver
type MockPaymentResolver struct {
	mock.Mock
}

func (m *MockPaymentResolver) GetPayment(ctx context.Context, paymentID string) (*entities.GatewayPayment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.GatewayPayment), args.Error(1)
}

// Mock AccountProvisioner
type MockAccountProvisioner struct {
	mock.Mock
}

func (m *MockAccountProvisioner) EnsureUser(ctx context.Context, req entities.NewAccount) (*entities.AccountUser, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.AccountUser), args.Error(1)
}

// Mock Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg entities.EmailMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

// Mock SignatureVerifier
type MockSignatureVerifier struct {
	mock.Mock
}

func (m *MockSignatureVerifier) Verify(headers http.Header, dataID string) bool {
	args := m.Called(headers, dataID)
	return args.Bool(0)
}

// Mock SweepLocker
type MockSweepLocker struct {
	mock.Mock
	released int
}

func (m *MockSweepLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	args := m.Called(ctx, name, ttl)
	if !args.Bool(0) {
		return nil, false, args.Error(1)
	}
	return func(context.Context) error {
		m.released++
		return nil
	}, true, args.Error(1)
}
