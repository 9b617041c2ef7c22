package repositories

import (
	"context"
	"time"

	"checkout.backend/internal/domain/entities"
	"github.com/google/uuid"
)

// SaleRepository defines sale data operations
type SaleRepository interface {
	Create(ctx context.Context, sale *entities.Sale) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Sale, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*entities.Sale, error)
	// ApplyStatus writes a resolved status under the monotonic rank guard
	ApplyStatus(ctx context.Context, id uuid.UUID, update entities.StatusUpdate) (entities.StatusApplyResult, error)
	// BackfillContact sets phone and cpf only where they are still null
	BackfillContact(ctx context.Context, id uuid.UUID, phone, cpf string) error
	ListPaidSince(ctx context.Context, since time.Time) ([]*entities.Sale, error)
}

// CheckoutAttemptRepository reads the checkout form log
type CheckoutAttemptRepository interface {
	FindLatestByEmailBetween(ctx context.Context, email string, from, to time.Time) (*entities.CheckoutAttempt, error)
}
