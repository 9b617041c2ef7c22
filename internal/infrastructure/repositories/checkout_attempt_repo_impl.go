package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"checkout.backend/internal/domain/entities"
	domainerrors "checkout.backend/internal/domain/errors"
	"checkout.backend/internal/domain/repositories"
	"checkout.backend/internal/infrastructure/models"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
)

type checkoutAttemptRepo struct {
	db *gorm.DB
}

// NewCheckoutAttemptRepository creates a read-only checkout attempt repository
func NewCheckoutAttemptRepository(db *gorm.DB) repositories.CheckoutAttemptRepository {
	return &checkoutAttemptRepo{db: db}
}

// FindLatestByEmailBetween returns the newest attempt for email with created_at in [from, to]
func (r *checkoutAttemptRepo) FindLatestByEmailBetween(ctx context.Context, email string, from, to time.Time) (*entities.CheckoutAttempt, error) {
	var m models.CheckoutAttempt
	err := r.db.WithContext(ctx).
		Where("LOWER(customer_email) = ? AND created_at BETWEEN ? AND ?", strings.ToLower(strings.TrimSpace(email)), from.UTC(), to.UTC()).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return &entities.CheckoutAttempt{
		ID:            m.ID,
		CustomerEmail: m.CustomerEmail,
		CustomerPhone: null.StringFromPtr(m.CustomerPhone),
		CustomerCPF:   null.StringFromPtr(m.CustomerCPF),
		CreatedAt:     m.CreatedAt,
	}, nil
}
