package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout.backend/internal/domain/entities"
	domainerrors "checkout.backend/internal/domain/errors"
	"checkout.backend/internal/domain/repositories"
	"checkout.backend/internal/infrastructure/models"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
)

// statusRankSQL mirrors entities.SaleStatus.Rank so the guard runs inside the UPDATE
var statusRankSQL = fmt.Sprintf(
	"(CASE status WHEN '%s' THEN %d WHEN '%s' THEN %d WHEN '%s' THEN %d WHEN '%s' THEN %d ELSE %d END)",
	entities.SaleStatusRefunded, entities.SaleStatusRefunded.Rank(),
	entities.SaleStatusPaid, entities.SaleStatusPaid.Rank(),
	entities.SaleStatusRefused, entities.SaleStatusRefused.Rank(),
	entities.SaleStatusCancelled, entities.SaleStatusCancelled.Rank(),
	entities.SaleStatusPending.Rank(),
)

// saleRepo implements repositories.SaleRepository
type saleRepo struct {
	db *gorm.DB
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *gorm.DB) repositories.SaleRepository {
	return &saleRepo{db: db}
}

// Create inserts a sale. Checkout owns this in production; it is kept for seeding and tests.
func (r *saleRepo) Create(ctx context.Context, sale *entities.Sale) error {
	now := time.Now().UTC()
	if sale.ID == uuid.Nil {
		sale.ID = uuid.New()
	}
	if sale.Status == "" {
		sale.Status = entities.SaleStatusPending
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.UpdatedAt = now

	m := &models.Sale{
		ID:             sale.ID,
		CustomerEmail:  sale.CustomerEmail,
		CustomerName:   sale.CustomerName,
		CustomerPhone:  sale.CustomerPhone.Ptr(),
		CustomerCPF:    sale.CustomerCPF.Ptr(),
		TotalAmount:    sale.TotalAmount,
		Status:         string(sale.Status),
		PaymentMethod:  sale.PaymentMethod.Ptr(),
		PaymentDetails: sale.PaymentDetails,
		PaidAt:         sale.PaidAt.Ptr(),
		CreatedAt:      sale.CreatedAt,
		UpdatedAt:      sale.UpdatedAt,
	}
	if sale.GatewayPaymentID != "" {
		gid := sale.GatewayPaymentID
		m.GatewayPaymentID = &gid
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// GetByID gets a sale by ID
func (r *saleRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Sale, error) {
	var m models.Sale
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// GetByGatewayPaymentID gets a sale by the gateway payment reference
func (r *saleRepo) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*entities.Sale, error) {
	var m models.Sale
	if err := r.db.WithContext(ctx).Where("gateway_payment_id = ?", gatewayPaymentID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// ApplyStatus writes status, method and snapshot in one conditional UPDATE.
// A move to a different status requires rank(new) >= rank(current); writing the
// current status again only refreshes the snapshot.
func (r *saleRepo) ApplyStatus(ctx context.Context, id uuid.UUID, update entities.StatusUpdate) (entities.StatusApplyResult, error) {
	now := time.Now().UTC()
	fields := map[string]interface{}{
		"payment_details": update.PaymentDetails,
		"updated_at":      now,
	}
	if update.PaymentMethod != "" {
		fields["payment_method"] = update.PaymentMethod
	}

	transition := map[string]interface{}{"status": string(update.Status)}
	for k, v := range fields {
		transition[k] = v
	}
	if update.Status == entities.SaleStatusPaid {
		transition["paid_at"] = now
	}

	result := r.db.WithContext(ctx).Model(&models.Sale{}).
		Where("id = ? AND status <> ? AND "+statusRankSQL+" <= ?", id, string(update.Status), update.Status.Rank()).
		Updates(transition)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected > 0 {
		return entities.StatusApplyTransitioned, nil
	}

	result = r.db.WithContext(ctx).Model(&models.Sale{}).
		Where("id = ? AND status = ?", id, string(update.Status)).
		Updates(fields)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected > 0 {
		return entities.StatusApplyRefreshed, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Sale{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return "", err
	}
	if count == 0 {
		return "", domainerrors.ErrNotFound
	}
	return entities.StatusApplyStale, nil
}

// BackfillContact fills phone and cpf only where the sale still has NULL
func (r *saleRepo) BackfillContact(ctx context.Context, id uuid.UUID, phone, cpf string) error {
	updates := map[string]interface{}{}
	if phone != "" {
		updates["customer_phone"] = gorm.Expr("COALESCE(customer_phone, ?)", phone)
	}
	if cpf != "" {
		updates["customer_cpf"] = gorm.Expr("COALESCE(customer_cpf, ?)", cpf)
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).Model(&models.Sale{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// ListPaidSince lists paid sales created at or after since, oldest first
func (r *saleRepo) ListPaidSince(ctx context.Context, since time.Time) ([]*entities.Sale, error) {
	var ms []models.Sale
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at >= ?", string(entities.SaleStatusPaid), since.UTC()).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}

	sales := make([]*entities.Sale, 0, len(ms))
	for i := range ms {
		sales = append(sales, r.toEntity(&ms[i]))
	}
	return sales, nil
}

func (r *saleRepo) toEntity(m *models.Sale) *entities.Sale {
	sale := &entities.Sale{
		ID:             m.ID,
		CustomerEmail:  m.CustomerEmail,
		CustomerName:   m.CustomerName,
		CustomerPhone:  null.StringFromPtr(m.CustomerPhone),
		CustomerCPF:    null.StringFromPtr(m.CustomerCPF),
		TotalAmount:    m.TotalAmount,
		Status:         entities.SaleStatus(m.Status),
		PaymentMethod:  null.StringFromPtr(m.PaymentMethod),
		PaymentDetails: m.PaymentDetails,
		PaidAt:         null.TimeFromPtr(m.PaidAt),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.GatewayPaymentID != nil {
		sale.GatewayPaymentID = *m.GatewayPaymentID
	}
	return sale
}
