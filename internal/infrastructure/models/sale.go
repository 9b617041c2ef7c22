package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Sale struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	GatewayPaymentID *string         `gorm:"type:varchar(64);uniqueIndex"`
	CustomerEmail    string          `gorm:"type:varchar(255);not null;index"`
	CustomerName     string          `gorm:"type:varchar(255);not null"`
	CustomerPhone    *string         `gorm:"type:varchar(32)"`
	CustomerCPF      *string         `gorm:"column:customer_cpf;type:varchar(14)"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status           string          `gorm:"type:varchar(20);not null;index"`
	PaymentMethod    *string         `gorm:"type:varchar(50)"`
	PaymentDetails   datatypes.JSON  `gorm:"type:jsonb"`
	PaidAt           *time.Time
	CreatedAt        time.Time `gorm:"index"`
	UpdatedAt        time.Time
}

func (Sale) TableName() string {
	return "sales"
}

// CheckoutAttempt is written by the checkout form and only read here
type CheckoutAttempt struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CustomerEmail string    `gorm:"type:varchar(255);not null;index"`
	CustomerPhone *string   `gorm:"type:varchar(32)"`
	CustomerCPF   *string   `gorm:"column:customer_cpf;type:varchar(14)"`
	CreatedAt     time.Time `gorm:"index"`
}

func (CheckoutAttempt) TableName() string {
	return "checkout_attempts"
}
