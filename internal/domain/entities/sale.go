package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"gorm.io/datatypes"
)

// SaleStatus represents the internal payment lifecycle of a sale
type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusPaid      SaleStatus = "paid"
	SaleStatusRefused   SaleStatus = "refused"
	SaleStatusCancelled SaleStatus = "cancelled"
	SaleStatusRefunded  SaleStatus = "refunded"
)

// Rank orders statuses so a stale delivery can never move a sale backwards.
// refused and cancelled share a rank: a declined payment may later be cancelled.
func (s SaleStatus) Rank() int {
	switch s {
	case SaleStatusRefused, SaleStatusCancelled:
		return 1
	case SaleStatusPaid:
		return 2
	case SaleStatusRefunded:
		return 3
	default:
		return 0
	}
}

// CanTransitionTo reports whether a sale in status s may accept next
func (s SaleStatus) CanTransitionTo(next SaleStatus) bool {
	return next.Rank() >= s.Rank()
}

// Sale represents a checkout order and its payment state
type Sale struct {
	ID               uuid.UUID       `json:"id"`
	GatewayPaymentID string          `json:"gatewayPaymentId"`
	CustomerEmail    string          `json:"customerEmail"`
	CustomerName     string          `json:"customerName"`
	CustomerPhone    null.String     `json:"customerPhone,omitempty"`
	CustomerCPF      null.String     `json:"customerCpf,omitempty"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	Status           SaleStatus      `json:"status"`
	PaymentMethod    null.String     `json:"paymentMethod,omitempty"`
	PaymentDetails   datatypes.JSON  `json:"paymentDetails,omitempty"`
	PaidAt           null.Time       `json:"paidAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// NeedsContactBackfill reports whether any optional contact field is still empty
func (s *Sale) NeedsContactBackfill() bool {
	return !s.CustomerPhone.Valid || !s.CustomerCPF.Valid
}

// StatusApplyResult describes what a conditional status write did
type StatusApplyResult string

const (
	// StatusApplyTransitioned means the row moved to a new status
	StatusApplyTransitioned StatusApplyResult = "transitioned"
	// StatusApplyRefreshed means the status was already current and only the snapshot changed
	StatusApplyRefreshed StatusApplyResult = "refreshed"
	// StatusApplyStale means the rank guard rejected the write
	StatusApplyStale StatusApplyResult = "stale"
)

// StatusUpdate carries the fields the reconciler writes on a sale
type StatusUpdate struct {
	Status         SaleStatus
	PaymentMethod  string
	PaymentDetails datatypes.JSON
}

// CheckoutAttempt is a row of the checkout form log, used to backfill contact data
type CheckoutAttempt struct {
	ID            uuid.UUID   `json:"id"`
	CustomerEmail string      `json:"customerEmail"`
	CustomerPhone null.String `json:"customerPhone,omitempty"`
	CustomerCPF   null.String `json:"customerCpf,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}
