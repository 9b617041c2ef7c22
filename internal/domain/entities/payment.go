package entities

import (
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// GatewayStatus is the gateway's payment status vocabulary, closed at the boundary
type GatewayStatus string

const (
	GatewayStatusApproved    GatewayStatus = "approved"
	GatewayStatusPending     GatewayStatus = "pending"
	GatewayStatusInProcess   GatewayStatus = "in_process"
	GatewayStatusAuthorized  GatewayStatus = "authorized"
	GatewayStatusInMediation GatewayStatus = "in_mediation"
	GatewayStatusRejected    GatewayStatus = "rejected"
	GatewayStatusCancelled   GatewayStatus = "cancelled"
	GatewayStatusRefunded    GatewayStatus = "refunded"
	GatewayStatusChargedBack GatewayStatus = "charged_back"
	// GatewayStatusUnknown is any value the gateway sends that we do not recognise
	GatewayStatusUnknown GatewayStatus = "unknown"
)

// ParseGatewayStatus converts a raw gateway string into the closed vocabulary
func ParseGatewayStatus(raw string) GatewayStatus {
	switch s := GatewayStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case GatewayStatusApproved,
		GatewayStatusPending,
		GatewayStatusInProcess,
		GatewayStatusAuthorized,
		GatewayStatusInMediation,
		GatewayStatusRejected,
		GatewayStatusCancelled,
		GatewayStatusRefunded,
		GatewayStatusChargedBack:
		return s
	default:
		return GatewayStatusUnknown
	}
}

// SaleStatus maps the gateway status onto the internal sale status.
// Unknown values fall back to pending so nothing is silently dropped.
func (g GatewayStatus) SaleStatus() SaleStatus {
	switch g {
	case GatewayStatusApproved:
		return SaleStatusPaid
	case GatewayStatusPending, GatewayStatusInProcess, GatewayStatusAuthorized, GatewayStatusInMediation:
		return SaleStatusPending
	case GatewayStatusRejected:
		return SaleStatusRefused
	case GatewayStatusCancelled:
		return SaleStatusCancelled
	case GatewayStatusRefunded, GatewayStatusChargedBack:
		return SaleStatusRefunded
	case GatewayStatusUnknown:
		return SaleStatusPending
	default:
		return SaleStatusPending
	}
}

// MapGatewayStatus maps a raw gateway status string to the internal sale status
func MapGatewayStatus(raw string) SaleStatus {
	return ParseGatewayStatus(raw).SaleStatus()
}

// GatewayPayment is the authoritative payment as reported by the gateway
type GatewayPayment struct {
	ID           string          `json:"id"`
	Status       GatewayStatus   `json:"status"`
	RawStatus    string          `json:"rawStatus"`
	StatusDetail string          `json:"statusDetail,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method,omitempty"`
	PayerEmail   string          `json:"payerEmail,omitempty"`
	Raw          datatypes.JSON  `json:"raw,omitempty"`
}

// GatewayNotification is the decoded envelope of an inbound webhook
type GatewayNotification struct {
	EventID   string
	Topic     string
	Action    string
	PaymentID string
}

// IsPaymentTopic reports whether the notification concerns a payment
func (n GatewayNotification) IsPaymentTopic() bool {
	return n.Topic == "payment" || strings.HasPrefix(n.Action, "payment.")
}
