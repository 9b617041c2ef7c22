package usecases

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"checkout.backend/internal/domain/entities"
)

// PaymentResolver fetches the authoritative payment state from the gateway
type PaymentResolver interface {
	GetPayment(ctx context.Context, paymentID string) (*entities.GatewayPayment, error)
}

// NotificationDecoder turns a raw webhook delivery into a notification
type NotificationDecoder func(body []byte, query url.Values) (entities.GatewayNotification, error)

// SignatureVerifier authenticates a webhook delivery
type SignatureVerifier interface {
	Verify(headers http.Header, dataID string) bool
}

// AccountProvisioner creates (or takes over) an end-user login
type AccountProvisioner interface {
	EnsureUser(ctx context.Context, req entities.NewAccount) (*entities.AccountUser, error)
}

// Mailer sends one email and returns the provider message id
type Mailer interface {
	Send(ctx context.Context, msg entities.EmailMessage) (string, error)
}

// CredentialSealer encrypts generated passwords while they wait for the welcome email
type CredentialSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// SweepLocker hands out a cross-instance lease for the reconciliation sweep
type SweepLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}
