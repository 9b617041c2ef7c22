package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"checkout.backend/internal/config"
	"checkout.backend/internal/domain/entities"
	domainerrors "checkout.backend/internal/domain/errors"
	"github.com/sendgrid/rest"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Client resolves authoritative payment state from the gateway API
type Client struct {
	http        *rest.Client
	baseURL     string
	accessToken string
}

// NewClient creates a gateway client
func NewClient(cfg config.GatewayConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:        &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
	}
}

type paymentResponse struct {
	ID                json.RawMessage `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	PaymentMethodID   string          `json:"payment_method_id"`
	PaymentTypeID     string          `json:"payment_type_id"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
}

// GetPayment fetches one payment. A 404 maps to ErrNotFound, transport
// failures and 5xx to ErrGatewayUnavailable.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*entities.GatewayPayment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, fmt.Errorf("empty payment id: %w", domainerrors.ErrInvalidInput)
	}

	resp, err := c.http.SendWithContext(ctx, rest.Request{
		Method:  rest.Get,
		BaseURL: c.baseURL + "/v1/payments/" + url.PathEscape(paymentID),
		Headers: map[string]string{
			"Authorization": "Bearer " + c.accessToken,
			"Accept":        "application/json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %v: %w", paymentID, err, domainerrors.ErrGatewayUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("payment %s: %w", paymentID, domainerrors.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("get payment %s: status %d: %w", paymentID, resp.StatusCode, domainerrors.ErrGatewayUnavailable)
	}

	var body paymentResponse
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		return nil, fmt.Errorf("decode payment %s: %v: %w", paymentID, err, domainerrors.ErrGatewayUnavailable)
	}

	method := body.PaymentMethodID
	if method == "" {
		method = body.PaymentTypeID
	}
	id := rawID(body.ID)
	if id == "" {
		id = paymentID
	}
	return &entities.GatewayPayment{
		ID:           id,
		Status:       entities.ParseGatewayStatus(body.Status),
		RawStatus:    body.Status,
		StatusDetail: body.StatusDetail,
		Amount:       body.TransactionAmount,
		Method:       method,
		PayerEmail:   body.Payer.Email,
		Raw:          datatypes.JSON(resp.Body),
	}, nil
}
