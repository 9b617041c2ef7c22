package handlers

import (
	"context"
	"io"
	"net/http"

	"checkout.backend/internal/usecases"
	"checkout.backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type WebhookService interface {
	ReceiveNotification(ctx context.Context, req usecases.WebhookRequest) usecases.WebhookResult
}

// WebhookHandler handles webhook endpoints
type WebhookHandler struct {
	webhookUsecase WebhookService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhookUsecase WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookUsecase: webhookUsecase}
}

// HandlePaymentNotification handles gateway payment notifications.
// The body is passed through raw so malformed payloads still get logged.
// POST /api/v1/webhooks/payments
func (h *WebhookHandler) HandlePaymentNotification(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		logger.Warn(c.Request.Context(), "Unreadable webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": usecases.MessageInvalidPayload})
		return
	}

	result := h.webhookUsecase.ReceiveNotification(c.Request.Context(), usecases.WebhookRequest{
		Headers: c.Request.Header,
		Query:   c.Request.URL.Query(),
		Body:    body,
	})
	c.JSON(result.StatusCode, result)
}
