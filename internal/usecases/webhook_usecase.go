package usecases

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"checkout.backend/internal/domain/entities"
	domainerrors "checkout.backend/internal/domain/errors"
	"checkout.backend/internal/domain/repositories"
	"checkout.backend/internal/infrastructure/metrics"
	"checkout.backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	MessageProcessed        = "processed"
	MessageAlreadyProcessed = "already processed"
	MessageStaleIgnored     = "stale status ignored"
	MessageIgnoredTopic     = "ignored topic"
	MessageOrderNotFound    = "order not found, retry later"
	MessageInvalidPayload   = "invalid notification payload"
	MessageInvalidSignature = "invalid signature"
	MessagePaymentNotFound  = "payment not found at gateway"
	MessageInternalError    = "internal error"

	confirmationTimeout = 30 * time.Second

	// caller-controlled identifiers are capped before they reach the log row
	maxTopicLength     = 64
	maxEventIDLength   = 128
	maxPaymentIDLength = 64

	topicLabelPayment = "payment"
	topicLabelOther   = "other"
	topicLabelUnknown = "unknown"
)

// WebhookRequest is one inbound gateway delivery
type WebhookRequest struct {
	Headers http.Header
	Query   url.Values
	Body    []byte
}

// WebhookResult is the HTTP answer for the gateway
type WebhookResult struct {
	StatusCode int        `json:"-"`
	Message    string     `json:"message"`
	LogID      *uuid.UUID `json:"logId,omitempty"`
}

// WebhookUsecase ingests gateway notifications
type WebhookUsecase struct {
	logs       repositories.WebhookLogRepository
	decode     NotificationDecoder
	verifier   SignatureVerifier
	resolver   PaymentResolver
	reconciler *OrderReconciler
	dispatcher *NotificationDispatcher
	metrics    *metrics.PipelineMetrics
	async      func(func())
}

func NewWebhookUsecase(
	logs repositories.WebhookLogRepository,
	decode NotificationDecoder,
	verifier SignatureVerifier,
	resolver PaymentResolver,
	reconciler *OrderReconciler,
	dispatcher *NotificationDispatcher,
	m *metrics.PipelineMetrics,
) *WebhookUsecase {
	return &WebhookUsecase{
		logs:       logs,
		decode:     decode,
		verifier:   verifier,
		resolver:   resolver,
		reconciler: reconciler,
		dispatcher: dispatcher,
		metrics:    m,
		async:      func(fn func()) { go fn() },
	}
}

// SetAsync replaces how fire-and-forget work is started
func (u *WebhookUsecase) SetAsync(async func(func())) {
	if async != nil {
		u.async = async
	}
}

// ReceiveNotification logs the delivery, then resolves and reconciles it.
// Only log and sale write failures (and an unreachable gateway) answer 500,
// which makes the gateway redeliver.
func (u *WebhookUsecase) ReceiveNotification(ctx context.Context, req WebhookRequest) (result WebhookResult) {
	notification, parseErr := u.decode(req.Body, req.Query)
	defer func() {
		u.metrics.ObserveWebhook(topicLabel(notification, parseErr), result.StatusCode)
	}()

	signatureValid := true
	if parseErr == nil && notification.IsPaymentTopic() && u.verifier != nil {
		signatureValid = u.verifier.Verify(req.Headers, notification.PaymentID)
	}

	entry := &entities.WebhookLogEntry{
		Topic:          truncate(firstSet(notification.Topic, notification.Action), maxTopicLength),
		GatewayEventID: truncate(notification.EventID, maxEventIDLength),
		PaymentID:      truncate(notification.PaymentID, maxPaymentIDLength),
		RawPayload:     rawPayload(req.Body, req.Query),
		SignatureValid: signatureValid,
	}
	if err := u.logs.Create(ctx, entry); err != nil {
		logger.Error(ctx, "Failed to log webhook delivery", zap.Error(err))
		return WebhookResult{StatusCode: http.StatusInternalServerError, Message: MessageInternalError}
	}
	ctx = logger.WithContextFields(ctx, zap.String("webhook_log_id", entry.ID.String()))

	if parseErr == nil && len(notification.PaymentID) > maxPaymentIDLength {
		parseErr = fmt.Errorf("payment id longer than %d characters: %w", maxPaymentIDLength, domainerrors.ErrInvalidInput)
	}
	if parseErr != nil {
		u.closeEntry(ctx, entry.ID, parseErr.Error())
		return WebhookResult{StatusCode: http.StatusBadRequest, Message: MessageInvalidPayload, LogID: &entry.ID}
	}
	if !signatureValid {
		logger.Warn(ctx, "Webhook signature rejected", zap.String("payment_id", notification.PaymentID))
		u.closeEntry(ctx, entry.ID, MessageInvalidSignature)
		return WebhookResult{StatusCode: http.StatusUnauthorized, Message: MessageInvalidSignature, LogID: &entry.ID}
	}
	if !notification.IsPaymentTopic() {
		u.closeEntry(ctx, entry.ID, "")
		return WebhookResult{StatusCode: http.StatusOK, Message: MessageIgnoredTopic, LogID: &entry.ID}
	}

	payment, err := u.resolver.GetPayment(ctx, notification.PaymentID)
	if errors.Is(err, domainerrors.ErrNotFound) {
		// the gateway will never know this id; redelivery cannot help
		u.closeEntry(ctx, entry.ID, MessagePaymentNotFound)
		return WebhookResult{StatusCode: http.StatusOK, Message: MessagePaymentNotFound, LogID: &entry.ID}
	}
	if err != nil {
		logger.Error(ctx, "Payment lookup failed", zap.String("payment_id", notification.PaymentID), zap.Error(err))
		u.openEntry(ctx, entry.ID, 0, err.Error())
		return WebhookResult{StatusCode: http.StatusInternalServerError, Message: MessageInternalError, LogID: &entry.ID}
	}

	outcome, err := u.reconciler.Reconcile(ctx, payment)
	if err != nil {
		logger.Error(ctx, "Reconciliation failed", zap.String("payment_id", payment.ID), zap.Error(err))
		u.openEntry(ctx, entry.ID, 0, err.Error())
		return WebhookResult{StatusCode: http.StatusInternalServerError, Message: MessageInternalError, LogID: &entry.ID}
	}
	if !outcome.Found {
		u.openEntry(ctx, entry.ID, outcome.Attempts, MessageOrderNotFound)
		return WebhookResult{StatusCode: http.StatusAccepted, Message: MessageOrderNotFound, LogID: &entry.ID}
	}

	if outcome.BecamePaid {
		u.sendConfirmation(ctx, outcome.Sale)
	}

	if err := u.logs.MarkProcessed(ctx, entry.ID, ""); err != nil {
		logger.Error(ctx, "Failed to close webhook log entry", zap.Error(err))
		return WebhookResult{StatusCode: http.StatusInternalServerError, Message: MessageInternalError, LogID: &entry.ID}
	}

	message := MessageProcessed
	switch {
	case outcome.AlreadyPaid():
		message = MessageAlreadyProcessed
	case outcome.Result == entities.StatusApplyStale:
		message = MessageStaleIgnored
	}
	logger.Info(ctx, "Webhook processed",
		zap.String("payment_id", payment.ID),
		zap.String("sale_id", outcome.Sale.ID.String()),
		zap.String("status", string(outcome.NewStatus)),
		zap.String("result", string(outcome.Result)),
	)
	return WebhookResult{StatusCode: http.StatusOK, Message: message, LogID: &entry.ID}
}

func (u *WebhookUsecase) sendConfirmation(ctx context.Context, sale *entities.Sale) {
	if u.dispatcher == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	snapshot := *sale
	u.async(func() {
		ctx, cancel := context.WithTimeout(bg, confirmationTimeout)
		defer cancel()
		if _, err := u.dispatcher.SendPaymentReceived(ctx, &snapshot); err != nil {
			logger.Warn(ctx, "Payment confirmation email failed",
				zap.String("sale_id", snapshot.ID.String()),
				zap.Error(err),
			)
		}
	})
}

// closeEntry marks the entry processed. A failure here only loses bookkeeping.
func (u *WebhookUsecase) closeEntry(ctx context.Context, id uuid.UUID, lastError string) {
	if err := u.logs.MarkProcessed(ctx, id, lastError); err != nil {
		logger.Error(ctx, "Failed to close webhook log entry", zap.Error(err))
	}
}

func (u *WebhookUsecase) openEntry(ctx context.Context, id uuid.UUID, retryCount int, lastError string) {
	if err := u.logs.MarkUnprocessed(ctx, id, retryCount, lastError); err != nil {
		logger.Error(ctx, "Failed to update webhook log entry", zap.Error(err))
	}
}

// rawPayload keeps the body verbatim when it is JSON and wraps it otherwise
func rawPayload(body []byte, query url.Values) datatypes.JSON {
	if len(body) == 0 {
		b, _ := json.Marshal(map[string]interface{}{"query": query})
		return datatypes.JSON(b)
	}
	// jsonb cannot store NUL, so such bodies are kept as text
	if json.Valid(body) && !bytes.Contains(body, []byte(`\u0000`)) {
		return datatypes.JSON(append([]byte(nil), body...))
	}
	b, _ := json.Marshal(map[string]string{"raw_body": string(body)})
	return datatypes.JSON(b)
}

// topicLabel keeps the metric label set closed whatever the caller sends
func topicLabel(n entities.GatewayNotification, parseErr error) string {
	switch {
	case parseErr != nil:
		return topicLabelUnknown
	case n.IsPaymentTopic():
		return topicLabelPayment
	default:
		return topicLabelOther
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// keep the cut on a rune boundary
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
