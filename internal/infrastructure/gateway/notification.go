package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"checkout.backend/internal/domain/entities"
	domainerrors "checkout.backend/internal/domain/errors"
)

type notificationBody struct {
	ID     json.RawMessage `json:"id"`
	Type   string          `json:"type"`
	Topic  string          `json:"topic"`
	Action string          `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseNotification decodes a webhook body, falling back to the query string
// (type/topic, data.id/id) used by legacy notifications. Malformed JSON and a
// payment notification without a payment id return ErrInvalidInput.
func ParseNotification(body []byte, query url.Values) (entities.GatewayNotification, error) {
	var n entities.GatewayNotification
	var raw notificationBody

	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return n, fmt.Errorf("malformed notification body: %v: %w", err, domainerrors.ErrInvalidInput)
		}
	}

	n.EventID = rawID(raw.ID)
	n.Action = raw.Action
	n.Topic = firstNonEmpty(raw.Type, raw.Topic, query.Get("type"), query.Get("topic"))
	if n.Topic == "" && strings.HasPrefix(n.Action, "payment.") {
		n.Topic = "payment"
	}
	n.PaymentID = firstNonEmpty(rawID(raw.Data.ID), query.Get("data.id"))
	// legacy IPN carries the payment id at the top level
	if n.PaymentID == "" && n.Topic == "payment" {
		n.PaymentID = firstNonEmpty(query.Get("id"), n.EventID)
	}

	if n.IsPaymentTopic() && n.PaymentID == "" {
		return n, fmt.Errorf("payment notification without payment id: %w", domainerrors.ErrInvalidInput)
	}
	if n.Topic == "" && n.Action == "" {
		return n, fmt.Errorf("notification without topic: %w", domainerrors.ErrInvalidInput)
	}
	return n, nil
}

// rawID accepts both "123" and 123
func rawID(v json.RawMessage) string {
	if len(v) == 0 || string(v) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var num json.Number
	if err := json.Unmarshal(v, &num); err == nil {
		return num.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
