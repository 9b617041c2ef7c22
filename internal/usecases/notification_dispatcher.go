package usecases

import (
	"context"
	"fmt"
	"html"
	"strings"

	"checkout.backend/internal/domain/entities"
)

const (
	CategoryPaymentReceived = "payment_received"
	CategoryWelcome         = "welcome_credentials"
)

// NotificationDispatcher renders and sends the customer emails of the pipeline
type NotificationDispatcher struct {
	mailer   Mailer
	loginURL string
}

func NewNotificationDispatcher(mailer Mailer, loginURL string) *NotificationDispatcher {
	return &NotificationDispatcher{mailer: mailer, loginURL: loginURL}
}

// SendPaymentReceived sends the immediate "payment received" confirmation
func (d *NotificationDispatcher) SendPaymentReceived(ctx context.Context, sale *entities.Sale) (string, error) {
	name := firstName(sale.CustomerName)
	text := fmt.Sprintf(
		"Hi %s,\n\nwe received your payment of %s. Your access is being prepared and your login details will arrive in a separate email shortly.\n",
		name, sale.TotalAmount.StringFixed(2),
	)
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>we received your payment of <strong>%s</strong>. Your access is being prepared and your login details will arrive in a separate email shortly.</p>",
		html.EscapeString(name), sale.TotalAmount.StringFixed(2),
	)
	return d.mailer.Send(ctx, entities.EmailMessage{
		ToEmail:   sale.CustomerEmail,
		ToName:    sale.CustomerName,
		Subject:   "Payment confirmed",
		PlainText: text,
		HTML:      body,
		Category:  CategoryPaymentReceived,
	})
}

// SendWelcome sends the login and password of a freshly provisioned account
func (d *NotificationDispatcher) SendWelcome(ctx context.Context, sale *entities.Sale, login, password string) (string, error) {
	name := firstName(sale.CustomerName)
	text := fmt.Sprintf(
		"Hi %s,\n\nyour account is ready.\n\nLogin: %s\nPassword: %s\n\nSign in at %s and change your password after the first access.\n",
		name, login, password, d.loginURL,
	)
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>your account is ready.</p><p>Login: <strong>%s</strong><br>Password: <strong>%s</strong></p><p><a href=\"%s\">Sign in</a> and change your password after the first access.</p>",
		html.EscapeString(name), html.EscapeString(login), html.EscapeString(password), html.EscapeString(d.loginURL),
	)
	return d.mailer.Send(ctx, entities.EmailMessage{
		ToEmail:   sale.CustomerEmail,
		ToName:    sale.CustomerName,
		Subject:   "Your access details",
		PlainText: text,
		HTML:      body,
		Category:  CategoryWelcome,
	})
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
