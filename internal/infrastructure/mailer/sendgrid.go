package mailer

import (
	"context"
	"fmt"
	"net/http"

	"checkout.backend/internal/config"
	"checkout.backend/internal/domain/entities"
	domainerrors "checkout.backend/internal/domain/errors"
	"checkout.backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const (
	defaultHost  = "https://api.sendgrid.com"
	sendEndpoint = "/v3/mail/send"
)

// SendGridMailer delivers email through the SendGrid v3 API
type SendGridMailer struct {
	apiKey  string
	host    string
	from    *mail.Email
	sandbox bool
}

func NewSendGridMailer(cfg config.MailConfig) *SendGridMailer {
	return &SendGridMailer{
		apiKey:  cfg.SendGridAPIKey,
		host:    defaultHost,
		from:    mail.NewEmail(cfg.FromName, cfg.FromEmail),
		sandbox: cfg.Sandbox,
	}
}

// SetHost points the mailer at another API host
func (m *SendGridMailer) SetHost(host string) {
	m.host = host
}

// Send returns the provider message id. Non-2xx answers wrap ErrMailRejected.
func (m *SendGridMailer) Send(ctx context.Context, msg entities.EmailMessage) (string, error) {
	email := mail.NewSingleEmail(m.from, msg.Subject, mail.NewEmail(msg.ToName, msg.ToEmail), msg.PlainText, msg.HTML)
	if msg.Category != "" {
		email.AddCategories(msg.Category)
	}
	if m.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		email.MailSettings = ms
	}

	req := sendgrid.GetRequest(m.apiKey, sendEndpoint, m.host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(email)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid status %d: %s: %w", resp.StatusCode, resp.Body, domainerrors.ErrMailRejected)
	}
	return http.Header(resp.Headers).Get("X-Message-Id"), nil
}

// LogMailer writes emails to the log instead of sending them; used when no
// provider key is configured
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg entities.EmailMessage) (string, error) {
	id := "log-" + uuid.NewString()
	logger.Info(ctx, "Email not sent, no mail provider configured",
		zap.String("to", msg.ToEmail),
		zap.String("subject", msg.Subject),
		zap.String("category", msg.Category),
		zap.String("message_id", id),
	)
	return id, nil
}
