package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/google/uuid"
	"github.com/sevasetu/paycore/infra/logger"
)

// SMTPSender delivers notifications over a plain SMTP endpoint.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPSender creates an SMTP sender. Auth is skipped when username is
// empty, which is common for local relays.
func NewSMTPSender(host, port, username, password, from string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{
		addr: host + ":" + port,
		from: from,
		auth: auth,
	}
}

// Send delivers one message and returns a locally generated message id.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	// net/smtp carries no context; honor cancellation before dialing
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	msg := fmt.Appendf(nil, "From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n",
		s.from, to, subject, body)

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, msg); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", to, err)
	}

	return uuid.New().String(), nil
}

// LogSender logs deliveries instead of sending them. It is the default when
// no SMTP endpoint is configured.
type LogSender struct{}

// Send logs the would-be delivery and returns a message id.
func (LogSender) Send(_ context.Context, to, subject, _ string) (string, error) {
	id := uuid.New().String()
	logger.Info("Email delivery (log sender)", logger.LogContext{
		Fields: map[string]any{
			"to":         to,
			"subject":    subject,
			"message_id": id,
		},
	})
	return id, nil
}
