package mail

import (
	"fmt"

	gomail "github.com/go-mail/mail"

	"github.com/brightforge/storefront/internal/config"
)

// Mailer delivers a single HTML email. Implementations must be safe for
// concurrent use; callers treat delivery as fire-and-forget.
type Mailer interface {
	Send(to, subject, html string) error
}

// SMTPMailer sends mail through a single SMTP relay.
type SMTPMailer struct {
	cfg config.MailConfig
}

// NewSMTPMailer constructs an SMTPMailer from configuration.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers an HTML message to a single recipient.
func (m *SMTPMailer) Send(to, subject, html string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)

	dialer := gomail.NewDialer(m.cfg.SMTPHost, m.cfg.SMTPPort, m.cfg.SMTPUsername, m.cfg.SMTPPassword)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
