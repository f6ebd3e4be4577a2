package notify

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/llm-quality-observer/internal/config"
	"github.com/wneessen/go-mail"
)

// Email sends multipart text/HTML mail over SMTP with mandatory STARTTLS.
type Email struct {
	cfg        config.SMTPConfig
	recipients []string
}

// NewEmail returns an email channel, or an error if cfg is incomplete.
func NewEmail(cfg config.SMTPConfig) (*Email, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("smtp configuration incomplete")
	}
	return &Email{cfg: cfg, recipients: cfg.Recipients()}, nil
}

func (e *Email) Name() string { return "email" }

// compose builds the outgoing message. A missing HTML body is derived from Text.
func (e *Email) compose(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(e.cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("setting from address: %w", err)
	}
	if err := m.To(e.recipients...); err != nil {
		return nil, fmt.Errorf("setting recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)

	html := msg.HTML
	if html == "" {
		html = plainHTML(msg.Text)
	}
	m.AddAlternativeString(mail.TypeTextHTML, html)
	return m, nil
}

func (e *Email) Send(ctx context.Context, msg Message) error {
	m, err := e.compose(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(e.cfg.Host,
		mail.WithPort(e.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(e.cfg.Username),
		mail.WithPassword(e.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}
