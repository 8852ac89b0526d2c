package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// mailDialer is the part of *gomail.Dialer the dispatcher uses.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailDispatcher sends messages over SMTP.
type EmailDispatcher struct {
	from   string
	dialer mailDialer
	logger *slog.Logger
}

func NewEmailDispatcher(cfg SMTPConfig, logger *slog.Logger) *EmailDispatcher {
	return &EmailDispatcher{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}
}

// Send dials the relay and delivers msg as text/plain.
func (d *EmailDispatcher) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("notify: empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := d.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("notify: sending email to %s: %w", msg.To, err)
	}

	d.logger.Info("email sent", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}
