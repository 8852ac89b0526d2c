// Package notify delivers outbound messages to users.
//
// Delivery failures are returned to the caller; it is the caller's choice
// whether a failed send fails the surrounding operation. Registration, for
// instance, reports it as a warning.
package notify

import (
	"context"
	"log/slog"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Dispatcher sends a message to its recipient.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// LogDispatcher writes messages to the log instead of sending them.
// It is wired when no SMTP host is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(_ context.Context, msg Message) error {
	d.logger.Info("email not sent (no SMTP configured)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
