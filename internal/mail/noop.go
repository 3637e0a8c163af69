package mail

import (
	"context"
	"log/slog"
)

// LogMailer logs messages instead of sending them. Used in development and
// in tests, where a real SMTP relay is not available.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("Mail (not sent)", "to", msg.To, "subject", msg.Subject)
	return nil
}
