package account

import (
	"context"

	"go.uber.org/zap"
)

// Message is an outbound account email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers account emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer returns a mailer that logs through logger.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send logs msg at info level.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("account email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
