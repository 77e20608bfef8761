package notify

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the logger instead of delivering them. It is
// meant for local development.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that logs every message.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Dispatch logs the message. It never fails.
func (s *LogSender) Dispatch(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
