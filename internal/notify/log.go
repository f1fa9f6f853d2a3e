package notify

import (
	"context"
	"log/slog"
)

// Log writes notifications to a structured logger. Used when no
// messaging channel is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log-backed notifier
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("component", "notify")}
}

// Permitted is always true for the log channel
func (l *Log) Permitted() bool { return true }

// Deliver logs the notification at info level
func (l *Log) Deliver(_ context.Context, n Notification) (Outcome, error) {
	l.logger.Info("notification", "id", n.ID, "title", n.Title, "body", n.Body)
	return Delivered, nil
}
