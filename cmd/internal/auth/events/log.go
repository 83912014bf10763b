package events

import (
	"context"
	"log/slog"

	"kitchenhero/cmd/internal/auth/session"
)

// LogPublisher writes events to a logger. It is the fallback when no broker
// is configured.
type LogPublisher struct {
	log *slog.Logger
}

// NewLogPublisher returns a LogPublisher writing to log, or to slog.Default
// when log is nil. Use it rather than the zero value.
func NewLogPublisher(log *slog.Logger) LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return LogPublisher{log: log}
}

// Publish logs e at info level as "auth.event". Emails are never logged.
// It always returns nil.
func (p LogPublisher) Publish(ctx context.Context, e session.Event) error {
	attrs := []any{"type", string(e.Type), "at", e.At}
	if e.UserID != "" {
		attrs = append(attrs, "user_id", e.UserID)
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}
	p.log.InfoContext(ctx, "auth.event", attrs...)
	return nil
}
