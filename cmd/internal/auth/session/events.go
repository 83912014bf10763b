package session

import (
	"context"
	"time"
)

// EventType names a session lifecycle event.
type EventType string

const (
	EventUserRegistered  EventType = "user.registered"
	EventLogin           EventType = "session.login"
	EventLoginFailed     EventType = "session.login_failed"
	EventRefreshed       EventType = "session.refreshed"
	EventRefreshRejected EventType = "session.refresh_rejected"
	EventRevoked         EventType = "session.revoked"
)

// Event is an audit record of a session operation. It never carries secrets.
// Email is set only on login failures, and only in normalized form.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user_id,omitempty"`
	Email  string    `json:"email,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// EventPublisher delivers events. Publishing is best-effort: the service logs
// a failure and carries on.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
