// Package events ships session events onto a watermill message.Publisher.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"kitchenhero/cmd/internal/auth/session"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// DefaultTopic is the stream session events are published to.
const DefaultTopic = "kh.auth.events"

// Metadata keys set on every message.
const (
	MetaEventType = "event_type"
	MetaUserID    = "user_id"
)

// WatermillPublisher implements session.EventPublisher.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher wraps pub. An empty topic means DefaultTopic.
func NewWatermillPublisher(pub message.Publisher, topic string) (*WatermillPublisher, error) {
	if pub == nil {
		return nil, errors.New("events: nil publisher")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{publisher: pub, topic: topic}, nil
}

// NewRedisStreamPublisher publishes to a Redis stream named by topic.
func NewRedisStreamPublisher(client redis.UniversalClient, topic string, log *slog.Logger) (*WatermillPublisher, error) {
	if client == nil {
		return nil, errors.New("events: nil redis client")
	}
	if log == nil {
		log = slog.Default()
	}
	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: client},
		watermill.NewSlogLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("events: redis stream publisher: %w", err)
	}
	return NewWatermillPublisher(pub, topic)
}

// Publish encodes e as JSON and publishes it.
func (p *WatermillPublisher) Publish(ctx context.Context, e session.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetaEventType, string(e.Type))
	if e.UserID != "" {
		msg.Metadata.Set(MetaUserID, e.UserID)
	}

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", e.Type, err)
	}
	return nil
}

// Topic returns the topic messages go to.
func (p *WatermillPublisher) Topic() string { return p.topic }

// Close closes the underlying publisher.
func (p *WatermillPublisher) Close() error { return p.publisher.Close() }

// Decode reads a session event back out of a message payload.
func Decode(msg *message.Message) (session.Event, error) {
	var e session.Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return session.Event{}, fmt.Errorf("events: decode %s: %w", msg.UUID, err)
	}
	return e, nil
}
