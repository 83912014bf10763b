package app

import (
	"errors"

	"kitchenhero/cmd/internal/auth/events"
	"kitchenhero/cmd/internal/auth/session"

	"github.com/redis/go-redis/v9"
)

// newEventPublisher returns the configured publisher and its closer.
// "none" yields a nil publisher, which the session service treats as discard.
func newEventPublisher(cfg Config, rdb *redis.Client, log Logger) (session.EventPublisher, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Events {
	case EventsNone:
		return nil, noop, nil
	case EventsLog, "":
		return events.NewLogPublisher(log), noop, nil
	case EventsRedis:
		if rdb == nil {
			return nil, noop, errors.New("events: redis backend without client")
		}
		pub, err := events.NewRedisStreamPublisher(rdb, cfg.EventsTopic, log)
		if err != nil {
			return nil, noop, err
		}
		log.Info("events.redis_stream", "topic", pub.Topic())
		return pub, pub.Close, nil
	default:
		return nil, noop, errors.New("events: unknown backend " + cfg.Events)
	}
}
