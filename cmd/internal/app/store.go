package app

import (
	"context"
	"errors"
	"fmt"

	"kitchenhero/cmd/identity"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// backend owns the store and the connections behind it.
type backend struct {
	name    string
	store   identity.Store
	pinger  identity.Pinger
	closers []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ping reports store readiness. In-memory stores are always ready.
func (b *backend) Ping(ctx context.Context) error {
	if b.pinger == nil {
		return nil
	}
	return b.pinger.Ping(ctx)
}

// newBackend opens the configured store. rdb is shared with the events
// publisher and may be nil when no Redis URL is configured.
func newBackend(ctx context.Context, cfg Config, log Logger, rdb *redis.Client) (*backend, error) {
	b := &backend{name: cfg.Store}

	switch cfg.Store {
	case StoreMemory, "":
		mem := identity.NewMemoryStore()
		b.name = StoreMemory
		b.store, b.pinger = mem, mem
		log.Info("store.memory", "note", "credentials are lost on restart")

	case StorePostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		if err := b.openPostgres(ctx, cfg, log, pool); err != nil {
			_ = b.Close()
			return nil, err
		}

	case StoreSQLite:
		st, err := identity.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		b.store, b.pinger = st, st
		b.closers = append(b.closers, st.Close)
		log.Info("store.sqlite", "path", cfg.SQLitePath)

	case StoreRedis:
		if rdb == nil {
			return nil, errors.New("redis: no client")
		}
		st := identity.NewRedisStore(rdb, cfg.RedisPrefix)
		b.store, b.pinger = st, st
		log.Info("store.redis", "prefix", cfg.RedisPrefix)

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	b.store = identity.NewTimeoutStore(b.store, cfg.StoreTimeout)
	return b, nil
}

func (b *backend) openPostgres(ctx context.Context, cfg Config, log Logger, pool *pgxpool.Pool) error {
	if cfg.Migrate {
		if err := migratePostgres(ctx, pool, cfg.DBSchema); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
		log.Info("store.postgres.migrated", "schema", cfg.DBSchema)
	}
	st, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	b.store, b.pinger = st, st
	log.Info("store.postgres", "schema", cfg.DBSchema, "max_conns", cfg.DBMaxConns)
	return nil
}

// newRedisClient returns nil when no URL is configured.
func newRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
