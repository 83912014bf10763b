package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// Event backends.
const (
	EventsNone  = "none"
	EventsLog   = "log"
	EventsRedis = "redis"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string `env:"KH_HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	// An empty gRPC address disables the gRPC listener.
	GRPCAddr string `env:"KH_GRPC_ADDR"`

	LogLevel  string `env:"KH_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"KH_LOG_FORMAT" envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"KH_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"KH_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"KH_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"KH_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"KH_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`
	ShutdownTimeout   time.Duration `env:"KH_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Store        string        `env:"KH_STORE" envDefault:"memory"`
	StoreTimeout time.Duration `env:"KH_STORE_TIMEOUT" envDefault:"3s"`
	Migrate      bool          `env:"KH_MIGRATE" envDefault:"true"`

	DatabaseURL string `env:"KH_DATABASE_URL"`
	DBSchema    string `env:"KH_DB_SCHEMA" envDefault:"public"`
	DBMaxConns  int32  `env:"KH_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"KH_DB_MIN_CONNS" envDefault:"0"`

	SQLitePath string `env:"KH_SQLITE_PATH" envDefault:"kitchenhero.db"`

	RedisURL    string `env:"KH_REDIS_URL"`
	RedisPrefix string `env:"KH_REDIS_PREFIX" envDefault:"kh:identity:"`

	Events      string `env:"KH_EVENTS" envDefault:"log"`
	EventsTopic string `env:"KH_EVENTS_TOPIC" envDefault:"kh.auth.events"`

	// If true, /readyz returns 503 while the store is the in-memory one.
	ReadinessRequireDB bool `env:"KH_READINESS_REQUIRE_DB" envDefault:"false"`
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("app config: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.Events = strings.ToLower(strings.TrimSpace(cfg.Events))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the combinations env.Parse cannot.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("app config: KH_STORE=postgres requires KH_DATABASE_URL")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("app config: KH_STORE=sqlite requires KH_SQLITE_PATH")
		}
	case StoreRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("app config: KH_STORE=redis requires KH_REDIS_URL")
		}
	default:
		return fmt.Errorf("app config: unknown KH_STORE %q", c.Store)
	}

	switch c.Events {
	case EventsNone, EventsLog:
	case EventsRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("app config: KH_EVENTS=redis requires KH_REDIS_URL")
		}
	default:
		return fmt.Errorf("app config: unknown KH_EVENTS %q", c.Events)
	}

	switch c.LogFormat {
	case "json", "text", "pretty":
	default:
		return fmt.Errorf("app config: unknown KH_LOG_FORMAT %q", c.LogFormat)
	}

	if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("app config: db pool bounds min=%d max=%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.StoreTimeout < 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("app config: timeouts must be positive")
	}
	return nil
}
