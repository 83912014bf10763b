package session

import (
	"fmt"
	"strings"
	"time"

	"kitchenhero/cmd/security/password"
	"kitchenhero/cmd/security/token"

	"github.com/caarlos0/env/v11"
)

// MinKeyBytes is the minimum size of the signing key and the refresh HMAC key.
const MinKeyBytes = token.MinKeyBytes

// Config defines all runtime configuration for the session subsystem.
//
// It is supplied at construction and treated as immutable afterwards.
type Config struct {
	// Issuer and Audience are set in the "iss" and "aud" claims and required on validation.
	Issuer   string
	Audience string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ClockSkew backdates "nbf" so slightly-behind verifiers accept fresh tokens.
	// Expiry is never extended.
	ClockSkew time.Duration

	// RefreshTokenBytes is the entropy of opaque refresh tokens.
	RefreshTokenBytes int

	// SigningKey signs access tokens (HS256).
	SigningKey string

	// RefreshHMACKey keys the stored refresh-token hash. It must differ from SigningKey.
	RefreshHMACKey string

	Password password.Config
}

// DefaultConfig returns defaults suitable for development. Keys are left empty
// and must be provided.
func DefaultConfig() Config {
	return Config{
		Issuer:            "kitchenhero",
		Audience:          "kitchenhero",
		AccessTokenTTL:    30 * time.Minute,
		RefreshTokenTTL:   30 * 24 * time.Hour,
		ClockSkew:         10 * time.Second,
		RefreshTokenBytes: token.DefaultRefreshBytes,
		Password:          password.DefaultConfig(),
	}
}

type envConfig struct {
	Issuer            string        `env:"KH_AUTH_ISSUER" envDefault:"kitchenhero"`
	Audience          string        `env:"KH_AUTH_AUDIENCE" envDefault:"kitchenhero"`
	AccessTokenTTL    time.Duration `env:"KH_AUTH_ACCESS_TTL" envDefault:"30m"`
	RefreshTokenTTL   time.Duration `env:"KH_AUTH_REFRESH_TTL" envDefault:"720h"`
	ClockSkew         time.Duration `env:"KH_AUTH_CLOCK_SKEW" envDefault:"10s"`
	RefreshTokenBytes int           `env:"KH_AUTH_REFRESH_TOKEN_BYTES" envDefault:"32"`
	SigningKey        string        `env:"KH_AUTH_SIGNING_KEY"`
	RefreshHMACKey    string        `env:"KH_AUTH_REFRESH_HMAC_KEY"`
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - KH_AUTH_SIGNING_KEY (>= 32 bytes)
//   - KH_AUTH_REFRESH_HMAC_KEY (>= 32 bytes, different from the signing key)
//
// Optional (durations must be valid Go duration strings):
//   - KH_AUTH_ISSUER
//   - KH_AUTH_AUDIENCE
//   - KH_AUTH_ACCESS_TTL
//   - KH_AUTH_REFRESH_TTL
//   - KH_AUTH_CLOCK_SKEW
//   - KH_AUTH_REFRESH_TOKEN_BYTES
//
// Password settings come from password.FromEnv.
// Returns an error wrapping ErrMisconfiguration if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrMisconfiguration, err)
	}

	pw, err := password.FromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrMisconfiguration, err)
	}

	cfg := Config{
		Issuer:            strings.TrimSpace(raw.Issuer),
		Audience:          strings.TrimSpace(raw.Audience),
		AccessTokenTTL:    raw.AccessTokenTTL,
		RefreshTokenTTL:   raw.RefreshTokenTTL,
		ClockSkew:         raw.ClockSkew,
		RefreshTokenBytes: raw.RefreshTokenBytes,
		SigningKey:        raw.SigningKey,
		RefreshHMACKey:    raw.RefreshHMACKey,
		Password:          pw,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem, wrapped in ErrMisconfiguration.
func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrMisconfiguration, fmt.Sprintf(format, args...))
	}

	switch {
	case c.Issuer == "":
		return bad("issuer is required")
	case c.Audience == "":
		return bad("audience is required")
	case c.AccessTokenTTL <= 0:
		return bad("access token ttl must be positive")
	case c.RefreshTokenTTL <= 0:
		return bad("refresh token ttl must be positive")
	case c.RefreshTokenTTL < c.AccessTokenTTL:
		return bad("refresh token ttl must not be shorter than access token ttl")
	case c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute:
		return bad("clock skew out of range [0..5m]")
	case c.RefreshTokenBytes < 32 || c.RefreshTokenBytes > 64:
		return bad("refresh token bytes out of range [32..64]")
	}

	if _, err := token.CheckKey(c.SigningKey, MinKeyBytes); err != nil {
		return fmt.Errorf("%w: signing key: %w", ErrMisconfiguration, err)
	}
	if _, err := token.CheckKey(c.RefreshHMACKey, MinKeyBytes); err != nil {
		return fmt.Errorf("%w: refresh hmac key: %w", ErrMisconfiguration, err)
	}
	if strings.TrimSpace(c.SigningKey) == strings.TrimSpace(c.RefreshHMACKey) {
		return bad("refresh hmac key must differ from signing key")
	}
	if err := c.Password.Check(); err != nil {
		return fmt.Errorf("%w: %w", ErrMisconfiguration, err)
	}
	return nil
}
