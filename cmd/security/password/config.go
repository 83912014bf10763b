package password

import (
	"cmp"
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm names a supported password hashing scheme.
type Algorithm string

const (
	// AlgorithmArgon2id produces PHC-style $argon2id$ strings. It is the default.
	AlgorithmArgon2id Algorithm = "argon2id"
	// AlgorithmBcrypt produces modular-crypt $2a$ strings.
	AlgorithmBcrypt Algorithm = "bcrypt"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
//
// Algorithm selects the scheme used by Hash. Verify accepts hashes from
// either scheme so stored credentials survive an algorithm switch.
type Config struct {
	Algorithm  Algorithm
	Params     Argon2idParams
	BcryptCost int
	Policy     Policy
}

// DefaultConfig returns a strong baseline for interactive logins.
func DefaultConfig() Config {
	// CPU-aware parallelism, clamped to [1..4] to keep container usage predictable.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Algorithm: AlgorithmArgon2id,
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,      // 64 MiB
			Iterations:  3,              // reasonable default for interactive logins
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		BcryptCost: 12,
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// envConfig is the env surface. It is prefilled from DefaultConfig so
// unset variables keep their defaults.
type envConfig struct {
	Algorithm      string `env:"KH_PASSWORD_ALGORITHM"`
	MinLength      int    `env:"KH_PASSWORD_MIN_LEN"`
	MaxLength      int    `env:"KH_PASSWORD_MAX_LEN"`
	RejectVeryWeak bool   `env:"KH_PASSWORD_REJECT_VERY_WEAK"`
	MemoryKiB      uint32 `env:"KH_ARGON2_MEMORY_KIB"`
	Iterations     uint32 `env:"KH_ARGON2_ITERATIONS"`
	Parallelism    uint8  `env:"KH_ARGON2_PARALLELISM"`
	SaltLength     uint32 `env:"KH_ARGON2_SALT_LEN"`
	KeyLength      uint32 `env:"KH_ARGON2_KEY_LEN"`
	BcryptCost     int    `env:"KH_BCRYPT_COST"`
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - KH_PASSWORD_ALGORITHM (argon2id|bcrypt)
// - KH_PASSWORD_MIN_LEN
// - KH_PASSWORD_MAX_LEN
// - KH_PASSWORD_REJECT_VERY_WEAK (true/false)
// - KH_ARGON2_MEMORY_KIB
// - KH_ARGON2_ITERATIONS
// - KH_ARGON2_PARALLELISM
// - KH_ARGON2_SALT_LEN
// - KH_ARGON2_KEY_LEN
// - KH_BCRYPT_COST
func FromEnv() (Config, error) {
	def := DefaultConfig()
	raw := envConfig{
		Algorithm:      string(def.Algorithm),
		MinLength:      def.Policy.MinLength,
		MaxLength:      def.Policy.MaxLength,
		RejectVeryWeak: def.Policy.RejectVeryWeak,
		MemoryKiB:      def.Params.MemoryKiB,
		Iterations:     def.Params.Iterations,
		Parallelism:    def.Params.Parallelism,
		SaltLength:     def.Params.SaltLength,
		KeyLength:      def.Params.KeyLength,
		BcryptCost:     def.BcryptCost,
	}
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	checks := []error{
		inRange("KH_PASSWORD_MIN_LEN", raw.MinLength, 1, 1024),
		inRange("KH_PASSWORD_MAX_LEN", raw.MaxLength, 1, 4096),
		inRange("KH_ARGON2_MEMORY_KIB", raw.MemoryKiB, 8*1024, 1024*1024), // 8 MiB .. 1 GiB
		inRange("KH_ARGON2_ITERATIONS", raw.Iterations, 1, 20),
		inRange("KH_ARGON2_PARALLELISM", raw.Parallelism, 1, 64),
		inRange("KH_ARGON2_SALT_LEN", raw.SaltLength, 8, 64),
		inRange("KH_ARGON2_KEY_LEN", raw.KeyLength, 16, 64),
		inRange("KH_BCRYPT_COST", raw.BcryptCost, 10, 14),
	}
	for _, err := range checks {
		if err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		Algorithm: Algorithm(raw.Algorithm),
		Params: Argon2idParams{
			MemoryKiB:   raw.MemoryKiB,
			Iterations:  raw.Iterations,
			Parallelism: raw.Parallelism,
			SaltLength:  raw.SaltLength,
			KeyLength:   raw.KeyLength,
		},
		BcryptCost: raw.BcryptCost,
		Policy: Policy{
			MinLength:      raw.MinLength,
			MaxLength:      raw.MaxLength,
			RejectVeryWeak: raw.RejectVeryWeak,
		},
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check reports whether the config can hash and verify safely.
// It does not look at the environment.
func (c Config) Check() error {
	switch c.Algorithm {
	case AlgorithmArgon2id, AlgorithmBcrypt:
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, c.Algorithm)
	}

	if c.Params.MemoryKiB == 0 || c.Params.Iterations == 0 || c.Params.Parallelism == 0 {
		return fmt.Errorf("%w: argon2id cost must be positive", ErrInvalidConfig)
	}
	if c.Params.SaltLength < 8 || c.Params.KeyLength < 16 {
		return fmt.Errorf("%w: argon2id salt/key too short", ErrInvalidConfig)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("%w: bcrypt cost out of range [%d..%d]", ErrInvalidConfig, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Policy.MinLength < 1 {
		return fmt.Errorf("%w: min_len must be positive", ErrInvalidConfig)
	}
	if c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf(
			"%w: min_len(%d) > max_len(%d)",
			ErrInvalidConfig,
			c.Policy.MinLength,
			c.Policy.MaxLength,
		)
	}
	return nil
}

func inRange[T cmp.Ordered](name string, v, minVal, maxVal T) error {
	if v < minVal || v > maxVal {
		return fmt.Errorf("%w: %s out of range [%v..%v]", ErrInvalidConfig, name, minVal, maxVal)
	}
	return nil
}
