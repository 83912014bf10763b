package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// fastConfig keeps unit tests quick; production cost lives in DefaultConfig.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

func TestHashAndVerify_OK(t *testing.T) {
	t.Parallel()

	for _, alg := range []Algorithm{AlgorithmArgon2id, AlgorithmBcrypt} {
		cfg := fastConfig()
		cfg.Algorithm = alg

		h, err := cfg.Hash("this is a strong password 123!")
		if err != nil {
			t.Fatalf("%s: Hash error: %v", alg, err)
		}
		if h == "this is a strong password 123!" {
			t.Fatalf("%s: hash equals plaintext", alg)
		}

		ok, err := cfg.Verify(h, "this is a strong password 123!")
		if err != nil {
			t.Fatalf("%s: Verify error: %v", alg, err)
		}
		if !ok {
			t.Fatalf("%s: expected match", alg)
		}
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	t.Parallel()

	for _, alg := range []Algorithm{AlgorithmArgon2id, AlgorithmBcrypt} {
		cfg := fastConfig()
		cfg.Algorithm = alg

		h, err := cfg.Hash("this is a strong password 123!")
		if err != nil {
			t.Fatalf("%s: Hash error: %v", alg, err)
		}

		ok, err := cfg.Verify(h, "wrong password")
		if err != nil {
			t.Fatalf("%s: Verify error: %v", alg, err)
		}
		if ok {
			t.Fatalf("%s: expected mismatch", alg)
		}
	}
}

func TestHash_FreshSaltPerCall(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	a, err := cfg.Hash("pw1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := cfg.Hash("pw1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatalf("expected different hashes for the same password")
	}

	saltA := strings.Split(a, "$")[4]
	saltB := strings.Split(b, "$")[4]
	if saltA == saltB {
		t.Fatalf("expected different salts")
	}
}

func TestHash_EmptyPassword(t *testing.T) {
	t.Parallel()

	if _, err := fastConfig().Hash(""); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestVerify_CrossAlgorithm(t *testing.T) {
	t.Parallel()

	legacy := fastConfig()
	legacy.Algorithm = AlgorithmBcrypt
	h, err := legacy.Hash("kitchen-hero-legacy")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	current := fastConfig()
	ok, err := current.Verify(h, "kitchen-hero-legacy")
	if err != nil || !ok {
		t.Fatalf("argon2id config should verify bcrypt hash: ok=%v err=%v", ok, err)
	}
	if !current.NeedsRehash(h) {
		t.Fatalf("bcrypt hash under argon2id config should need rehash")
	}
}

func TestNeedsRehash(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	h, err := cfg.Hash("rehash me please")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if cfg.NeedsRehash(h) {
		t.Fatalf("fresh hash should not need rehash")
	}

	stronger := cfg
	stronger.Params.Iterations = 2
	if !stronger.NeedsRehash(h) {
		t.Fatalf("weaker iterations should need rehash")
	}

	if !cfg.NeedsRehash("garbage") {
		t.Fatalf("garbage should need rehash")
	}

	bc := fastConfig()
	bc.Algorithm = AlgorithmBcrypt
	bh, err := bc.Hash("rehash me please")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if bc.NeedsRehash(bh) {
		t.Fatalf("fresh bcrypt hash should not need rehash")
	}
	bc.BcryptCost = bcrypt.MinCost + 1
	if !bc.NeedsRehash(bh) {
		t.Fatalf("lower bcrypt cost should need rehash")
	}
}

func TestValidate_MinMax(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Policy.MinLength = 12
	cfg.Policy.MaxLength = 16

	if err := cfg.Validate("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}

	if err := cfg.Validate("this password is definitely too long"); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	if err := cfg.Validate("goodpassw0rd!"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestValidate_BcryptByteLimit(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.Algorithm = AlgorithmBcrypt
	long := strings.Repeat("é", 40) // 40 runes, 80 bytes

	if err := cfg.Validate(long); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := cfg.Hash(long); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong from Hash, got %v", err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cases := []string{
		"not-a-hash",
		"",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$2a$04$tooshort",
	}
	for _, h := range cases {
		ok, err := cfg.Verify(h, "whatever")
		if err != ErrInvalidHash {
			t.Fatalf("Verify(%q): expected ErrInvalidHash, got %v", h, err)
		}
		if ok {
			t.Fatalf("Verify(%q): expected false", h)
		}
	}
}

func TestVerify_RejectsOversizedParams(t *testing.T) {
	t.Parallel()

	big := fastConfig()
	big.Params.Iterations = 10
	h, err := big.Hash("expensive password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := fastConfig().Verify(h, "expensive password")
	if err != ErrInvalidHash || ok {
		t.Fatalf("expected ErrInvalidHash for oversized params, got ok=%v err=%v", ok, err)
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Policy.RejectVeryWeak = true
	cfg.Policy.MinLength = 8

	cases := []struct {
		pw   string
		want error
	}{
		{"password", ErrWeakPassword},
		{"PassWord123", ErrWeakPassword},
		{"11111111", ErrWeakPassword},
		{"  zzzzzzzz  ", ErrWeakPassword},
		{"        ", ErrWeakPassword},
		{"12345678901", ErrWeakPassword},
		{"123456789012", nil},
		{"a-very-ok-pass", nil},
	}
	for _, tc := range cases {
		if err := cfg.Validate(tc.pw); err != tc.want {
			t.Errorf("Validate(%q) = %v, want %v", tc.pw, err, tc.want)
		}
	}

	cfg.Policy.RejectVeryWeak = false
	if err := cfg.Validate("password"); err != nil {
		t.Fatalf("expected ok with weak check off, got %v", err)
	}
}
