package token

import (
	"encoding/base64"
	"strings"
	"testing"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestHashHMACSHA256Hex_Stable(t *testing.T) {
	t.Parallel()

	a := HashHMACSHA256Hex("secret", testKey)
	b := HashHMACSHA256Hex("secret", testKey)
	if a != b || len(a) != 64 {
		t.Fatalf("expected stable 64-char hex, got %q / %q", a, b)
	}
	if a == HashSHA256Hex("secret") {
		t.Fatalf("HMAC must differ from plain SHA-256")
	}
	if a == HashHMACSHA256Hex("secret", []byte("another-key-another-key-another!")) {
		t.Fatalf("different keys must produce different hashes")
	}
}

func TestEqualHex64(t *testing.T) {
	t.Parallel()

	h := HashSHA256Hex("x")
	if !EqualHex64(h, h) {
		t.Fatalf("expected equal")
	}
	if EqualHex64(h, HashSHA256Hex("y")) {
		t.Fatalf("expected mismatch")
	}
	if EqualHex64(h[:63], h[:63]) {
		t.Fatalf("short input must never match")
	}
}

func TestCheckKey(t *testing.T) {
	t.Parallel()

	if _, err := CheckKey("   ", 32); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}
	if _, err := CheckKey("short", 32); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}
	k, err := CheckKey("  "+string(testKey)+"  ", 32)
	if err != nil || string(k) != string(testKey) {
		t.Fatalf("expected trimmed key, got %q err=%v", k, err)
	}
}

func TestNewRefreshCodec_Bounds(t *testing.T) {
	t.Parallel()

	if _, err := NewRefreshCodec(nil, 32); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}
	if _, err := NewRefreshCodec([]byte("too-short"), 32); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}
	if _, err := NewRefreshCodec(testKey, 16); err != ErrTokenBytes {
		t.Fatalf("expected ErrTokenBytes for 16, got %v", err)
	}
	if _, err := NewRefreshCodec(testKey, 65); err != ErrTokenBytes {
		t.Fatalf("expected ErrTokenBytes for 65, got %v", err)
	}
	if _, err := NewRefreshCodec(testKey, 0); err != nil {
		t.Fatalf("zero should select default: %v", err)
	}
}

func TestRefreshCodec_GenerateHashMatch(t *testing.T) {
	t.Parallel()

	c, err := NewRefreshCodec(testKey, 32)
	if err != nil {
		t.Fatalf("NewRefreshCodec: %v", err)
	}

	secret, hash, err := c.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil {
		t.Fatalf("secret is not base64url: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 bytes of entropy, got %d", len(raw))
	}
	if strings.ContainsAny(secret, "+/=") {
		t.Fatalf("secret must be URL-safe without padding: %q", secret)
	}

	if hash == secret || len(hash) != 64 {
		t.Fatalf("unexpected hash %q", hash)
	}
	if !c.Matches(secret, hash) {
		t.Fatalf("expected match")
	}
	if c.Matches(secret+"x", hash) {
		t.Fatalf("expected mismatch for altered secret")
	}
	if c.Matches("", hash) {
		t.Fatalf("empty secret must not match")
	}

	other, _, err := c.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if other == secret {
		t.Fatalf("expected unique secrets")
	}
}
