package token

import (
	"crypto/rand"
	"encoding/base64"
)

const (
	// DefaultRefreshBytes is 256 bits of entropy.
	DefaultRefreshBytes = 32
	maxRefreshBytes     = 64
)

// RefreshCodec generates refresh-token secrets and their storable hashes.
// It is immutable and safe for concurrent use.
type RefreshCodec struct {
	key    []byte
	nBytes int
}

// NewRefreshCodec builds a codec keyed by key. The key must be at least
// MinKeyBytes long and should differ from any signing key.
// nBytes <= 0 selects DefaultRefreshBytes; otherwise it must be in [32..64].
func NewRefreshCodec(key []byte, nBytes int) (*RefreshCodec, error) {
	k, err := CheckKey(string(key), MinKeyBytes)
	if err != nil {
		return nil, err
	}
	if nBytes <= 0 {
		nBytes = DefaultRefreshBytes
	}
	if nBytes < DefaultRefreshBytes || nBytes > maxRefreshBytes {
		return nil, ErrTokenBytes
	}
	return &RefreshCodec{key: k, nBytes: nBytes}, nil
}

// Generate returns a new URL-safe secret. The caller hands it to the client
// exactly once; it must not be stored or logged.
func (c *RefreshCodec) Generate() (string, error) {
	b := make([]byte, c.nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashForStorage returns the 64-char hex HMAC of secret.
func (c *RefreshCodec) HashForStorage(secret string) string {
	return HashHMACSHA256Hex(secret, c.key)
}

// Matches reports whether secret hashes to storedHash.
func (c *RefreshCodec) Matches(secret, storedHash string) bool {
	if secret == "" {
		return false
	}
	return EqualHex64(c.HashForStorage(secret), storedHash)
}

// Issue is Generate followed by HashForStorage.
func (c *RefreshCodec) Issue() (secret string, hashHex string, err error) {
	secret, err = c.Generate()
	if err != nil {
		return "", "", err
	}
	return secret, c.HashForStorage(secret), nil
}
