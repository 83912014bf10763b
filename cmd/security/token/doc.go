// Package token provides refresh-token primitives.
//
// RefreshCodec is the single source of truth for refresh-token behavior:
// - secrets are >= 32 random bytes from crypto/rand, base64url without padding
// - the stored form is HMAC-SHA256(secret, key) as 64-char hex
// - comparison is constant time over fixed-length hex
//
// The HMAC output is deterministic, so stores can index it and look a user up
// by hash. The plaintext secret is never a lookup key.
package token
