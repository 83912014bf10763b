// Package password hashes and verifies login passwords.
//
// Two schemes are supported:
// - Argon2id in a PHC-like encoded string (default)
// - bcrypt, for credentials created by older deployments
//
// The salt is generated per call and embedded in the encoded hash.
// Verify treats the stored hash as untrusted input: malformed strings and
// parameters far above the configured cost are rejected with ErrInvalidHash
// instead of being computed.
package password
