// Package session implements kitchenhero's credential lifecycle:
// register, login, refresh rotation and revocation.
//
// Access tokens are short-lived HS256 JWTs validated without a store lookup.
// Refresh tokens are opaque random strings; only their HMAC-SHA256 is stored
// (see security/token), and every successful refresh replaces the stored hash
// under the credential's optimistic version, so a spent token never works twice.
//
// Transport (HTTP/gRPC) integration is intentionally out of scope here.
package session
