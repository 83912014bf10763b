package session

import (
	"errors"

	"kitchenhero/cmd/identity"
)

var (
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike, so callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken is returned when a refresh token is unknown,
	// already rotated, revoked or expired.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrCorruptCredential is returned when a stored password hash cannot be parsed.
	ErrCorruptCredential = errors.New("corrupt credential")

	// ErrMisconfiguration is returned at construction for unusable configuration.
	ErrMisconfiguration = errors.New("session misconfiguration")
)

// Storage kinds, re-exported so callers can match them without importing identity.
var (
	ErrDuplicateAccount       = identity.ErrDuplicateAccount
	ErrConcurrentModification = identity.ErrConcurrentModification
	ErrStorageUnavailable     = identity.ErrStorageUnavailable
	ErrNotFound               = identity.ErrNotFound
	ErrInvalidInput           = identity.ErrInvalidInput
)
