package identity

import (
	"context"
	"time"
)

// UserCredential is the persisted credential record for one account.
// IMPORTANT: RefreshTokenHash is stored server-side; the plain refresh token is never stored.
type UserCredential struct {
	ID        string
	Email     string
	EmailNorm string

	// PasswordHash is a self-describing encoded hash; the salt lives inside it.
	PasswordHash string

	// At most one live refresh token per user. Empty hash and nil expiry mean none.
	RefreshTokenHash   string
	RefreshTokenExpiry *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version is the optimistic concurrency counter. Create sets it to 1 and
	// every successful Update increments it.
	Version int64
}

// User is the public projection of a credential. It never carries a hash.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Public returns the public projection of c.
func (c UserCredential) Public() User {
	return User{ID: c.ID, Email: c.Email, CreatedAt: c.CreatedAt}
}

// HasActiveRefresh reports whether c holds a refresh token that is still
// usable at now. A token is unusable once now >= expiry.
func (c UserCredential) HasActiveRefresh(now time.Time) bool {
	if c.RefreshTokenHash == "" || c.RefreshTokenExpiry == nil {
		return false
	}
	return now.Before(*c.RefreshTokenExpiry)
}

// SetRefresh overwrites the outstanding refresh token.
func (c *UserCredential) SetRefresh(hash string, expiresAt time.Time) {
	exp := expiresAt.UTC()
	c.RefreshTokenHash = hash
	c.RefreshTokenExpiry = &exp
}

// ClearRefresh drops the outstanding refresh token.
func (c *UserCredential) ClearRefresh() {
	c.RefreshTokenHash = ""
	c.RefreshTokenExpiry = nil
}

// Store is the credential persistence boundary.
//
// Contract shared by every implementation:
// - Lookups return an error matching ErrNotFound when no row exists.
// - Create fails with a ConflictError (ErrDuplicateAccount) when EmailNorm is taken.
// - Update applies only when the stored Version equals in.Version; otherwise it
//   returns ErrConcurrentModification. The returned record carries the new Version.
// - Update persists PasswordHash, the refresh pair, and UpdatedAt. Email is immutable.
// - Transport, timeout and cancellation failures match ErrStorageUnavailable.
type Store interface {
	FindByEmail(ctx context.Context, email string) (UserCredential, error)
	FindByID(ctx context.Context, id string) (UserCredential, error)
	FindByRefreshTokenHash(ctx context.Context, hash string) (UserCredential, error)
	Create(ctx context.Context, in UserCredential) (UserCredential, error)
	Update(ctx context.Context, in UserCredential) (UserCredential, error)
}

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// prepareCreate validates and normalizes a record before insertion.
func prepareCreate(op string, in UserCredential) (UserCredential, error) {
	if in.ID == "" {
		return UserCredential{}, invalid(op, "missing id")
	}
	if in.EmailNorm == "" {
		in.EmailNorm = NormalizeEmail(in.Email)
	}
	if in.EmailNorm == "" {
		return UserCredential{}, invalid(op, "missing email")
	}
	if in.PasswordHash == "" {
		return UserCredential{}, invalid(op, "missing password hash")
	}
	if (in.RefreshTokenHash == "") != (in.RefreshTokenExpiry == nil) {
		return UserCredential{}, invalid(op, "refresh hash and expiry must be set together")
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = in.CreatedAt
	}
	in.CreatedAt = in.CreatedAt.UTC()
	in.UpdatedAt = in.UpdatedAt.UTC()
	in.Version = 1
	return in, nil
}

// prepareUpdate validates an update request.
func prepareUpdate(op string, in UserCredential) (UserCredential, error) {
	if in.ID == "" {
		return UserCredential{}, invalid(op, "missing id")
	}
	if in.PasswordHash == "" {
		return UserCredential{}, invalid(op, "missing password hash")
	}
	if in.Version < 1 {
		return UserCredential{}, invalid(op, "missing version")
	}
	if (in.RefreshTokenHash == "") != (in.RefreshTokenExpiry == nil) {
		return UserCredential{}, invalid(op, "refresh hash and expiry must be set together")
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = time.Now().UTC()
	}
	in.UpdatedAt = in.UpdatedAt.UTC()
	return in, nil
}

// ctxErr converts a done context into ErrStorageUnavailable.
func ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func cloneCredential(c UserCredential) UserCredential {
	if c.RefreshTokenExpiry != nil {
		exp := *c.RefreshTokenExpiry
		c.RefreshTokenExpiry = &exp
	}
	return c
}

// truncateMillis rounds c's timestamps to the millisecond precision the
// SQLite and Redis backends store.
func truncateMillis(c UserCredential) UserCredential {
	c = cloneCredential(c)
	c.CreatedAt = time.UnixMilli(c.CreatedAt.UnixMilli()).UTC()
	c.UpdatedAt = time.UnixMilli(c.UpdatedAt.UnixMilli()).UTC()
	if c.RefreshTokenExpiry != nil {
		exp := time.UnixMilli(c.RefreshTokenExpiry.UnixMilli()).UTC()
		c.RefreshTokenExpiry = &exp
	}
	return c
}
