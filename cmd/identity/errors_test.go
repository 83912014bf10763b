package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOpError_UnwrapsKindAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("outer: %w", unavailable("identity.FindByID", cause))

	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "identity.FindByID")

	var op OpError
	assert.True(t, errors.As(err, &op))
	assert.Equal(t, "identity.FindByID", op.Op)
}

func TestConflictError_IsDuplicateAccount(t *testing.T) {
	t.Parallel()

	err := ConflictError{Op: "identity.Create", Field: "email"}
	assert.ErrorIs(t, err, ErrDuplicateAccount)
	assert.True(t, IsConflict(err))
	assert.Equal(t, "identity.Create: duplicate_account: email", err.Error())
}

func TestIsClassified(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", notFound("op"), true},
		{"conflict", ConflictError{Op: "op"}, true},
		{"stale", staleVersion("op"), true},
		{"unavailable", unavailable("op", errors.New("x")), true},
		{"invalid", invalid("op", "x"), true},
		{"raw", errors.New("boom"), false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsClassified(tc.err))
		})
	}
}

func TestUserCredential_RefreshLifecycle(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var c UserCredential
	assert.False(t, c.HasActiveRefresh(now))

	c.SetRefresh("h", now.Add(time.Second))
	assert.True(t, c.HasActiveRefresh(now))
	// Unusable once now >= expiry.
	assert.False(t, c.HasActiveRefresh(now.Add(time.Second)))

	c.ClearRefresh()
	assert.False(t, c.HasActiveRefresh(now))
	assert.Nil(t, c.RefreshTokenExpiry)
}

func TestUserCredential_Public(t *testing.T) {
	t.Parallel()

	c := UserCredential{ID: "id", Email: "a@b.c", PasswordHash: "secret", RefreshTokenHash: "h"}
	u := c.Public()
	assert.Equal(t, User{ID: "id", Email: "a@b.c"}, u)
}

func TestTimeoutStore_Deadline(t *testing.T) {
	t.Parallel()

	s := NewTimeoutStore(blockingStore{}, 10*time.Millisecond)
	_, err := s.FindByID(context.Background(), "x")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, Store(blockingStore{}), NewTimeoutStore(blockingStore{}, 0))
}

// blockingStore waits for ctx on every call.
type blockingStore struct{}

func (blockingStore) wait(ctx context.Context, op string) (UserCredential, error) {
	<-ctx.Done()
	return UserCredential{}, unavailable(op, ctx.Err())
}

func (b blockingStore) FindByEmail(ctx context.Context, _ string) (UserCredential, error) {
	return b.wait(ctx, "FindByEmail")
}

func (b blockingStore) FindByID(ctx context.Context, _ string) (UserCredential, error) {
	return b.wait(ctx, "FindByID")
}

func (b blockingStore) FindByRefreshTokenHash(ctx context.Context, _ string) (UserCredential, error) {
	return b.wait(ctx, "FindByRefreshTokenHash")
}

func (b blockingStore) Create(ctx context.Context, _ UserCredential) (UserCredential, error) {
	return b.wait(ctx, "Create")
}

func (b blockingStore) Update(ctx context.Context, _ UserCredential) (UserCredential, error) {
	return b.wait(ctx, "Update")
}
