package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kitchenhero/cmd/identity/ids"
	"kitchenhero/cmd/security/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPasswordHash = "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5"

// runStoreSuite checks the Store contract against one backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("CreateAndFind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := testNow()

		in := newTestCredential(t, "  Alice@Example.com ", now)
		in.SetRefresh(token.HashSHA256Hex("refresh-1"), now.Add(time.Hour))

		created, err := s.Create(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, int64(1), created.Version)
		assert.Equal(t, "alice@example.com", created.EmailNorm)

		byID, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assertSameCredential(t, created, byID)

		byEmail, err := s.FindByEmail(ctx, "ALICE@example.COM")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)

		byRefresh, err := s.FindByRefreshTokenHash(ctx, token.HashSHA256Hex("refresh-1"))
		require.NoError(t, err)
		assert.Equal(t, created.ID, byRefresh.ID)
		assert.True(t, byRefresh.HasActiveRefresh(now))
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := testNow()

		_, err := s.Create(ctx, newTestCredential(t, "bob@example.com", now))
		require.NoError(t, err)

		_, err = s.Create(ctx, newTestCredential(t, "BOB@example.com", now))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicateAccount)
		assert.True(t, IsConflict(err))
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.FindByID(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindByRefreshTokenHash(ctx, token.HashSHA256Hex("unknown"))
		assert.ErrorIs(t, err, ErrNotFound)

		ghost := newTestCredential(t, "ghost@example.com", testNow())
		ghost.Version = 1
		_, err = s.Update(ctx, ghost)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UpdateRotatesRefresh", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := testNow()

		in := newTestCredential(t, "carol@example.com", now)
		in.SetRefresh(token.HashSHA256Hex("old"), now.Add(time.Hour))
		cur, err := s.Create(ctx, in)
		require.NoError(t, err)

		cur.SetRefresh(token.HashSHA256Hex("new"), now.Add(2*time.Hour))
		cur.UpdatedAt = now.Add(time.Minute)
		next, err := s.Update(ctx, cur)
		require.NoError(t, err)
		assert.Equal(t, int64(2), next.Version)
		assert.Equal(t, token.HashSHA256Hex("new"), next.RefreshTokenHash)

		_, err = s.FindByRefreshTokenHash(ctx, token.HashSHA256Hex("old"))
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.FindByRefreshTokenHash(ctx, token.HashSHA256Hex("new"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		assert.True(t, got.UpdatedAt.Equal(now.Add(time.Minute)))
	})

	t.Run("ClearRefresh", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := testNow()

		in := newTestCredential(t, "dave@example.com", now)
		in.SetRefresh(token.HashSHA256Hex("dave"), now.Add(time.Hour))
		cur, err := s.Create(ctx, in)
		require.NoError(t, err)

		cur.ClearRefresh()
		next, err := s.Update(ctx, cur)
		require.NoError(t, err)
		assert.Empty(t, next.RefreshTokenHash)
		assert.Nil(t, next.RefreshTokenExpiry)

		_, err = s.FindByRefreshTokenHash(ctx, token.HashSHA256Hex("dave"))
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.FindByID(ctx, cur.ID)
		require.NoError(t, err)
		assert.False(t, got.HasActiveRefresh(now))
	})

	t.Run("StaleVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := testNow()

		cur, err := s.Create(ctx, newTestCredential(t, "erin@example.com", now))
		require.NoError(t, err)

		_, err = s.Update(ctx, cur)
		require.NoError(t, err)

		// Same version again: the first update already moved it forward.
		_, err = s.Update(ctx, cur)
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})

	t.Run("ConcurrentUpdatesOneWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := testNow()

		cur, err := s.Create(ctx, newTestCredential(t, "frank@example.com", now))
		require.NoError(t, err)

		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
			others  []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c := cur
				c.SetRefresh(token.HashSHA256Hex(string(rune('a'+i))), now.Add(time.Hour))
				_, err := s.Update(ctx, c)

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					winners++
					return
				}
				others = append(others, err)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, winners)
		for _, err := range others {
			assert.ErrorIs(t, err, ErrConcurrentModification)
		}

		got, err := s.FindByID(ctx, cur.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.FindByEmail(ctx, "x@example.com")
		assert.ErrorIs(t, err, ErrStorageUnavailable)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("InvalidInput", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Create(ctx, UserCredential{Email: "x@example.com", PasswordHash: testPasswordHash})
		assert.ErrorIs(t, err, ErrInvalidInput)

		c := newTestCredential(t, "y@example.com", testNow())
		c.RefreshTokenHash = token.HashSHA256Hex("half")
		_, err = s.Create(ctx, c)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func testNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func newTestCredential(t *testing.T, email string, now time.Time) UserCredential {
	t.Helper()
	id, err := ids.NewULID(now)
	require.NoError(t, err)
	return UserCredential{
		ID:           id,
		Email:        email,
		PasswordHash: testPasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func assertSameCredential(t *testing.T, want, got UserCredential) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.EmailNorm, got.EmailNorm)
	assert.Equal(t, want.PasswordHash, got.PasswordHash)
	assert.Equal(t, want.RefreshTokenHash, got.RefreshTokenHash)
	assert.Equal(t, want.Version, got.Version)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", want.CreatedAt, got.CreatedAt)
	if want.RefreshTokenExpiry == nil {
		assert.Nil(t, got.RefreshTokenExpiry)
	} else {
		require.NotNil(t, got.RefreshTokenExpiry)
		assert.True(t, want.RefreshTokenExpiry.Equal(*got.RefreshTokenExpiry))
	}
}
