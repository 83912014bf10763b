package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"kitchenhero/cmd/identity"
	"kitchenhero/cmd/security/password"

	"github.com/stretchr/testify/require"
)

const (
	testSigningKey = "test-signing-key-0123456789abcdef"
	testRefreshKey = "test-refresh-hmac-key-0123456789ab"
)

// testConfig keeps hashing cheap and the policy loose enough for short passwords.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SigningKey = testSigningKey
	cfg.RefreshHMACKey = testRefreshKey
	cfg.Password.Params = password.Argon2idParams{
		MemoryKiB:   8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.Password.BcryptCost = 4
	cfg.Password.Policy.MinLength = 3
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, cfg Config, store identity.Store, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	svc, err := NewService(cfg, store, opts...)
	require.NoError(t, err)
	return svc
}

var testEpoch = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// unknownUserID is a well-formed ULID that no test store holds.
const unknownUserID = "01HZY3M8Q0000000000000000Z"

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// failingStore fails every call with an unclassified driver error.
type failingStore struct{ err error }

func (f failingStore) FindByEmail(context.Context, string) (identity.UserCredential, error) {
	return identity.UserCredential{}, f.err
}

func (f failingStore) FindByID(context.Context, string) (identity.UserCredential, error) {
	return identity.UserCredential{}, f.err
}

func (f failingStore) FindByRefreshTokenHash(context.Context, string) (identity.UserCredential, error) {
	return identity.UserCredential{}, f.err
}

func (f failingStore) Create(context.Context, identity.UserCredential) (identity.UserCredential, error) {
	return identity.UserCredential{}, f.err
}

func (f failingStore) Update(context.Context, identity.UserCredential) (identity.UserCredential, error) {
	return identity.UserCredential{}, f.err
}

// racingStore lets a competing writer win once, right after the service
// reads a credential by refresh hash.
type racingStore struct {
	identity.Store
	once sync.Once
}

func (r *racingStore) FindByRefreshTokenHash(ctx context.Context, hash string) (identity.UserCredential, error) {
	c, err := r.Store.FindByRefreshTokenHash(ctx, hash)
	if err != nil {
		return c, err
	}
	r.once.Do(func() {
		other := c
		other.UpdatedAt = c.UpdatedAt.Add(time.Second)
		_, _ = r.Store.Update(ctx, other)
	})
	return c, nil
}
