package identity

import (
	"context"
	"time"
)

// TimeoutStore bounds every call on the wrapped Store with a deadline.
// A missed deadline surfaces as ErrStorageUnavailable through the inner store.
type TimeoutStore struct {
	inner   Store
	timeout time.Duration
}

// NewTimeoutStore wraps inner. A non-positive timeout returns inner unchanged.
func NewTimeoutStore(inner Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return inner
	}
	return &TimeoutStore{inner: inner, timeout: timeout}
}

func (s *TimeoutStore) FindByEmail(ctx context.Context, email string) (UserCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.FindByEmail(ctx, email)
}

func (s *TimeoutStore) FindByID(ctx context.Context, id string) (UserCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.FindByID(ctx, id)
}

func (s *TimeoutStore) FindByRefreshTokenHash(ctx context.Context, hash string) (UserCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.FindByRefreshTokenHash(ctx, hash)
}

func (s *TimeoutStore) Create(ctx context.Context, in UserCredential) (UserCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Create(ctx, in)
}

func (s *TimeoutStore) Update(ctx context.Context, in UserCredential) (UserCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Update(ctx, in)
}

// Ping forwards to the inner store when it implements Pinger.
func (s *TimeoutStore) Ping(ctx context.Context) error {
	p, ok := s.inner.(Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return p.Ping(ctx)
}
