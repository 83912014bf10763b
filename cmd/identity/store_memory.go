package identity

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. All reads and writes are serialized by
// one mutex, so Update's version check and write are atomic.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]UserCredential
	byEmail   map[string]string
	byRefresh map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]UserCredential),
		byEmail:   make(map[string]string),
		byRefresh: make(map[string]string),
	}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (UserCredential, error) {
	const op = "identity.FindByEmail"
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserCredential{}, notFound(op)
	}
	return cloneCredential(s.byID[id]), nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (UserCredential, error) {
	const op = "identity.FindByID"
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return UserCredential{}, notFound(op)
	}
	return cloneCredential(c), nil
}

func (s *MemoryStore) FindByRefreshTokenHash(ctx context.Context, hash string) (UserCredential, error) {
	const op = "identity.FindByRefreshTokenHash"
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	if hash == "" {
		return UserCredential{}, invalid(op, "missing hash")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRefresh[hash]
	if !ok {
		return UserCredential{}, notFound(op)
	}
	return cloneCredential(s.byID[id]), nil
}

func (s *MemoryStore) Create(ctx context.Context, in UserCredential) (UserCredential, error) {
	const op = "identity.Create"
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	c, err := prepareCreate(op, in)
	if err != nil {
		return UserCredential{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[c.EmailNorm]; taken {
		return UserCredential{}, ConflictError{Op: op, Field: "email"}
	}
	if _, taken := s.byID[c.ID]; taken {
		return UserCredential{}, ConflictError{Op: op, Field: "id"}
	}

	s.byID[c.ID] = cloneCredential(c)
	s.byEmail[c.EmailNorm] = c.ID
	if c.RefreshTokenHash != "" {
		s.byRefresh[c.RefreshTokenHash] = c.ID
	}
	return cloneCredential(c), nil
}

func (s *MemoryStore) Update(ctx context.Context, in UserCredential) (UserCredential, error) {
	const op = "identity.Update"
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	in, err := prepareUpdate(op, in)
	if err != nil {
		return UserCredential{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[in.ID]
	if !ok {
		return UserCredential{}, notFound(op)
	}
	if cur.Version != in.Version {
		return UserCredential{}, staleVersion(op)
	}

	if cur.RefreshTokenHash != "" {
		delete(s.byRefresh, cur.RefreshTokenHash)
	}

	next := cur
	next.PasswordHash = in.PasswordHash
	next.RefreshTokenHash = in.RefreshTokenHash
	next.RefreshTokenExpiry = in.RefreshTokenExpiry
	next.UpdatedAt = in.UpdatedAt
	next.Version = cur.Version + 1
	next = cloneCredential(next)

	s.byID[next.ID] = next
	if next.RefreshTokenHash != "" {
		s.byRefresh[next.RefreshTokenHash] = next.ID
	}
	return cloneCredential(next), nil
}

// Ping always succeeds unless ctx is done.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctxErr(ctx, "identity.Ping")
}
