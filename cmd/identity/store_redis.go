package identity

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key the Redis store writes.
const DefaultRedisPrefix = "kh:identity:"

const redisCreateAttempts = 3

// RedisStore implements Store over Redis.
//
// Layout:
// - <prefix>user:<id>       hash with the credential fields
// - <prefix>email:<norm>    string -> id
// - <prefix>refresh:<hash>  string -> id, expiring with the refresh token
//
// Writes WATCH the keys they depend on and commit with MULTI/EXEC, so a
// concurrent writer makes the transaction fail instead of interleaving.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. An empty prefix selects DefaultRedisPrefix.
// The client is owned by the caller.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) userKey(id string) string      { return s.prefix + "user:" + id }
func (s *RedisStore) emailKey(norm string) string   { return s.prefix + "email:" + norm }
func (s *RedisStore) refreshKey(hash string) string { return s.prefix + "refresh:" + hash }

func (s *RedisStore) FindByEmail(ctx context.Context, email string) (UserCredential, error) {
	const op = "identity.FindByEmail"
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	norm := NormalizeEmail(email)
	if norm == "" {
		return UserCredential{}, notFound(op)
	}

	id, err := s.client.Get(ctx, s.emailKey(norm)).Result()
	if err != nil {
		return UserCredential{}, redisClassify(op, err)
	}
	return s.load(ctx, s.client, op, id)
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (UserCredential, error) {
	const op = "identity.FindByID"
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return UserCredential{}, notFound(op)
	}
	return s.load(ctx, s.client, op, id)
}

func (s *RedisStore) FindByRefreshTokenHash(ctx context.Context, hash string) (UserCredential, error) {
	const op = "identity.FindByRefreshTokenHash"
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	if hash == "" {
		return UserCredential{}, invalid(op, "missing hash")
	}

	id, err := s.client.Get(ctx, s.refreshKey(hash)).Result()
	if err != nil {
		return UserCredential{}, redisClassify(op, err)
	}
	c, err := s.load(ctx, s.client, op, id)
	if err != nil {
		return UserCredential{}, err
	}
	if c.RefreshTokenHash != hash {
		return UserCredential{}, notFound(op)
	}
	return c, nil
}

func (s *RedisStore) Create(ctx context.Context, in UserCredential) (UserCredential, error) {
	const op = "identity.Create"
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	c, err := prepareCreate(op, in)
	if err != nil {
		return UserCredential{}, err
	}

	userKey := s.userKey(c.ID)
	emailKey := s.emailKey(c.EmailNorm)

	txf := func(tx *redis.Tx) error {
		taken, err := tx.Exists(ctx, emailKey).Result()
		if err != nil {
			return err
		}
		if taken > 0 {
			return ConflictError{Op: op, Field: "email"}
		}
		taken, err = tx.Exists(ctx, userKey).Result()
		if err != nil {
			return err
		}
		if taken > 0 {
			return ConflictError{Op: op, Field: "id"}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, userKey, redisFields(c))
			pipe.Set(ctx, emailKey, c.ID, 0)
			if c.RefreshTokenHash != "" {
				s.setRefreshIndex(ctx, pipe, c)
			}
			return nil
		})
		return err
	}

	// A lost WATCH on Create means someone else wrote one of our keys; the
	// retry then observes the conflict.
	for attempt := 0; attempt < redisCreateAttempts; attempt++ {
		err = s.client.Watch(ctx, txf, emailKey, userKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if IsConflict(err) {
			return UserCredential{}, err
		}
		return UserCredential{}, redisClassify(op, err)
	}
	return truncateMillis(c), nil
}

func (s *RedisStore) Update(ctx context.Context, in UserCredential) (UserCredential, error) {
	const op = "identity.Update"
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	in, err := prepareUpdate(op, in)
	if err != nil {
		return UserCredential{}, err
	}

	userKey := s.userKey(in.ID)
	var next UserCredential

	txf := func(tx *redis.Tx) error {
		cur, err := s.load(ctx, tx, op, in.ID)
		if err != nil {
			return err
		}
		if cur.Version != in.Version {
			return staleVersion(op)
		}

		next = cur
		next.PasswordHash = in.PasswordHash
		next.RefreshTokenHash = in.RefreshTokenHash
		next.RefreshTokenExpiry = in.RefreshTokenExpiry
		next.UpdatedAt = in.UpdatedAt
		next.Version = cur.Version + 1

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, userKey, redisFields(next))
			if next.RefreshTokenHash == "" {
				pipe.HDel(ctx, userKey, "refresh_token_hash", "refresh_token_expiry")
			}
			if cur.RefreshTokenHash != "" && cur.RefreshTokenHash != next.RefreshTokenHash {
				pipe.Del(ctx, s.refreshKey(cur.RefreshTokenHash))
			}
			if next.RefreshTokenHash != "" {
				s.setRefreshIndex(ctx, pipe, next)
			}
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txf, userKey); err != nil {
		if IsClassified(err) {
			return UserCredential{}, err
		}
		return UserCredential{}, redisClassify(op, err)
	}
	return truncateMillis(next), nil
}

// Ping checks server reachability.
func (s *RedisStore) Ping(ctx context.Context) error {
	const op = "identity.Ping"
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (s *RedisStore) setRefreshIndex(ctx context.Context, pipe redis.Pipeliner, c UserCredential) {
	key := s.refreshKey(c.RefreshTokenHash)
	pipe.Set(ctx, key, c.ID, 0)
	pipe.PExpireAt(ctx, key, *c.RefreshTokenExpiry)
}

func (s *RedisStore) load(ctx context.Context, r redisHashReader, op, id string) (UserCredential, error) {
	fields, err := r.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return UserCredential{}, redisClassify(op, err)
	}
	if len(fields) == 0 {
		return UserCredential{}, notFound(op)
	}
	c, err := redisParse(fields)
	if err != nil {
		return UserCredential{}, OpError{Op: op, Kind: ErrStorageUnavailable, Msg: "corrupt record", Err: err}
	}
	return c, nil
}

// ---- helpers ----

// redisHashReader is satisfied by both the client and a WATCH transaction.
type redisHashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func redisFields(c UserCredential) map[string]any {
	m := map[string]any{
		"id":            c.ID,
		"email":         c.Email,
		"email_norm":    c.EmailNorm,
		"password_hash": c.PasswordHash,
		"created_at":    toMillis(c.CreatedAt),
		"updated_at":    toMillis(c.UpdatedAt),
		"version":       c.Version,
	}
	if c.RefreshTokenHash != "" && c.RefreshTokenExpiry != nil {
		m["refresh_token_hash"] = c.RefreshTokenHash
		m["refresh_token_expiry"] = toMillis(*c.RefreshTokenExpiry)
	}
	return m
}

func redisParse(m map[string]string) (UserCredential, error) {
	var (
		c   UserCredential
		err error
	)
	c.ID = m["id"]
	c.Email = m["email"]
	c.EmailNorm = m["email_norm"]
	c.PasswordHash = m["password_hash"]

	if c.Version, err = strconv.ParseInt(m["version"], 10, 64); err != nil {
		return UserCredential{}, err
	}
	created, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return UserCredential{}, err
	}
	updated, err := strconv.ParseInt(m["updated_at"], 10, 64)
	if err != nil {
		return UserCredential{}, err
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)

	if h := m["refresh_token_hash"]; h != "" {
		exp, err := strconv.ParseInt(m["refresh_token_expiry"], 10, 64)
		if err != nil {
			return UserCredential{}, err
		}
		t := fromMillis(exp)
		c.RefreshTokenHash = h
		c.RefreshTokenExpiry = &t
	}
	return c, nil
}

// redisClassify maps go-redis errors to identity kinds.
func redisClassify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return notFound(op)
	case errors.Is(err, redis.TxFailedErr):
		return OpError{Op: op, Kind: ErrConcurrentModification, Err: err}
	default:
		return unavailable(op, err)
	}
}
