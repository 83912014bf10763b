package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Update is serialized via SELECT ... FOR UPDATE on the user row, then a version check.
// - Errors are mapped to identity sentinel kinds.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "public").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const pgUserColumns = `id, email, email_norm, password_hash, refresh_token_hash,
       refresh_token_expiry, created_at, updated_at, version`

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (UserCredential, error) {
	const op = "identity.FindByEmail"
	return s.findOne(ctx, op, "email_norm", NormalizeEmail(email))
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (UserCredential, error) {
	const op = "identity.FindByID"
	return s.findOne(ctx, op, "id", strings.TrimSpace(id))
}

func (s *PostgresStore) FindByRefreshTokenHash(ctx context.Context, hash string) (UserCredential, error) {
	const op = "identity.FindByRefreshTokenHash"
	if hash == "" {
		return UserCredential{}, invalid(op, "missing hash")
	}
	return s.findOne(ctx, op, "refresh_token_hash", hash)
}

func (s *PostgresStore) findOne(ctx context.Context, op, column, value string) (UserCredential, error) {
	if s == nil || s.pool == nil {
		return UserCredential{}, invalid(op, "nil store")
	}
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	if value == "" {
		return UserCredential{}, notFound(op)
	}

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+`
		   FROM `+users+`
		  WHERE `+pgx.Identifier{column}.Sanitize()+` = $1`,
		value,
	)
	c, err := pgScanCredential(row)
	if err != nil {
		return UserCredential{}, pgClassify(op, err)
	}
	return c, nil
}

func (s *PostgresStore) Create(ctx context.Context, in UserCredential) (UserCredential, error) {
	const op = "identity.Create"

	if s == nil || s.pool == nil {
		return UserCredential{}, invalid(op, "nil store")
	}
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	c, err := prepareCreate(op, in)
	if err != nil {
		return UserCredential{}, err
	}

	users := pgIdent(s.schema, "users")
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, email, email_norm, password_hash, refresh_token_hash,
		     refresh_token_expiry, created_at, updated_at, version
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID,
		c.Email,
		c.EmailNorm,
		c.PasswordHash,
		pgNullString(c.RefreshTokenHash),
		c.RefreshTokenExpiry,
		c.CreatedAt,
		c.UpdatedAt,
		c.Version,
	)
	if err != nil {
		return UserCredential{}, pgClassify(op, err)
	}
	return pgTruncate(c), nil
}

func (s *PostgresStore) Update(ctx context.Context, in UserCredential) (UserCredential, error) {
	const op = "identity.Update"

	if s == nil || s.pool == nil {
		return UserCredential{}, invalid(op, "nil store")
	}
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	in, err := prepareUpdate(op, in)
	if err != nil {
		return UserCredential{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return UserCredential{}, pgClassify(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")

	// Lock the row so concurrent updates serialize on it.
	cur, err := pgScanCredential(tx.QueryRow(ctx,
		`SELECT `+pgUserColumns+`
		   FROM `+users+`
		  WHERE id = $1
		  FOR UPDATE`,
		in.ID,
	))
	if err != nil {
		return UserCredential{}, pgClassify(op, err)
	}
	if cur.Version != in.Version {
		return UserCredential{}, staleVersion(op)
	}

	next := cur
	next.PasswordHash = in.PasswordHash
	next.RefreshTokenHash = in.RefreshTokenHash
	next.RefreshTokenExpiry = in.RefreshTokenExpiry
	next.UpdatedAt = in.UpdatedAt
	next.Version = cur.Version + 1

	tag, err := tx.Exec(ctx,
		`UPDATE `+users+`
		    SET password_hash = $2,
		        refresh_token_hash = $3,
		        refresh_token_expiry = $4,
		        updated_at = $5,
		        version = $6
		  WHERE id = $1 AND version = $7`,
		next.ID,
		next.PasswordHash,
		pgNullString(next.RefreshTokenHash),
		next.RefreshTokenExpiry,
		next.UpdatedAt,
		next.Version,
		cur.Version,
	)
	if err != nil {
		return UserCredential{}, pgClassify(op, err)
	}
	if tag.RowsAffected() != 1 {
		return UserCredential{}, staleVersion(op)
	}

	if err := tx.Commit(ctx); err != nil {
		return UserCredential{}, pgClassify(op, err)
	}
	return pgTruncate(next), nil
}

// Ping checks pool connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	const op = "identity.Ping"
	if s == nil || s.pool == nil {
		return invalid(op, "nil store")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// ---- helpers ----

func pgScanCredential(row pgx.Row) (UserCredential, error) {
	var (
		c           UserCredential
		refreshHash *string
		refreshExp  *time.Time
	)
	err := row.Scan(
		&c.ID,
		&c.Email,
		&c.EmailNorm,
		&c.PasswordHash,
		&refreshHash,
		&refreshExp,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.Version,
	)
	if err != nil {
		return UserCredential{}, err
	}
	if refreshHash != nil {
		c.RefreshTokenHash = *refreshHash
	}
	if refreshExp != nil {
		exp := refreshExp.UTC()
		c.RefreshTokenExpiry = &exp
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// pgTruncate rounds timestamps to TIMESTAMPTZ precision (microseconds).
func pgTruncate(c UserCredential) UserCredential {
	c = cloneCredential(c)
	c.CreatedAt = c.CreatedAt.Truncate(time.Microsecond)
	c.UpdatedAt = c.UpdatedAt.Truncate(time.Microsecond)
	if c.RefreshTokenExpiry != nil {
		exp := c.RefreshTokenExpiry.Truncate(time.Microsecond)
		c.RefreshTokenExpiry = &exp
	}
	return c
}

func pgNullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// pgClassify maps pgx/pgconn errors to identity kinds.
func pgClassify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(op)
	}
	if field, ok := pgClassifyUniqueViolation(err); ok {
		return ConflictError{Op: op, Field: field}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return OpError{Op: op, Kind: ErrConcurrentModification, Err: err}
		case "23514", "22001": // check_violation, string_data_right_truncation
			return OpError{Op: op, Kind: ErrInvalidInput, Err: err}
		}
	}
	return unavailable(op, err)
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to heuristic substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_email_norm":
		return "email", true
	case "users_pkey":
		return "id", true
	default:
		if strings.Contains(c, "email") {
			return "email", true
		}
		return "unique", true
	}
}
