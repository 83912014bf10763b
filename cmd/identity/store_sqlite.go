package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"kitchenhero/cmd/identity/migrations"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store over a single SQLite file (modernc driver, no cgo).
// Writes use compare-and-swap on the version column; SQLite serializes writers.
type SQLiteStore struct {
	db *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens (or creates) the database at path and applies embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("identity: sqlite path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("identity: open sqlite: %w", err)
	}
	// SQLite allows one writer at a time; one connection queues writers in
	// database/sql instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("identity: ping sqlite: %w", err)
	}
	if err := migrations.Up(ctx, db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sqliteUserColumns = `id, email, email_norm, password_hash, refresh_token_hash,
       refresh_token_expiry, created_at, updated_at, version`

func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (UserCredential, error) {
	const op = "identity.FindByEmail"
	return s.findOne(ctx, op, `email_norm = ?`, NormalizeEmail(email))
}

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (UserCredential, error) {
	const op = "identity.FindByID"
	return s.findOne(ctx, op, `id = ?`, strings.TrimSpace(id))
}

func (s *SQLiteStore) FindByRefreshTokenHash(ctx context.Context, hash string) (UserCredential, error) {
	const op = "identity.FindByRefreshTokenHash"
	if hash == "" {
		return UserCredential{}, invalid(op, "missing hash")
	}
	return s.findOne(ctx, op, `refresh_token_hash = ?`, hash)
}

func (s *SQLiteStore) findOne(ctx context.Context, op, where, value string) (UserCredential, error) {
	if s == nil || s.db == nil {
		return UserCredential{}, invalid(op, "nil store")
	}
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	if value == "" {
		return UserCredential{}, notFound(op)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users WHERE `+where, value)
	c, err := sqliteScanCredential(row)
	if err != nil {
		return UserCredential{}, sqliteClassify(op, err)
	}
	return c, nil
}

func (s *SQLiteStore) Create(ctx context.Context, in UserCredential) (UserCredential, error) {
	const op = "identity.Create"

	if s == nil || s.db == nil {
		return UserCredential{}, invalid(op, "nil store")
	}
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	c, err := prepareCreate(op, in)
	if err != nil {
		return UserCredential{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (
		     id, email, email_norm, password_hash, refresh_token_hash,
		     refresh_token_expiry, created_at, updated_at, version
		   ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Email,
		c.EmailNorm,
		c.PasswordHash,
		sqliteNullString(c.RefreshTokenHash),
		sqliteNullMillis(c.RefreshTokenExpiry),
		toMillis(c.CreatedAt),
		toMillis(c.UpdatedAt),
		c.Version,
	)
	if err != nil {
		return UserCredential{}, sqliteClassify(op, err)
	}
	return truncateMillis(c), nil
}

func (s *SQLiteStore) Update(ctx context.Context, in UserCredential) (UserCredential, error) {
	const op = "identity.Update"

	if s == nil || s.db == nil {
		return UserCredential{}, invalid(op, "nil store")
	}
	if err := ctxErr(ctx, op); err != nil {
		return UserCredential{}, err
	}
	in, err := prepareUpdate(op, in)
	if err != nil {
		return UserCredential{}, err
	}

	// RETURNING keeps the write and the read of the new row in one statement.
	row := s.db.QueryRowContext(ctx,
		`UPDATE users
		    SET password_hash = ?,
		        refresh_token_hash = ?,
		        refresh_token_expiry = ?,
		        updated_at = ?,
		        version = version + 1
		  WHERE id = ? AND version = ?
		RETURNING `+sqliteUserColumns,
		in.PasswordHash,
		sqliteNullString(in.RefreshTokenHash),
		sqliteNullMillis(in.RefreshTokenExpiry),
		toMillis(in.UpdatedAt),
		in.ID,
		in.Version,
	)
	next, err := sqliteScanCredential(row)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return UserCredential{}, sqliteClassify(op, err)
	}

	// No row: either the id is unknown or the version moved on.
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, in.ID).Scan(&exists)
	if err != nil {
		return UserCredential{}, sqliteClassify(op, err)
	}
	return UserCredential{}, staleVersion(op)
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	const op = "identity.Ping"
	if s == nil || s.db == nil {
		return invalid(op, "nil store")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// ---- helpers ----

func sqliteScanCredential(row *sql.Row) (UserCredential, error) {
	var (
		c           UserCredential
		refreshHash sql.NullString
		refreshExp  sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(
		&c.ID,
		&c.Email,
		&c.EmailNorm,
		&c.PasswordHash,
		&refreshHash,
		&refreshExp,
		&createdAt,
		&updatedAt,
		&c.Version,
	)
	if err != nil {
		return UserCredential{}, err
	}
	if refreshHash.Valid {
		c.RefreshTokenHash = refreshHash.String
	}
	if refreshExp.Valid {
		exp := fromMillis(refreshExp.Int64)
		c.RefreshTokenExpiry = &exp
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func sqliteNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func sqliteNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

// sqliteClassify maps database/sql and modernc errors to identity kinds.
func sqliteClassify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(op)
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		msg := sqliteErr.Error()
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return sqliteConflict(op, msg)
		case sqlite3lib.SQLITE_CONSTRAINT:
			if strings.Contains(msg, "UNIQUE") {
				return sqliteConflict(op, msg)
			}
			return OpError{Op: op, Kind: ErrInvalidInput, Err: err}
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK, sqlite3lib.SQLITE_CONSTRAINT_NOTNULL:
			return OpError{Op: op, Kind: ErrInvalidInput, Err: err}
		}
	}
	return unavailable(op, err)
}

func sqliteConflict(op, msg string) error {
	if strings.Contains(msg, "email_norm") {
		return ConflictError{Op: op, Field: "email"}
	}
	return ConflictError{Op: op, Field: "id"}
}
