// Package identity holds kitchenhero's credential records and the Store
// boundary the session layer persists them through.
//
// Four Store backends ship with the package: an in-memory store for tests and
// single-process use, PostgreSQL (pgxpool), SQLite (modernc) and Redis.
// Every backend classifies driver errors into the sentinel kinds in kinds.go,
// so callers never inspect driver types.
package identity
