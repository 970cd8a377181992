package repository

import (
	"errors"
	"strings"

	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Repository errors alias the domain sentinels so callers can classify
// storage failures with domain.KindOf.
var (
	ErrNotFound       = domain.ErrNotFound
	ErrConflict       = domain.ErrConflict
	ErrDataCorruption = domain.ErrDataCorruption
)

// pgUniqueViolation is the SQLSTATE postgres reports for a duplicate key.
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err comes from a unique index or primary
// key rejecting a row, on either supported driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}
