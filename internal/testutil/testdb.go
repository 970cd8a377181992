package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/alexanderramin/branchplan/internal/db"
)

// NewTestDB returns a migrated in-memory SQLite database closed at test end.
// It holds a single connection, so a transaction blocks every other query.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return openTestDB(t, ":memory:")
}

// NewFileTestDB returns a migrated SQLite file in t.TempDir. Every pooled
// connection sees the same data, which concurrency tests need.
func NewFileTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return openTestDB(t, filepath.Join(t.TempDir(), "branchplan_test.db"))
}

// NewTestUoW returns the SQLite unit of work over database.
func NewTestUoW(database *sql.DB) db.UnitOfWork {
	return db.NewSQLiteUnitOfWork(database)
}

func openTestDB(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(dsn)
	if err != nil {
		t.Fatalf("opening test database %s: %v", dsn, err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}
