package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open. They double as database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Open opens the store for the given driver and runs migrations.
// driver may be "sqlite" (dsn is a file path or ":memory:") or
// "postgres"/"pgx" (dsn is a connection URL).
func Open(ctx context.Context, driver, dsn string) (*sql.DB, string, error) {
	switch strings.ToLower(driver) {
	case "", DriverSQLite:
		conn, err := OpenDB(dsn)
		return conn, DriverSQLite, err
	case "postgres", "postgresql", DriverPostgres:
		conn, err := OpenPostgres(ctx, dsn)
		return conn, DriverPostgres, err
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenDB opens a SQLite database at the given path.
// If path is ":memory:", uses a single-connection in-memory database.
// File databases use WAL mode, enforce foreign keys on every pooled
// connection and take the write lock when a transaction begins.
// Runs migrations automatically.
func OpenDB(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_txlock=immediate"
	}

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Every new connection to :memory: is a fresh, empty database.
		db.SetMaxOpenConns(1)
	} else {
		// Enable WAL mode for better concurrent read performance
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting WAL mode: %w", err)
		}
	}

	// Enable foreign key enforcement
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

// OpenPostgres connects to a PostgreSQL database through the pgx stdlib
// driver, verifies connectivity and runs migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open(DriverPostgres, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
