package db

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// DBTX is the common interface satisfied by both *sql.DB and *sql.Tx.
// Repository implementations depend on this interface instead of the
// concrete *sql.DB, enabling transactional composition.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Compile-time verification that *sql.DB and *sql.Tx satisfy DBTX.
var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
	_ DBTX = (*boundDBTX)(nil)
)

// Bind adapts conn to the placeholder style of driverName. Repositories
// write queries with '?' placeholders; drivers that expect another style
// (pgx wants $1, $2, ...) get the query rebound on the way through.
func Bind(conn DBTX, driverName string) DBTX {
	bindType := sqlx.BindType(driverName)
	if bindType == sqlx.QUESTION || bindType == sqlx.UNKNOWN {
		return conn
	}
	return &boundDBTX{conn: conn, bindType: bindType}
}

type boundDBTX struct {
	conn     DBTX
	bindType int
}

func (b *boundDBTX) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return b.conn.ExecContext(ctx, sqlx.Rebind(b.bindType, query), args...)
}

func (b *boundDBTX) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return b.conn.QueryContext(ctx, sqlx.Rebind(b.bindType, query), args...)
}

func (b *boundDBTX) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return b.conn.QueryRowContext(ctx, sqlx.Rebind(b.bindType, query), args...)
}
