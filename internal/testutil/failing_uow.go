package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/alexanderramin/branchplan/internal/db"
)

// FailOnNthExecUoW runs transactions like the real unit of work but makes
// the FailOn-th write statement return Err, so tests can check that a
// multi-write operation leaves nothing behind.
//
// Writes are ExecContext calls, counted from 1. With Match set only writes
// whose SQL contains Match are counted. Reads are never failed.
type FailOnNthExecUoW struct {
	DB     *sql.DB
	FailOn int32
	Match  string
	Err    error
}

func (u *FailOnNthExecUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	tx, err := u.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	faulty := &faultyTx{DBTX: tx, failOn: u.FailOn, match: u.Match, err: u.Err}
	if err := fn(ctx, faulty); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type faultyTx struct {
	db.DBTX
	writes atomic.Int32
	failOn int32
	match  string
	err    error
}

func (f *faultyTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if f.match == "" || strings.Contains(query, f.match) {
		if f.writes.Add(1) == f.failOn {
			return nil, f.err
		}
	}
	return f.DBTX.ExecContext(ctx, query, args...)
}
