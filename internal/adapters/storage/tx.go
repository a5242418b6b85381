package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WriteTx runs fn in a transaction that holds the database write lock from
// its first statement, so a check and the write that depends on it cannot
// interleave with another writer.
//
// SQLite opens transactions DEFERRED, taking the write lock only at the
// first write; a transaction that reads first then fails with SQLITE_BUSY
// once another writer commits. WriteTx pins one connection and issues
// BEGIN IMMEDIATE, which waits on busy_timeout instead. On Postgres it is an
// ordinary transaction and callers lock the rows they check with ForUpdate.
// PRE: fn does not open nested transactions
// POST: fn's writes are committed together or not at all
func WriteTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db.Dialector.Name() != DriverSQLite {
		return db.WithContext(ctx).Transaction(fn)
	}
	err := db.WithContext(ctx).Connection(func(conn *gorm.DB) (err error) {
		pool := conn.Statement.ConnPool
		if _, err := pool.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			return TranslateError(err, nil, nil)
		}
		// finish even when ctx is gone, or the pooled connection keeps the lock
		finish := context.WithoutCancel(ctx)
		committed := false
		defer func() {
			if committed {
				return
			}
			_, rbErr := pool.ExecContext(finish, "ROLLBACK")
			if rbErr != nil && !strings.Contains(rbErr.Error(), "no transaction is active") {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}()

		if err := fn(conn.Session(&gorm.Session{Context: ctx, NewDB: true})); err != nil {
			return err
		}
		if _, err := pool.ExecContext(finish, "COMMIT"); err != nil {
			return TranslateError(err, nil, nil)
		}
		committed = true
		return nil
	})
	return TranslateError(err, nil, nil)
}

// ForUpdate locks the selected rows until the transaction ends. SQLite has
// no row locks and drops the clause; WriteTx already serialises writers there.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}
