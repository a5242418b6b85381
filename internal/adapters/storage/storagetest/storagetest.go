// Package storagetest opens throwaway databases for store tests.
package storagetest

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fellowship/internal/adapters/storage"
)

// ErrConnRefused is what an Unreachable database answers to pings.
var ErrConnRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

// Open returns an in-memory SQLite database with the given records migrated.
// The database is closed when the test ends.
func Open(t testing.TB, records ...any) *gorm.DB {
	t.Helper()
	db, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, DSN: ":memory:"}, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db, records...))
	t.Cleanup(func() { _ = storage.Close(db) })
	return db
}

// OpenFile returns a SQLite database in a temporary file with the default
// connection pool, so concurrent callers really run on separate connections.
func OpenFile(t testing.TB, records ...any) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fellowship.db")
	db, err := storage.Open(storage.Config{Driver: storage.DriverSQLite, DSN: path}, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db, records...))
	t.Cleanup(func() { _ = storage.Close(db) })
	return db
}

// Unreachable returns a Postgres-dialect handle backed by sqlmock whose
// pings fail with ErrConnRefused and whose queries are all unexpected.
func Unreachable(t testing.TB) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		mock.ExpectPing().WillReturnError(ErrConnRefused)
	}
	return db, mock
}

// Closed returns an in-memory SQLite database that has already been closed.
func Closed(t testing.TB, records ...any) *gorm.DB {
	t.Helper()
	db := Open(t, records...)
	require.NoError(t, storage.Close(db))
	return db
}
