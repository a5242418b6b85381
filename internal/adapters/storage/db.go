package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"fellowship/internal/domain/apperr"
)

// Driver names accepted in Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config describes how to reach the relational store.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
}

// ParseDatabaseURL maps a DATABASE_URL value onto a driver and DSN.
// postgres:// and postgresql:// select Postgres; sqlite://path, a bare path
// or :memory: select SQLite.
// PRE: none
// POST: returns a non-empty driver; DSN may be empty only for empty input
func ParseDatabaseURL(raw string) (driver, dsn string) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DriverPostgres, raw
	case strings.HasPrefix(raw, "host="):
		return DriverPostgres, raw
	case strings.HasPrefix(raw, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(raw, "sqlite://")
	default:
		return DriverSQLite, raw
	}
}

// sqliteDSN appends the pragmas every SQLite connection needs. Times are
// written in a sortable layout so range filters compare correctly.
func sqliteDSN(path string) string {
	if path == "" {
		path = "fellowship.db"
	}
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if path != ":memory:" {
		pragmas += "&_pragma=journal_mode(WAL)"
	}
	return path + sep + pragmas
}

// Open connects to the configured store, applies pool settings and verifies
// the connection with a bounded ping.
// PRE: cfg.Driver is sqlite or postgres
// POST: returns a ready *gorm.DB or an error wrapping apperr.ErrUnavailable
func Open(cfg Config, log *zap.SugaredLogger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 NewGormLogger(log, cfg.SlowQuery),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUnavailable, "failed to open database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	if cfg.Driver != DriverPostgres && strings.HasPrefix(cfg.DSN, ":memory:") {
		// every pooled connection to :memory: would be a separate database
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	sqlDB.SetMaxIdleConns(maxIdle)
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Ping(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Ping checks that the store is reachable.
// POST: returns nil or an error wrapping apperr.ErrUnavailable
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return apperr.Wrap(apperr.ErrUnavailable, "database unavailable", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperr.Wrap(apperr.ErrUnavailable, "database unavailable", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates the tables for the given records.
// PRE: db is connected
// POST: every table exists with its indexes
func Migrate(db *gorm.DB, records ...any) error {
	if err := db.AutoMigrate(records...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
