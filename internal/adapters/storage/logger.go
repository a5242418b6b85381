package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQuery is the threshold above which a query is logged at warn.
const DefaultSlowQuery = 50 * time.Millisecond

// gormLogger routes gorm's logging through zap.
type gormLogger struct {
	log       *zap.SugaredLogger
	level     gormlogger.LogLevel
	slowQuery time.Duration
}

// NewGormLogger adapts a zap logger for gorm. Record-not-found is not logged;
// stores translate it into a domain error.
// PRE: log may be nil (nop logger is used)
func NewGormLogger(log *zap.SugaredLogger, slowQuery time.Duration) gormlogger.Interface {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if slowQuery <= 0 {
		slowQuery = DefaultSlowQuery
	}
	return &gormLogger{log: log, level: gormlogger.Warn, slowQuery: slowQuery}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Infow("db_event", "msg", fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warnw("db_event", "msg", fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Errorw("db_event", "msg", fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	durationMs := float64(elapsed.Microseconds()) / 1000.0
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.log.Errorw("query_failed", "sql", sql, "rows", rows, "duration_ms", durationMs, "error", err)
	case elapsed >= l.slowQuery && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warnw("slow_query", "sql", sql, "rows", rows, "duration_ms", durationMs)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Debugw("query", "sql", sql, "rows", rows, "duration_ms", durationMs)
	}
}
