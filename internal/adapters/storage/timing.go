package storage

import (
	"time"

	"gorm.io/gorm"

	"fellowship/internal/adapters/http/perf"
)

const timerStartKey = "fellowship:query_start"

// QueryObserver receives one observation per completed statement.
type QueryObserver interface {
	ObserveQuery(table, operation string, elapsed time.Duration, failed bool)
}

// QueryTimer is a gorm plugin that records statement latency to the perf
// collector and an optional observer (Prometheus). Both may be nil.
type QueryTimer struct {
	Collector *perf.Collector
	Observer  QueryObserver
}

// Name implements gorm.Plugin.
func (QueryTimer) Name() string { return "fellowship:query_timer" }

// Initialize registers before/after callbacks around every gorm processor.
// PRE: db is a freshly opened *gorm.DB
// POST: every create/query/update/delete/row/raw statement is timed
func (q QueryTimer) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	type hook struct {
		op     string
		before func(name string, fn func(*gorm.DB)) error
		after  func(name string, fn func(*gorm.DB)) error
	}
	hooks := []hook{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before("timer:before_"+h.op, start); err != nil {
			return err
		}
		if err := h.after("timer:after_"+h.op, q.finish(h.op)); err != nil {
			return err
		}
	}
	return nil
}

func start(db *gorm.DB) {
	db.InstanceSet(timerStartKey, time.Now())
}

func (q QueryTimer) finish(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(timerStartKey)
		if !ok {
			return
		}
		began, ok := v.(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(began)
		table := db.Statement.Table
		if table == "" {
			table = "raw"
		}
		q.Collector.Record(perf.Entry{
			Kind:     perf.KindQuery,
			Key:      table + "." + op,
			Duration: elapsed,
			At:       began,
		})
		if q.Observer != nil {
			q.Observer.ObserveQuery(table, op, elapsed, db.Error != nil)
		}
	}
}
