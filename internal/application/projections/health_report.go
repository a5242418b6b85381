package projections

import (
	"context"
	"time"

	"go.uber.org/zap"

	auditStore "fellowship/internal/adapters/storage/audit"
	"fellowship/internal/domain/member"
)

// Report statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Check statuses.
const (
	CheckPass = "pass"
	CheckWarn = "warn"
	CheckFail = "fail"
)

const (
	pingTimeout        = 2 * time.Second
	upcomingWindow     = 30 * 24 * time.Hour
	recentAuditWindow  = 24 * time.Hour
	maxDailyAuditCount = 5000
)

// HealthCounts are the figures shown on the admin dashboard. A nil field
// could not be computed.
type HealthCounts struct {
	ActiveMembers       *int64 `json:"active_members"`
	UpcomingEvents      *int64 `json:"upcoming_events"`
	UnreadAnnouncements *int64 `json:"unread_announcements"`
	RecentAuditEntries  *int64 `json:"recent_audit_entries"`
}

// HealthCheck is one named pass/warn/fail line.
type HealthCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthReport is the aggregated system status.
type HealthReport struct {
	Status         string        `json:"status"`
	StoreReachable bool          `json:"store_reachable"`
	Counts         HealthCounts  `json:"counts"`
	Checks         []HealthCheck `json:"checks"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// Degraded reports whether the report is not ok.
func (r HealthReport) Degraded() bool {
	return r.Status != StatusOK
}

// HealthAuditCounter counts audit entries.
type HealthAuditCounter interface {
	Count(ctx context.Context, filter auditStore.Filter) (int64, error)
}

// HealthMetrics receives one observation per report. It may be nil.
type HealthMetrics interface {
	HealthReported(degraded bool)
}

// HealthDeps holds dependencies for QueryHealthReport.
type HealthDeps struct {
	Ping              func(ctx context.Context) error
	MemberStore       MemberStore
	EventStore        EventStore
	AnnouncementStore AnnouncementStore
	ViewStore         ViewStore
	AuditStore        HealthAuditCounter
	Metrics           HealthMetrics
	Log               *zap.SugaredLogger
}

// QueryHealthReport aggregates store reachability and headline counts.
// PRE: deps.Log is non-nil
// POST: always returns a report; failures mark it degraded and are logged
// INVARIANT: low-level errors never appear in the report
func QueryHealthReport(ctx context.Context, deps HealthDeps, now time.Time) HealthReport {
	report := HealthReport{Status: StatusOK, GeneratedAt: now.UTC()}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := deps.Ping(pingCtx)
	cancel()
	if err != nil {
		deps.Log.Warnw("health_event", "event", "store_unreachable", "error", err)
		report.Status = StatusDegraded
		report.Checks = append(report.Checks, HealthCheck{Name: "store", Status: CheckFail, Detail: "database unreachable"})
		observeHealth(deps.Metrics, report)
		return report
	}
	report.StoreReachable = true
	report.Checks = append(report.Checks, HealthCheck{Name: "store", Status: CheckPass})

	count := func(name string, fn func() (int64, error)) *int64 {
		n, err := fn()
		if err != nil {
			deps.Log.Warnw("health_event", "event", "count_failed", "count", name, "error", err)
			report.Status = StatusDegraded
			report.Checks = append(report.Checks, HealthCheck{Name: name, Status: CheckFail, Detail: "query failed"})
			return nil
		}
		return &n
	}

	report.Counts.ActiveMembers = count("active_members", func() (int64, error) {
		return deps.MemberStore.CountByStatus(ctx, member.StatusActive)
	})
	report.Counts.UpcomingEvents = count("upcoming_events", func() (int64, error) {
		return deps.EventStore.CountScheduledBetween(ctx, now, now.Add(upcomingWindow))
	})
	report.Counts.UnreadAnnouncements = count("unread_announcements", func() (int64, error) {
		if report.Counts.ActiveMembers == nil {
			return 0, errCountSkipped
		}
		visible, err := deps.AnnouncementStore.CountVisible(ctx, now)
		if err != nil {
			return 0, err
		}
		views, err := deps.ViewStore.CountForVisible(ctx, now)
		if err != nil {
			return 0, err
		}
		return max(*report.Counts.ActiveMembers*visible-views, 0), nil
	})
	report.Counts.RecentAuditEntries = count("recent_audit_entries", func() (int64, error) {
		return deps.AuditStore.Count(ctx, auditStore.Filter{From: now.Add(-recentAuditWindow), To: now})
	})

	switch n := report.Counts.ActiveMembers; {
	case n == nil:
	case *n == 0:
		report.Checks = append(report.Checks, HealthCheck{Name: "members", Status: CheckWarn, Detail: "no active members"})
	default:
		report.Checks = append(report.Checks, HealthCheck{Name: "members", Status: CheckPass})
	}
	switch n := report.Counts.RecentAuditEntries; {
	case n == nil:
	case *n > maxDailyAuditCount:
		report.Checks = append(report.Checks, HealthCheck{Name: "audit_volume", Status: CheckWarn, Detail: "unusually many audit entries in the last 24h"})
	default:
		report.Checks = append(report.Checks, HealthCheck{Name: "audit_volume", Status: CheckPass})
	}

	observeHealth(deps.Metrics, report)
	return report
}

func observeHealth(m HealthMetrics, r HealthReport) {
	if m != nil {
		m.HealthReported(r.Degraded())
	}
}
