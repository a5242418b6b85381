package projections

import (
	"context"
	"time"

	"fellowship/internal/adapters/export"
	eventStore "fellowship/internal/adapters/storage/event"
	memberStore "fellowship/internal/adapters/storage/member"
	"fellowship/internal/domain/member"
)

const (
	reportPast    = 30 * 24 * time.Hour
	reportAhead   = 90 * 24 * time.Hour
	reportMaxRows = 10000
)

// AdminReportDeps holds dependencies for QueryAdminReport.
type AdminReportDeps struct {
	Health HealthDeps
	Events EventDeps
}

// QueryAdminReport gathers the health report, the full roster and events
// from 30 days ago to 90 days ahead with their RSVP totals.
// POST: health failures degrade the report; roster or event failures are errors
func QueryAdminReport(ctx context.Context, deps AdminReportDeps, now time.Time) (export.Report, error) {
	health := QueryHealthReport(ctx, deps.Health, now)
	report := export.Report{
		GeneratedAt: health.GeneratedAt,
		Status:      health.Status,
		Counts: []export.Count{
			{Name: "Active members", Value: health.Counts.ActiveMembers},
			{Name: "Upcoming events (30 days)", Value: health.Counts.UpcomingEvents},
			{Name: "Unread announcements", Value: health.Counts.UnreadAnnouncements},
			{Name: "Audit entries (24 hours)", Value: health.Counts.RecentAuditEntries},
		},
	}
	for _, c := range health.Checks {
		report.Checks = append(report.Checks, export.Check{Name: c.Name, Status: c.Status, Detail: c.Detail})
	}

	members, _, err := deps.Health.MemberStore.List(ctx, memberStore.ListFilter{Limit: reportMaxRows})
	if err != nil {
		return export.Report{}, err
	}
	report.Members = make([]member.Member, 0, len(members))
	for _, m := range members {
		report.Members = append(report.Members, m.VisibleTo("", true))
	}

	events, _, err := deps.Events.EventStore.List(ctx, eventStore.ListFilter{
		From:             now.Add(-reportPast),
		To:               now.Add(reportAhead),
		IncludeCancelled: true,
		Limit:            reportMaxRows,
	})
	if err != nil {
		return export.Report{}, err
	}
	for _, e := range events {
		s, err := deps.Events.RSVPStore.Summarize(ctx, e.ID)
		if err != nil {
			return export.Report{}, err
		}
		report.Events = append(report.Events, export.EventRow{Event: e, Summary: s})
	}
	return report, nil
}
