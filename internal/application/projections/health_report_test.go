package projections_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fellowship/internal/adapters/storage"
	announcementStore "fellowship/internal/adapters/storage/announcement"
	auditStore "fellowship/internal/adapters/storage/audit"
	eventStore "fellowship/internal/adapters/storage/event"
	memberStore "fellowship/internal/adapters/storage/member"
	"fellowship/internal/adapters/storage/schema"
	"fellowship/internal/adapters/storage/storagetest"
	"fellowship/internal/application/projections"
	"fellowship/internal/domain/announcement"
	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/event"
	"fellowship/internal/domain/member"
)

var now = time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC)

type fakeMetrics struct{ degraded []bool }

func (f *fakeMetrics) HealthReported(d bool) { f.degraded = append(f.degraded, d) }

func healthDeps(db *gorm.DB) projections.HealthDeps {
	return projections.HealthDeps{
		Ping:              func(ctx context.Context) error { return storage.Ping(ctx, db) },
		MemberStore:       memberStore.NewGormStore(db),
		EventStore:        eventStore.NewGormStore(db),
		AnnouncementStore: announcementStore.NewGormStore(db),
		ViewStore:         announcementStore.NewGormViewStore(db),
		AuditStore:        auditStore.NewGormStore(db),
		Log:               zap.NewNop().Sugar(),
	}
}

// seed creates three members (one deactivated), two upcoming events (one
// cancelled), one visible announcement viewed once and one audit entry.
func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	ctx := context.Background()
	members := memberStore.NewGormStore(db)
	for _, id := range []string{"m-1", "m-2", "m-3"} {
		m := member.New(id, id+"@example.com", "First", "Last", member.RoleMember, nil, now.Add(-time.Hour))
		require.NoError(t, members.Create(ctx, m))
	}
	gone, err := members.GetByID(ctx, "m-3")
	require.NoError(t, err)
	require.NoError(t, gone.Deactivate(now))
	require.NoError(t, members.Update(ctx, &gone))

	events := eventStore.NewGormStore(db)
	for i, status := range []string{event.StatusScheduled, event.StatusCancelled} {
		start := now.Add(time.Duration(i+1) * 24 * time.Hour)
		e := event.Event{
			ID: []string{"ev-1", "ev-2"}[i], Title: "Gathering", StartsAt: start, EndsAt: start.Add(time.Hour),
			Status: status, CreatedBy: "m-1", CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, events.Create(ctx, &e))
	}

	published := now.Add(-time.Hour)
	anns := announcementStore.NewGormStore(db)
	a := announcement.Announcement{
		ID: "a-1", Title: "Welcome", Body: "Hello", Priority: announcement.PriorityNormal,
		Status: announcement.StatusPublished, PublishedAt: &published, CreatedBy: "m-1", CreatedAt: published, UpdatedAt: published,
	}
	require.NoError(t, anns.Create(ctx, &a))
	views := announcementStore.NewGormViewStore(db)
	require.NoError(t, views.Create(ctx, &announcement.View{ID: "v-1", AnnouncementID: "a-1", MemberID: "m-1", ViewedAt: now}))

	entry := audit.NewEntry(audit.Actor{ID: "m-1", Email: "m-1@example.com", Role: member.RoleAdmin}, audit.CategoryMember, audit.ActionDeactivate, now.Add(-time.Minute))
	require.NoError(t, auditStore.NewGormStore(db).Append(ctx, entry))
}

func counts(t *testing.T, c projections.HealthCounts) [4]int64 {
	t.Helper()
	require.NotNil(t, c.ActiveMembers)
	require.NotNil(t, c.UpcomingEvents)
	require.NotNil(t, c.UnreadAnnouncements)
	require.NotNil(t, c.RecentAuditEntries)
	return [4]int64{*c.ActiveMembers, *c.UpcomingEvents, *c.UnreadAnnouncements, *c.RecentAuditEntries}
}

func checkStatuses(r projections.HealthReport) map[string]string {
	out := make(map[string]string)
	for _, c := range r.Checks {
		out[c.Name] = c.Status
	}
	return out
}

func TestQueryHealthReport_OK(t *testing.T) {
	db := storagetest.Open(t, schema.Records()...)
	seed(t, db)
	metrics := &fakeMetrics{}
	deps := healthDeps(db)
	deps.Metrics = metrics

	r := projections.QueryHealthReport(context.Background(), deps, now)

	assert.Equal(t, projections.StatusOK, r.Status)
	assert.True(t, r.StoreReachable)
	// 2 active members x 1 visible announcement - 1 view
	assert.Equal(t, [4]int64{2, 1, 1, 1}, counts(t, r.Counts))
	assert.Equal(t, map[string]string{
		"store":        projections.CheckPass,
		"members":      projections.CheckPass,
		"audit_volume": projections.CheckPass,
	}, checkStatuses(r))
	assert.Equal(t, []bool{false}, metrics.degraded)
	assert.Equal(t, now, r.GeneratedAt)
}

func TestQueryHealthReport_EmptyStoreWarnsButIsOK(t *testing.T) {
	db := storagetest.Open(t, schema.Records()...)

	r := projections.QueryHealthReport(context.Background(), healthDeps(db), now)

	assert.Equal(t, projections.StatusOK, r.Status)
	assert.Equal(t, [4]int64{0, 0, 0, 0}, counts(t, r.Counts))
	assert.Equal(t, projections.CheckWarn, checkStatuses(r)["members"])
}

func assertUnreachable(t *testing.T, r projections.HealthReport) {
	t.Helper()
	assert.Equal(t, projections.StatusDegraded, r.Status)
	assert.True(t, r.Degraded())
	assert.False(t, r.StoreReachable)
	assert.Nil(t, r.Counts.ActiveMembers)
	assert.Nil(t, r.Counts.UpcomingEvents)
	assert.Nil(t, r.Counts.UnreadAnnouncements)
	assert.Nil(t, r.Counts.RecentAuditEntries)
	require.Len(t, r.Checks, 1)
	assert.Equal(t, projections.HealthCheck{Name: "store", Status: projections.CheckFail, Detail: "database unreachable"}, r.Checks[0])
}

func TestQueryHealthReport_UnreachableDatabaseDegrades(t *testing.T) {
	db, _ := storagetest.Unreachable(t)

	r := projections.QueryHealthReport(context.Background(), healthDeps(db), now)

	assertUnreachable(t, r)
	assert.NotContains(t, r.Checks[0].Detail, "connection refused")
}

func TestQueryHealthReport_ClosedDatabaseDegrades(t *testing.T) {
	db := storagetest.Closed(t, schema.Records()...)

	r := projections.QueryHealthReport(context.Background(), healthDeps(db), now)

	assertUnreachable(t, r)
}

type failingAnnouncements struct{ projections.AnnouncementStore }

func (failingAnnouncements) CountVisible(context.Context, time.Time) (int64, error) {
	return 0, errors.New("no such table: announcements")
}

func TestQueryHealthReport_FailedCountIsNullAndDegrades(t *testing.T) {
	db := storagetest.Open(t, schema.Records()...)
	seed(t, db)
	deps := healthDeps(db)
	deps.AnnouncementStore = failingAnnouncements{}

	r := projections.QueryHealthReport(context.Background(), deps, now)

	assert.Equal(t, projections.StatusDegraded, r.Status)
	assert.True(t, r.StoreReachable)
	assert.Nil(t, r.Counts.UnreadAnnouncements)
	require.NotNil(t, r.Counts.ActiveMembers)
	assert.EqualValues(t, 2, *r.Counts.ActiveMembers)
	statuses := checkStatuses(r)
	assert.Equal(t, projections.CheckFail, statuses["unread_announcements"])
	for _, c := range r.Checks {
		assert.NotContains(t, c.Detail, "no such table")
	}
}
