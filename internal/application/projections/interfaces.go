package projections

import (
	"context"
	"time"

	announcementStore "fellowship/internal/adapters/storage/announcement"
	auditStore "fellowship/internal/adapters/storage/audit"
	eventStore "fellowship/internal/adapters/storage/event"
	memberStore "fellowship/internal/adapters/storage/member"
	"fellowship/internal/domain/announcement"
	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/event"
	"fellowship/internal/domain/member"
	"fellowship/internal/domain/message"
)

// MemberStore interface for member queries.
type MemberStore interface {
	GetByID(ctx context.Context, id string) (member.Member, error)
	List(ctx context.Context, filter memberStore.ListFilter) ([]member.Member, int64, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
}

// EventStore interface for event queries.
type EventStore interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
	List(ctx context.Context, filter eventStore.ListFilter) ([]event.Event, int64, error)
	CountScheduledBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// RSVPStore interface for RSVP queries.
type RSVPStore interface {
	Get(ctx context.Context, eventID, memberID string) (event.RSVP, error)
	ListByEvent(ctx context.Context, eventID string) ([]event.RSVP, error)
	Summarize(ctx context.Context, eventID string) (event.Summary, error)
}

// AnnouncementStore interface for announcement queries.
type AnnouncementStore interface {
	GetByID(ctx context.Context, id string) (announcement.Announcement, error)
	List(ctx context.Context, filter announcementStore.ListFilter) ([]announcement.Announcement, int64, error)
	CountVisible(ctx context.Context, now time.Time) (int64, error)
}

// ViewStore interface for announcement view queries.
type ViewStore interface {
	Exists(ctx context.Context, announcementID, memberID string) (bool, error)
	ViewedIDs(ctx context.Context, memberID string, announcementIDs []string) (map[string]bool, error)
	CountForVisible(ctx context.Context, now time.Time) (int64, error)
	CountUnread(ctx context.Context, memberID string, now time.Time) (int64, error)
}

// MessageStore interface for mailbox queries.
type MessageStore interface {
	ListInbox(ctx context.Context, recipientID string, limit, offset int) ([]message.Message, int64, error)
	ListSent(ctx context.Context, senderID string, limit, offset int) ([]message.Message, int64, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
}

// AuditStore interface for audit log queries.
type AuditStore interface {
	GetByID(ctx context.Context, id string) (audit.Entry, error)
	List(ctx context.Context, filter auditStore.Filter, limit, offset int) ([]audit.Entry, error)
	Count(ctx context.Context, filter auditStore.Filter) (int64, error)
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// normalize clamps the page to sane bounds.
func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
