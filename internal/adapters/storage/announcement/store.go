package announcement

import (
	"context"
	"time"

	domain "fellowship/internal/domain/announcement"
)

// Store persists Announcement state.
type Store interface {
	Create(ctx context.Context, value *domain.Announcement) error
	GetByID(ctx context.Context, id string) (domain.Announcement, error)
	Update(ctx context.Context, value *domain.Announcement) error
	// Delete removes the announcement and its views in one transaction.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]domain.Announcement, int64, error)
	CountVisible(ctx context.Context, now time.Time) (int64, error)
}

// ListFilter carries filtering parameters for List operations.
type ListFilter struct {
	Status    string
	VisibleAt time.Time // non-zero restricts to announcements visible at this instant
	Limit     int
	Offset    int
}

// ViewStore persists MemberAnnouncementView rows.
type ViewStore interface {
	// Create records a view.
	// POST: ErrAlreadyViewed when the pair already exists
	Create(ctx context.Context, value *domain.View) error
	Exists(ctx context.Context, announcementID, memberID string) (bool, error)
	// ViewedIDs reports which of announcementIDs the member has viewed.
	ViewedIDs(ctx context.Context, memberID string, announcementIDs []string) (map[string]bool, error)
	CountForAnnouncement(ctx context.Context, announcementID string) (int64, error)
	// CountUnread counts announcements visible at now the member has not viewed.
	CountUnread(ctx context.Context, memberID string, now time.Time) (int64, error)
	// CountForVisible counts views by active members of announcements visible at now.
	CountForVisible(ctx context.Context, now time.Time) (int64, error)
}
