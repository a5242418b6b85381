package announcement

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fellowship/internal/adapters/storage"
	domain "fellowship/internal/domain/announcement"
	memberdomain "fellowship/internal/domain/member"
)

// ViewRecord is the member_announcement_views table row.
// INVARIANT: (announcement_id, member_id) is unique
type ViewRecord struct {
	ID             string    `gorm:"primaryKey;size:36"`
	AnnouncementID string    `gorm:"size:36;not null;uniqueIndex:idx_view_announcement_member,priority:1"`
	MemberID       string    `gorm:"size:36;not null;uniqueIndex:idx_view_announcement_member,priority:2;index"`
	ViewedAt       time.Time `gorm:"not null"`
}

func (ViewRecord) TableName() string { return "member_announcement_views" }

// GormViewStore implements ViewStore with gorm.
type GormViewStore struct {
	db *gorm.DB
}

var _ ViewStore = (*GormViewStore)(nil)

// NewGormViewStore creates a new view store.
func NewGormViewStore(db *gorm.DB) *GormViewStore {
	return &GormViewStore{db: db}
}

// Create records that a member viewed an announcement.
// PRE: value.AnnouncementID and value.MemberID reference existing rows
// POST: row inserted, or ErrAlreadyViewed / ErrNotFound and nothing written
func (s *GormViewStore) Create(ctx context.Context, value *domain.View) error {
	return storage.WriteTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := storage.RequireRow(tx, "announcements", value.AnnouncementID, domain.ErrNotFound); err != nil {
			return err
		}
		if err := storage.RequireRow(tx, "members", value.MemberID, memberdomain.ErrNotFound); err != nil {
			return err
		}
		rec := ViewRecord{
			ID:             value.ID,
			AnnouncementID: value.AnnouncementID,
			MemberID:       value.MemberID,
			ViewedAt:       value.ViewedAt.UTC(),
		}
		return storage.TranslateError(tx.Create(&rec).Error, nil, domain.ErrAlreadyViewed)
	})
}

// Exists reports whether the member has viewed the announcement.
func (s *GormViewStore) Exists(ctx context.Context, announcementID, memberID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ViewRecord{}).
		Where("announcement_id = ? AND member_id = ?", announcementID, memberID).
		Count(&n).Error
	if err != nil {
		return false, storage.TranslateError(err, nil, nil)
	}
	return n > 0, nil
}

// ViewedIDs returns the subset of announcementIDs the member has viewed.
// POST: every key in the result is in announcementIDs and maps to true
func (s *GormViewStore) ViewedIDs(ctx context.Context, memberID string, announcementIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(announcementIDs) == 0 {
		return out, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).Model(&ViewRecord{}).
		Where("member_id = ? AND announcement_id IN ?", memberID, announcementIDs).
		Pluck("announcement_id", &ids).Error
	if err != nil {
		return nil, storage.TranslateError(err, nil, nil)
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// CountForAnnouncement counts members who viewed the announcement.
func (s *GormViewStore) CountForAnnouncement(ctx context.Context, announcementID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ViewRecord{}).
		Where("announcement_id = ?", announcementID).
		Count(&n).Error
	return n, storage.TranslateError(err, nil, nil)
}

// CountUnread counts announcements visible at now that the member has not viewed.
func (s *GormViewStore) CountUnread(ctx context.Context, memberID string, now time.Time) (int64, error) {
	var n int64
	q := s.db.WithContext(ctx).Table("announcements AS a").
		Where("NOT EXISTS (SELECT 1 FROM member_announcement_views AS v WHERE v.announcement_id = a.id AND v.member_id = ?)", memberID)
	err := visibleAt(q, "a.", now).Count(&n).Error
	return n, storage.TranslateError(err, nil, nil)
}

// CountForVisible counts views by active members of announcements visible at now.
func (s *GormViewStore) CountForVisible(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	q := s.db.WithContext(ctx).Table("member_announcement_views AS v").
		Joins("JOIN announcements AS a ON a.id = v.announcement_id").
		Joins("JOIN members AS m ON m.id = v.member_id").
		Where("m.status = ?", memberdomain.StatusActive)
	err := visibleAt(q, "a.", now).Count(&n).Error
	return n, storage.TranslateError(err, nil, nil)
}
