package announcement

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fellowship/internal/adapters/storage"
	domain "fellowship/internal/domain/announcement"
)

// Record is the announcements table row.
type Record struct {
	ID          string `gorm:"primaryKey;size:36"`
	Title       string `gorm:"size:200;not null"`
	Body        string `gorm:"type:text;not null"`
	Priority    string `gorm:"size:16;not null"`
	Status      string `gorm:"size:16;not null;index"`
	Pinned      bool   `gorm:"not null"`
	CreatedBy   string `gorm:"size:36"`
	PublishedAt *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (Record) TableName() string { return "announcements" }

func toRecord(a *domain.Announcement) Record {
	return Record{
		ID:          a.ID,
		Title:       a.Title,
		Body:        a.Body,
		Priority:    a.Priority,
		Status:      a.Status,
		Pinned:      a.Pinned,
		CreatedBy:   a.CreatedBy,
		PublishedAt: storage.UTC(a.PublishedAt),
		ExpiresAt:   storage.UTC(a.ExpiresAt),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func (r Record) toDomain() domain.Announcement {
	return domain.Announcement{
		ID:          r.ID,
		Title:       r.Title,
		Body:        r.Body,
		Priority:    r.Priority,
		Status:      r.Status,
		Pinned:      r.Pinned,
		CreatedBy:   r.CreatedBy,
		PublishedAt: r.PublishedAt,
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// visibleAt restricts q to announcements members can see at now.
func visibleAt(q *gorm.DB, prefix string, now time.Time) *gorm.DB {
	now = now.UTC()
	return q.Where(prefix+"status = ?", domain.StatusPublished).
		Where("("+prefix+"published_at IS NULL OR "+prefix+"published_at <= ?)", now).
		Where("("+prefix+"expires_at IS NULL OR "+prefix+"expires_at > ?)", now)
}

// GormStore implements Store with gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a new announcement store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create inserts a new announcement.
// PRE: value passes Validate
func (s *GormStore) Create(ctx context.Context, value *domain.Announcement) error {
	if err := value.Validate(); err != nil {
		return err
	}
	rec := toRecord(value)
	return storage.TranslateError(s.db.WithContext(ctx).Create(&rec).Error, nil, nil)
}

// GetByID retrieves an Announcement by its ID.
// POST: Returns the entity or domain.ErrNotFound
func (s *GormStore) GetByID(ctx context.Context, id string) (domain.Announcement, error) {
	var rec Record
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return domain.Announcement{}, storage.TranslateError(err, domain.ErrNotFound, nil)
	}
	return rec.toDomain(), nil
}

// Update overwrites every mutable column of an existing announcement.
// POST: ErrNotFound if no row has value.ID
func (s *GormStore) Update(ctx context.Context, value *domain.Announcement) error {
	if err := value.Validate(); err != nil {
		return err
	}
	rec := toRecord(value)
	res := s.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", rec.ID).
		Select("*").Omit("id", "created_at", "created_by").
		Updates(&rec)
	if res.Error != nil {
		return storage.TranslateError(res.Error, domain.ErrNotFound, nil)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the announcement together with its views.
// POST: ErrNotFound if the announcement did not exist
func (s *GormStore) Delete(ctx context.Context, id string) error {
	return storage.WriteTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Where("announcement_id = ?", id).Delete(&ViewRecord{}).Error; err != nil {
			return storage.TranslateError(err, nil, nil)
		}
		res := tx.Where("id = ?", id).Delete(&Record{})
		if res.Error != nil {
			return storage.TranslateError(res.Error, nil, nil)
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) filtered(ctx context.Context, filter ListFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&Record{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if !filter.VisibleAt.IsZero() {
		q = visibleAt(q, "", filter.VisibleAt)
	}
	return q
}

// feedOrder puts pinned announcements first, then urgent ones, then the
// newest.
var feedOrder = clause.OrderBy{Expression: clause.Expr{
	SQL:                "pinned DESC, CASE WHEN priority = ? THEN 0 ELSE 1 END, COALESCE(published_at, created_at) DESC, id ASC",
	Vars:               []any{domain.PriorityUrgent},
	WithoutParentheses: true,
}}

// List returns one page of announcements in feed order and the total match count.
func (s *GormStore) List(ctx context.Context, filter ListFilter) ([]domain.Announcement, int64, error) {
	var total int64
	if err := s.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, storage.TranslateError(err, nil, nil)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	var recs []Record
	err := s.filtered(ctx, filter).
		Order(feedOrder).
		Limit(limit).Offset(filter.Offset).
		Find(&recs).Error
	if err != nil {
		return nil, 0, storage.TranslateError(err, nil, nil)
	}
	out := make([]domain.Announcement, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, total, nil
}

// CountVisible counts announcements members can see at now.
func (s *GormStore) CountVisible(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := visibleAt(s.db.WithContext(ctx).Model(&Record{}), "", now).Count(&n).Error
	return n, storage.TranslateError(err, nil, nil)
}
