package event

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fellowship/internal/adapters/storage"
	domain "fellowship/internal/domain/event"
)

// Record is the events table row.
type Record struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Title       string    `gorm:"size:200;not null"`
	Description string    `gorm:"type:text"`
	Location    string    `gorm:"size:200"`
	StartsAt    time.Time `gorm:"not null;index"`
	EndsAt      time.Time `gorm:"not null"`
	Capacity    int       `gorm:"not null"`
	Status      string    `gorm:"size:16;not null;index"`
	CreatedBy   string    `gorm:"size:36"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (Record) TableName() string { return "events" }

func toRecord(e *domain.Event) Record {
	return Record{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		StartsAt:    e.StartsAt.UTC(),
		EndsAt:      e.EndsAt.UTC(),
		Capacity:    e.Capacity,
		Status:      e.Status,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (r Record) toDomain() domain.Event {
	return domain.Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		StartsAt:    r.StartsAt,
		EndsAt:      r.EndsAt,
		Capacity:    r.Capacity,
		Status:      r.Status,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// GormStore implements Store with gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a new event store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create inserts a new event.
// PRE: value passes Validate
func (s *GormStore) Create(ctx context.Context, value *domain.Event) error {
	if err := value.Validate(); err != nil {
		return err
	}
	rec := toRecord(value)
	return storage.TranslateError(s.db.WithContext(ctx).Create(&rec).Error, nil, nil)
}

// GetByID retrieves an Event by its ID.
// POST: Returns the entity or domain.ErrNotFound
func (s *GormStore) GetByID(ctx context.Context, id string) (domain.Event, error) {
	var rec Record
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return domain.Event{}, storage.TranslateError(err, domain.ErrNotFound, nil)
	}
	return rec.toDomain(), nil
}

// Update overwrites every mutable column of an existing event.
// POST: ErrNotFound if no row has value.ID
func (s *GormStore) Update(ctx context.Context, value *domain.Event) error {
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

// Delete removes the event together with its RSVPs.
// POST: no rows remain for id in events or event_rsvps; ErrNotFound if the event did not exist
func (s *GormStore) Delete(ctx context.Context, id string) error {
	return storage.WriteTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&RSVPRecord{}).Error; err != nil {
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
	if !filter.From.IsZero() {
		q = q.Where("starts_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		q = q.Where("starts_at < ?", filter.To.UTC())
	}
	if !filter.IncludeCancelled {
		q = q.Where("status = ?", domain.StatusScheduled)
	}
	return q
}

// List returns events in the window ordered by start time, and the total match count.
func (s *GormStore) List(ctx context.Context, filter ListFilter) ([]domain.Event, int64, error) {
	var total int64
	if err := s.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, storage.TranslateError(err, nil, nil)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	var recs []Record
	err := s.filtered(ctx, filter).
		Order("starts_at ASC, id ASC").
		Limit(limit).Offset(filter.Offset).
		Find(&recs).Error
	if err != nil {
		return nil, 0, storage.TranslateError(err, nil, nil)
	}
	out := make([]domain.Event, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, total, nil
}

// CountScheduledBetween counts scheduled events starting in [from, to).
func (s *GormStore) CountScheduledBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Record{}).
		Where("status = ? AND starts_at >= ? AND starts_at < ?", domain.StatusScheduled, from.UTC(), to.UTC()).
		Count(&n).Error
	return n, storage.TranslateError(err, nil, nil)
}
