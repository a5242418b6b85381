package audit

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fellowship/internal/adapters/storage"
	domain "fellowship/internal/domain/audit"
)

// Record is the audit_logs table row. It refuses updates and deletes at the
// ORM level.
type Record struct {
	ID           string         `gorm:"primaryKey;size:36"`
	Timestamp    time.Time      `gorm:"not null;index"`
	Category     string         `gorm:"size:32;not null;index"`
	Action       string         `gorm:"size:32;not null"`
	Severity     string         `gorm:"size:16;not null"`
	ActorID      string         `gorm:"size:36;not null;index"`
	ActorEmail   string         `gorm:"size:254"`
	ActorRole    string         `gorm:"size:16"`
	ResourceType string         `gorm:"size:32"`
	ResourceID   string         `gorm:"size:36;index"`
	Description  string         `gorm:"size:1000"`
	IPAddress    string         `gorm:"size:64"`
	UserAgent    string         `gorm:"size:300"`
	Metadata     map[string]any `gorm:"serializer:json"`
}

func (Record) TableName() string { return "audit_logs" }

// BeforeUpdate rejects any modification of a stored entry.
func (*Record) BeforeUpdate(*gorm.DB) error { return domain.ErrImmutable }

// BeforeDelete rejects removal of a stored entry.
func (*Record) BeforeDelete(*gorm.DB) error { return domain.ErrImmutable }

func toRecord(e domain.Entry) Record {
	return Record{
		ID:           e.ID,
		Timestamp:    e.Timestamp.UTC(),
		Category:     string(e.Category),
		Action:       string(e.Action),
		Severity:     string(e.Severity),
		ActorID:      e.ActorID,
		ActorEmail:   e.ActorEmail,
		ActorRole:    e.ActorRole,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Description:  e.Description,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Metadata:     e.Metadata,
	}
}

func (r Record) toDomain() domain.Entry {
	return domain.Entry{
		ID:           r.ID,
		Timestamp:    r.Timestamp,
		Category:     domain.Category(r.Category),
		Action:       domain.Action(r.Action),
		Severity:     domain.Severity(r.Severity),
		ActorID:      r.ActorID,
		ActorEmail:   r.ActorEmail,
		ActorRole:    r.ActorRole,
		ResourceType: r.ResourceType,
		ResourceID:   r.ResourceID,
		Description:  r.Description,
		IPAddress:    r.IPAddress,
		UserAgent:    r.UserAgent,
		Metadata:     r.Metadata,
	}
}

// GormStore implements the audit Store interface using gorm.
type GormStore struct {
	db *gorm.DB
}

// Ensure GormStore implements Store interface.
var _ Store = (*GormStore)(nil)

// NewGormStore creates a new audit entry store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Append persists an audit entry after checking its actor exists.
// PRE: entry passes Validate
// POST: Entry is persisted
func (s *GormStore) Append(ctx context.Context, entry domain.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	return storage.WriteTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := storage.RequireRow(tx, "members", entry.ActorID, domain.ErrUnknownActor); err != nil {
			return err
		}
		rec := toRecord(entry)
		return storage.TranslateError(tx.Create(&rec).Error, nil, nil)
	})
}

// GetByID retrieves a specific audit entry.
// PRE: id is non-empty
// POST: Returns the entry or domain.ErrNotFound
func (s *GormStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	var rec Record
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return domain.Entry{}, storage.TranslateError(err, domain.ErrNotFound, nil)
	}
	return rec.toDomain(), nil
}

func (s *GormStore) filtered(ctx context.Context, filter Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&Record{})
	if filter.Category != "" {
		q = q.Where("category = ?", string(filter.Category))
	}
	if filter.Action != "" {
		q = q.Where("action = ?", string(filter.Action))
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", string(filter.Severity))
	}
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.ResourceType != "" {
		q = q.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		q = q.Where("resource_id = ?", filter.ResourceID)
	}
	if !filter.From.IsZero() {
		q = q.Where("timestamp >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		q = q.Where("timestamp <= ?", filter.To.UTC())
	}
	return q
}

// List returns audit entries with optional filtering.
// PRE: limit > 0
// POST: Returns entries ordered by timestamp desc
func (s *GormStore) List(ctx context.Context, filter Filter, limit, offset int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []Record
	err := s.filtered(ctx, filter).
		Order("timestamp DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, storage.TranslateError(err, nil, nil)
	}
	out := make([]domain.Entry, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Count returns the number of entries matching filter.
func (s *GormStore) Count(ctx context.Context, filter Filter) (int64, error) {
	var n int64
	err := s.filtered(ctx, filter).Count(&n).Error
	return n, storage.TranslateError(err, nil, nil)
}
