package push

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fellowship/internal/adapters/storage"
	memberdomain "fellowship/internal/domain/member"
	domain "fellowship/internal/domain/push"
)

// Record is the push_subscriptions table row.
type Record struct {
	ID         string    `gorm:"primaryKey;size:36"`
	MemberID   string    `gorm:"size:36;not null;index"`
	Endpoint   string    `gorm:"size:2048;not null;uniqueIndex"`
	P256dh     string    `gorm:"size:256;not null"`
	Auth       string    `gorm:"size:256;not null"`
	UserAgent  string    `gorm:"size:300"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	LastUsedAt *time.Time
}

func (Record) TableName() string { return "push_subscriptions" }

func toRecord(s *domain.Subscription) Record {
	return Record{
		ID:         s.ID,
		MemberID:   s.MemberID,
		Endpoint:   s.Endpoint,
		P256dh:     s.P256dh,
		Auth:       s.Auth,
		UserAgent:  s.UserAgent,
		CreatedAt:  s.CreatedAt.UTC(),
		LastUsedAt: storage.UTC(s.LastUsedAt),
	}
}

func (r Record) toDomain() domain.Subscription {
	return domain.Subscription{
		ID:         r.ID,
		MemberID:   r.MemberID,
		Endpoint:   r.Endpoint,
		P256dh:     r.P256dh,
		Auth:       r.Auth,
		UserAgent:  r.UserAgent,
		CreatedAt:  r.CreatedAt,
		LastUsedAt: r.LastUsedAt,
	}
}

func toDomainList(recs []Record) []domain.Subscription {
	out := make([]domain.Subscription, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out
}

// GormStore implements Store with gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a new push subscription store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create registers a device for a member.
// PRE: value passes Validate
// POST: row inserted; member.ErrNotFound or ErrEndpointTaken otherwise
func (s *GormStore) Create(ctx context.Context, value *domain.Subscription) error {
	if err := value.Validate(); err != nil {
		return err
	}
	return storage.WriteTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := storage.RequireRow(tx, "members", value.MemberID, memberdomain.ErrNotFound); err != nil {
			return err
		}
		rec := toRecord(value)
		return storage.TranslateError(tx.Create(&rec).Error, nil, domain.ErrEndpointTaken)
	})
}

func (s *GormStore) getBy(ctx context.Context, column, value string) (domain.Subscription, error) {
	var rec Record
	if err := s.db.WithContext(ctx).Where(column+" = ?", value).Take(&rec).Error; err != nil {
		return domain.Subscription{}, storage.TranslateError(err, domain.ErrNotFound, nil)
	}
	return rec.toDomain(), nil
}

// GetByID retrieves a Subscription by its ID.
func (s *GormStore) GetByID(ctx context.Context, id string) (domain.Subscription, error) {
	return s.getBy(ctx, "id", id)
}

// GetByEndpoint retrieves the Subscription registered for endpoint.
func (s *GormStore) GetByEndpoint(ctx context.Context, endpoint string) (domain.Subscription, error) {
	return s.getBy(ctx, "endpoint", endpoint)
}

// Update rewrites the keys, user agent and last-used time of a subscription.
// POST: ErrNotFound if no row has value.ID
func (s *GormStore) Update(ctx context.Context, value *domain.Subscription) error {
	if err := value.Validate(); err != nil {
		return err
	}
	rec := toRecord(value)
	res := s.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", rec.ID).
		Select("p256dh", "auth", "user_agent", "last_used_at").
		Updates(&rec)
	if res.Error != nil {
		return storage.TranslateError(res.Error, domain.ErrNotFound, domain.ErrEndpointTaken)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *GormStore) deleteBy(ctx context.Context, column, value string) error {
	res := s.db.WithContext(ctx).Where(column+" = ?", value).Delete(&Record{})
	if res.Error != nil {
		return storage.TranslateError(res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a subscription by ID.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	return s.deleteBy(ctx, "id", id)
}

// DeleteByEndpoint removes the subscription registered for endpoint.
func (s *GormStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	return s.deleteBy(ctx, "endpoint", endpoint)
}

// ListByMember returns a member's devices, oldest first.
func (s *GormStore) ListByMember(ctx context.Context, memberID string) ([]domain.Subscription, error) {
	var recs []Record
	err := s.db.WithContext(ctx).Where("member_id = ?", memberID).Order("created_at ASC, id ASC").Find(&recs).Error
	if err != nil {
		return nil, storage.TranslateError(err, nil, nil)
	}
	return toDomainList(recs), nil
}

// ListByMembers returns the devices of every listed member.
func (s *GormStore) ListByMembers(ctx context.Context, memberIDs []string) ([]domain.Subscription, error) {
	if len(memberIDs) == 0 {
		return nil, nil
	}
	var recs []Record
	err := s.db.WithContext(ctx).Where("member_id IN ?", memberIDs).Order("member_id ASC, created_at ASC").Find(&recs).Error
	if err != nil {
		return nil, storage.TranslateError(err, nil, nil)
	}
	return toDomainList(recs), nil
}

// Count returns the number of registered devices.
func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Record{}).Count(&n).Error
	return n, storage.TranslateError(err, nil, nil)
}
