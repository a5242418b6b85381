package message

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fellowship/internal/adapters/storage"
	memberdomain "fellowship/internal/domain/member"
	domain "fellowship/internal/domain/message"
)

// Record is the messages table row.
type Record struct {
	ID          string     `gorm:"primaryKey;size:36"`
	SenderID    string     `gorm:"size:36;not null;index"`
	RecipientID string     `gorm:"size:36;not null;index:idx_messages_recipient_read,priority:1"`
	Subject     string     `gorm:"size:200"`
	Body        string     `gorm:"type:text;not null"`
	ReadAt      *time.Time `gorm:"index:idx_messages_recipient_read,priority:2"`
	CreatedAt   time.Time  `gorm:"autoCreateTime:false;index"`
}

func (Record) TableName() string { return "messages" }

func toRecord(m *domain.Message) Record {
	return Record{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Subject:     m.Subject,
		Body:        m.Body,
		ReadAt:      storage.UTC(m.ReadAt),
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

func (r Record) toDomain() domain.Message {
	return domain.Message{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Subject:     r.Subject,
		Body:        r.Body,
		ReadAt:      r.ReadAt,
		CreatedAt:   r.CreatedAt,
	}
}

// GormStore implements Store with gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a new message store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create inserts a message.
// PRE: value passes Validate
// POST: row inserted, or member.ErrNotFound when either participant is missing
func (s *GormStore) Create(ctx context.Context, value *domain.Message) error {
	if err := value.Validate(); err != nil {
		return err
	}
	return storage.WriteTx(ctx, s.db, func(tx *gorm.DB) error {
		for _, id := range []string{value.SenderID, value.RecipientID} {
			if err := storage.RequireRow(tx, "members", id, memberdomain.ErrNotFound); err != nil {
				return err
			}
		}
		rec := toRecord(value)
		return storage.TranslateError(tx.Create(&rec).Error, nil, nil)
	})
}

// GetByID retrieves a Message by its ID.
// POST: Returns the entity or domain.ErrNotFound
func (s *GormStore) GetByID(ctx context.Context, id string) (domain.Message, error) {
	var rec Record
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return domain.Message{}, storage.TranslateError(err, domain.ErrNotFound, nil)
	}
	return rec.toDomain(), nil
}

// Update writes the message's read state.
// POST: ErrNotFound if no row has value.ID
func (s *GormStore) Update(ctx context.Context, value *domain.Message) error {
	res := s.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", value.ID).
		Update("read_at", storage.UTC(value.ReadAt))
	if res.Error != nil {
		return storage.TranslateError(res.Error, domain.ErrNotFound, nil)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a message.
// POST: ErrNotFound if no row has id
func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Record{})
	if res.Error != nil {
		return storage.TranslateError(res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *GormStore) page(ctx context.Context, column, memberID string, limit, offset int) ([]domain.Message, int64, error) {
	q := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&Record{}).Where(column+" = ?", memberID)
	}
	var total int64
	if err := q().Count(&total).Error; err != nil {
		return nil, 0, storage.TranslateError(err, nil, nil)
	}
	if limit <= 0 {
		limit = 50
	}
	var recs []Record
	if err := q().Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&recs).Error; err != nil {
		return nil, 0, storage.TranslateError(err, nil, nil)
	}
	out := make([]domain.Message, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, total, nil
}

// ListInbox returns messages received by the member, newest first.
func (s *GormStore) ListInbox(ctx context.Context, recipientID string, limit, offset int) ([]domain.Message, int64, error) {
	return s.page(ctx, "recipient_id", recipientID, limit, offset)
}

// ListSent returns messages sent by the member, newest first.
func (s *GormStore) ListSent(ctx context.Context, senderID string, limit, offset int) ([]domain.Message, int64, error) {
	return s.page(ctx, "sender_id", senderID, limit, offset)
}

// CountUnread counts the member's unread received messages.
func (s *GormStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Record{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Count(&n).Error
	return n, storage.TranslateError(err, nil, nil)
}
