package event

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fellowship/internal/adapters/storage"
	domain "fellowship/internal/domain/event"
	memberdomain "fellowship/internal/domain/member"
)

// RSVPRecord is the event_rsvps table row.
// INVARIANT: (event_id, member_id) is unique
type RSVPRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	EventID   string    `gorm:"size:36;not null;uniqueIndex:idx_rsvp_event_member,priority:1"`
	MemberID  string    `gorm:"size:36;not null;uniqueIndex:idx_rsvp_event_member,priority:2;index"`
	Status    string    `gorm:"size:16;not null"`
	Guests    int       `gorm:"not null"`
	Note      string    `gorm:"size:500"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (RSVPRecord) TableName() string { return "event_rsvps" }

func toRSVPRecord(r *domain.RSVP) RSVPRecord {
	return RSVPRecord{
		ID:        r.ID,
		EventID:   r.EventID,
		MemberID:  r.MemberID,
		Status:    r.Status,
		Guests:    r.Guests,
		Note:      r.Note,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r RSVPRecord) toDomain() domain.RSVP {
	return domain.RSVP{
		ID:        r.ID,
		EventID:   r.EventID,
		MemberID:  r.MemberID,
		Status:    r.Status,
		Guests:    r.Guests,
		Note:      r.Note,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// GormRSVPStore implements RSVPStore with gorm.
type GormRSVPStore struct {
	db *gorm.DB
}

var _ RSVPStore = (*GormRSVPStore)(nil)

// NewGormRSVPStore creates a new RSVP store.
func NewGormRSVPStore(db *gorm.DB) *GormRSVPStore {
	return &GormRSVPStore{db: db}
}

// lockEvent loads the event and holds its row until tx ends, so concurrent
// responses check capacity one at a time.
func lockEvent(tx *gorm.DB, id string) (domain.Event, error) {
	var rec Record
	if err := storage.ForUpdate(tx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return domain.Event{}, storage.TranslateError(err, domain.ErrNotFound, nil)
	}
	return rec.toDomain(), nil
}

func summarize(tx *gorm.DB, eventID string) (domain.Summary, error) {
	var row struct {
		Attending int
		Maybe     int
		Declined  int
		Guests    int
	}
	err := tx.Model(&RSVPRecord{}).
		Select(
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS attending, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS maybe, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS declined, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN guests ELSE 0 END), 0) AS guests",
			domain.RSVPAttending, domain.RSVPMaybe, domain.RSVPDeclined, domain.RSVPAttending,
		).
		Where("event_id = ?", eventID).
		Scan(&row).Error
	if err != nil {
		return domain.Summary{}, storage.TranslateError(err, nil, nil)
	}
	return domain.Summary(row), nil
}

// Create inserts a response.
// PRE: value passes Validate
// POST: the member and event exist, capacity holds, and the row is inserted;
// otherwise ErrNotFound, ErrEventFull or ErrRSVPExists and nothing is written
func (s *GormRSVPStore) Create(ctx context.Context, value *domain.RSVP) error {
	if err := value.Validate(); err != nil {
		return err
	}
	return storage.WriteTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := storage.RequireRow(tx, "members", value.MemberID, memberdomain.ErrNotFound); err != nil {
			return err
		}
		ev, err := lockEvent(tx, value.EventID)
		if err != nil {
			return err
		}
		current, err := summarize(tx, value.EventID)
		if err != nil {
			return err
		}
		if err := ev.CheckCapacity(current, value.Seats()); err != nil {
			return err
		}
		rec := toRSVPRecord(value)
		return storage.TranslateError(tx.Create(&rec).Error, nil, domain.ErrRSVPExists)
	})
}

// Get returns the member's response to an event.
// POST: Returns the entity or domain.ErrRSVPNotFound
func (s *GormRSVPStore) Get(ctx context.Context, eventID, memberID string) (domain.RSVP, error) {
	var rec RSVPRecord
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND member_id = ?", eventID, memberID).
		Take(&rec).Error
	if err != nil {
		return domain.RSVP{}, storage.TranslateError(err, domain.ErrRSVPNotFound, nil)
	}
	return rec.toDomain(), nil
}

// Update changes an existing response. Only the seats added by the change
// count against capacity.
// POST: ErrRSVPNotFound if the pair has no response
func (s *GormRSVPStore) Update(ctx context.Context, value *domain.RSVP) error {
	if err := value.Validate(); err != nil {
		return err
	}
	return storage.WriteTx(ctx, s.db, func(tx *gorm.DB) error {
		ev, err := lockEvent(tx, value.EventID)
		if err != nil {
			return err
		}
		var prev RSVPRecord
		err = tx.Where("event_id = ? AND member_id = ?", value.EventID, value.MemberID).Take(&prev).Error
		if err != nil {
			return storage.TranslateError(err, domain.ErrRSVPNotFound, nil)
		}
		current, err := summarize(tx, value.EventID)
		if err != nil {
			return err
		}
		old := prev.toDomain()
		if err := ev.CheckCapacity(current, value.Seats()-old.Seats()); err != nil {
			return err
		}
		rec := toRSVPRecord(value)
		return storage.TranslateError(tx.Model(&RSVPRecord{}).
			Where("id = ?", prev.ID).
			Select("status", "guests", "note", "updated_at").
			Updates(&rec).Error, nil, nil)
	})
}

// Delete withdraws a response.
// POST: ErrRSVPNotFound if the pair has no response
func (s *GormRSVPStore) Delete(ctx context.Context, eventID, memberID string) error {
	res := s.db.WithContext(ctx).
		Where("event_id = ? AND member_id = ?", eventID, memberID).
		Delete(&RSVPRecord{})
	if res.Error != nil {
		return storage.TranslateError(res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return domain.ErrRSVPNotFound
	}
	return nil
}

func (s *GormRSVPStore) list(ctx context.Context, column, id string) ([]domain.RSVP, error) {
	var recs []RSVPRecord
	err := s.db.WithContext(ctx).
		Where(column+" = ?", id).
		Order("created_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, storage.TranslateError(err, nil, nil)
	}
	out := make([]domain.RSVP, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ListByEvent returns every response to an event, oldest first.
func (s *GormRSVPStore) ListByEvent(ctx context.Context, eventID string) ([]domain.RSVP, error) {
	return s.list(ctx, "event_id", eventID)
}

// ListByMember returns every response a member has made, oldest first.
func (s *GormRSVPStore) ListByMember(ctx context.Context, memberID string) ([]domain.RSVP, error) {
	return s.list(ctx, "member_id", memberID)
}

// Summarize counts responses to an event by status.
func (s *GormRSVPStore) Summarize(ctx context.Context, eventID string) (domain.Summary, error) {
	return summarize(s.db.WithContext(ctx), eventID)
}
