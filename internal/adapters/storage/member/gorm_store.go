package member

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"fellowship/internal/adapters/storage"
	domain "fellowship/internal/domain/member"
)

// Record is the members table row.
type Record struct {
	ID             string `gorm:"primaryKey;size:36"`
	Email          string `gorm:"size:254;not null;uniqueIndex"`
	FirstName      string `gorm:"size:100;not null"`
	LastName       string `gorm:"size:100;not null;index"`
	Phone          string `gorm:"size:32"`
	Address        string `gorm:"size:300"`
	Birthday       *time.Time
	Role           string    `gorm:"size:16;not null;index"`
	Status         string    `gorm:"size:16;not null;index"`
	MembershipDate time.Time `gorm:"not null"`
	ShowEmail      bool      `gorm:"not null"`
	ShowPhone      bool      `gorm:"not null"`
	ShowAddress    bool      `gorm:"not null"`
	ShowBirthday   bool      `gorm:"not null"`
	PasswordHash   string    `gorm:"size:100"`
	FailedLogins   int       `gorm:"not null"`
	LockedUntil    *time.Time
	LastLoginAt    *time.Time
	DeactivatedAt  *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

// TableName pins the table name independent of gorm's naming strategy.
func (Record) TableName() string { return "members" }

func toRecord(m *domain.Member) Record {
	return Record{
		ID:             m.ID,
		Email:          domain.NormalizeEmail(m.Email),
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		Phone:          m.Phone,
		Address:        m.Address,
		Birthday:       m.Birthday,
		Role:           m.Role,
		Status:         m.Status,
		MembershipDate: m.MembershipDate,
		ShowEmail:      m.Privacy.ShowEmail,
		ShowPhone:      m.Privacy.ShowPhone,
		ShowAddress:    m.Privacy.ShowAddress,
		ShowBirthday:   m.Privacy.ShowBirthday,
		PasswordHash:   m.PasswordHash,
		FailedLogins:   m.FailedLogins,
		LockedUntil:    m.LockedUntil,
		LastLoginAt:    m.LastLoginAt,
		DeactivatedAt:  m.DeactivatedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func (r Record) toDomain() domain.Member {
	return domain.Member{
		ID:             r.ID,
		Email:          r.Email,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Phone:          r.Phone,
		Address:        r.Address,
		Birthday:       r.Birthday,
		Role:           r.Role,
		Status:         r.Status,
		MembershipDate: r.MembershipDate,
		Privacy: domain.Privacy{
			ShowEmail:    r.ShowEmail,
			ShowPhone:    r.ShowPhone,
			ShowAddress:  r.ShowAddress,
			ShowBirthday: r.ShowBirthday,
		},
		PasswordHash:  r.PasswordHash,
		FailedLogins:  r.FailedLogins,
		LockedUntil:   r.LockedUntil,
		LastLoginAt:   r.LastLoginAt,
		DeactivatedAt: r.DeactivatedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// GormStore implements Store with gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a new member store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create inserts a new member.
// PRE: value passes Validate
// POST: row inserted, or ErrEmailTaken when the email is already registered
func (s *GormStore) Create(ctx context.Context, value *domain.Member) error {
	if err := value.Validate(); err != nil {
		return err
	}
	rec := toRecord(value)
	err := s.db.WithContext(ctx).Create(&rec).Error
	return storage.TranslateError(err, nil, domain.ErrEmailTaken)
}

// GetByID retrieves a Member by its ID.
// PRE: id is non-empty
// POST: Returns the entity or domain.ErrNotFound
func (s *GormStore) GetByID(ctx context.Context, id string) (domain.Member, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if err != nil {
		return domain.Member{}, storage.TranslateError(err, domain.ErrNotFound, nil)
	}
	return rec.toDomain(), nil
}

// GetByEmail retrieves a Member by email, case-insensitively.
// PRE: email is non-empty
// POST: Returns the entity or domain.ErrNotFound
func (s *GormStore) GetByEmail(ctx context.Context, email string) (domain.Member, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("email = ?", domain.NormalizeEmail(email)).Take(&rec).Error
	if err != nil {
		return domain.Member{}, storage.TranslateError(err, domain.ErrNotFound, nil)
	}
	return rec.toDomain(), nil
}

// Update overwrites the profile, role, status and password columns of an
// existing member. Lockout state is owned by RecordLoginFailure and
// RecordLoginSuccess and is never written here.
// PRE: value passes Validate
// POST: row updated; ErrNotFound if no row has value.ID; ErrEmailTaken on email collision
func (s *GormStore) Update(ctx context.Context, value *domain.Member) error {
	if err := value.Validate(); err != nil {
		return err
	}
	rec := toRecord(value)
	res := s.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", rec.ID).
		Select("*").Omit("id", "created_at", "failed_logins", "locked_until", "last_login_at").
		Updates(&rec)
	if res.Error != nil {
		return storage.TranslateError(res.Error, domain.ErrNotFound, domain.ErrEmailTaken)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordLoginFailure counts a wrong password against the member. The failure
// that reaches MaxFailedLogins locks the account. Failures while already
// locked are not counted.
// POST: returns the member as stored and whether this call locked it;
// ErrNotFound if no row has id
func (s *GormStore) RecordLoginFailure(ctx context.Context, id string, now time.Time) (domain.Member, bool, error) {
	var (
		m      domain.Member
		locked bool
	)
	err := storage.WriteTx(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		if m, err = lockMember(tx, id); err != nil {
			return err
		}
		if m.IsLocked(now) {
			return nil
		}
		locked = m.RecordFailedLogin(now)
		return saveLoginState(tx, &m)
	})
	if err != nil {
		return domain.Member{}, false, err
	}
	return m, locked, nil
}

// RecordLoginSuccess clears the failure state and stamps last_login_at,
// provided the member is still active and not locked when the row is read.
// POST: returns the member as stored; ErrAccountInactive, ErrAccountLocked
// or ErrNotFound leave the row unchanged
func (s *GormStore) RecordLoginSuccess(ctx context.Context, id string, now time.Time) (domain.Member, error) {
	var m domain.Member
	err := storage.WriteTx(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		if m, err = lockMember(tx, id); err != nil {
			return err
		}
		switch {
		case !m.IsActive():
			return domain.ErrAccountInactive
		case m.IsLocked(now):
			return domain.ErrAccountLocked
		}
		m.RecordSuccessfulLogin(now)
		return saveLoginState(tx, &m)
	})
	if err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

func lockMember(tx *gorm.DB, id string) (domain.Member, error) {
	var rec Record
	if err := storage.ForUpdate(tx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return domain.Member{}, storage.TranslateError(err, domain.ErrNotFound, nil)
	}
	return rec.toDomain(), nil
}

// saveLoginState writes only the lockout columns.
func saveLoginState(tx *gorm.DB, m *domain.Member) error {
	err := tx.Model(&Record{}).Where("id = ?", m.ID).Updates(map[string]any{
		"failed_logins": m.FailedLogins,
		"locked_until":  storage.UTC(m.LockedUntil),
		"last_login_at": storage.UTC(m.LastLoginAt),
		"updated_at":    m.UpdatedAt.UTC(),
	}).Error
	return storage.TranslateError(err, domain.ErrNotFound, nil)
}

func (s *GormStore) filtered(ctx context.Context, filter ListFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&Record{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR email LIKE ?", like, like, like)
	}
	return q
}

// sortClause returns a safe ORDER BY clause. Only allowed columns are accepted.
func sortClause(filter ListFilter) string {
	allowed := map[string]string{
		"first_name": "first_name", "last_name": "last_name", "email": "email",
		"membership_date": "membership_date", "created_at": "created_at",
	}
	col, ok := allowed[filter.Sort]
	if !ok {
		return "last_name ASC, first_name ASC"
	}
	dir := "ASC"
	if filter.Dir == "desc" {
		dir = "DESC"
	}
	return col + " " + dir + ", id ASC"
}

// List returns one page of members matching the filter and the total match count.
// PRE: filter has valid parameters
// POST: Returns matching entities (at most Limit) and total >= len(result)
func (s *GormStore) List(ctx context.Context, filter ListFilter) ([]domain.Member, int64, error) {
	var total int64
	if err := s.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, storage.TranslateError(err, nil, nil)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	var recs []Record
	err := s.filtered(ctx, filter).
		Order(sortClause(filter)).
		Limit(limit).Offset(filter.Offset).
		Find(&recs).Error
	if err != nil {
		return nil, 0, storage.TranslateError(err, nil, nil)
	}
	out := make([]domain.Member, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, total, nil
}

// CountByStatus counts members with the given status.
// POST: Returns count >= 0
func (s *GormStore) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Record{}).Where("status = ?", status).Count(&n).Error
	return n, storage.TranslateError(err, nil, nil)
}
