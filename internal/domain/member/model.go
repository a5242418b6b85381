package member

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"fellowship/internal/domain/apperr"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength    = 100
	MaxEmailLength   = 254
	MaxPhoneLength   = 32
	MaxAddressLength = 300
)

// Password and lockout policy.
const (
	MinPasswordLength = 12
	BcryptCost        = 12
	MaxFailedLogins   = 5
	LockoutDuration   = 15 * time.Minute
)

// Role constants
const (
	RoleAdmin  = "admin"
	RoleLeader = "leader"
	RoleMember = "member"
)

// Status constants
const (
	StatusActive      = "active"
	StatusInactive    = "inactive"
	StatusDeactivated = "deactivated"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleAdmin, RoleLeader, RoleMember}

// Domain errors
var (
	ErrNameRequired       = apperr.Validation("first and last name are required")
	ErrNameTooLong        = apperr.Validation("names cannot exceed 100 characters")
	ErrInvalidEmail       = apperr.Validation("email must be a valid address")
	ErrInvalidPhone       = apperr.Validation("phone cannot exceed 32 characters")
	ErrInvalidAddress     = apperr.Validation("address cannot exceed 300 characters")
	ErrInvalidRole        = apperr.Validation("role must be one of: admin, leader, member")
	ErrInvalidStatus      = apperr.Validation("status must be one of: active, inactive, deactivated")
	ErrBirthdayInFuture   = apperr.Validation("birthday cannot be in the future")
	ErrPasswordTooShort   = apperr.Validation("password must be at least 12 characters")
	ErrWrongPassword      = apperr.New(apperr.ErrUnauthenticated, "incorrect email or password")
	ErrAlreadyDeactivated = apperr.Conflict("member is already deactivated")
	ErrNotDeactivated     = apperr.Conflict("member is not deactivated")
	ErrEmailTaken         = apperr.Conflict("a member with this email already exists")
	ErrNotFound           = apperr.NotFound("member not found")
	ErrAccountLocked      = apperr.New(apperr.ErrLocked, "account is locked due to too many failed attempts")
	ErrAccountInactive    = apperr.Forbidden("account is not active")
)

// Privacy holds per-field directory visibility. The zero value hides
// everything, so new members must start from DefaultPrivacy.
type Privacy struct {
	ShowEmail    bool
	ShowPhone    bool
	ShowAddress  bool
	ShowBirthday bool
}

// DefaultPrivacy returns the all-visible settings applied at creation.
func DefaultPrivacy() Privacy {
	return Privacy{ShowEmail: true, ShowPhone: true, ShowAddress: true, ShowBirthday: true}
}

// Member holds identity, contact, privacy and authentication state.
type Member struct {
	ID             string
	Email          string
	FirstName      string
	LastName       string
	Phone          string
	Address        string
	Birthday       *time.Time
	Role           string
	Status         string
	MembershipDate time.Time
	Privacy        Privacy

	PasswordHash string
	FailedLogins int
	LockedUntil  *time.Time
	LastLoginAt  *time.Time

	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// New builds an active member with default privacy. A nil privacy argument
// means all fields are visible.
// PRE: now is the creation instant
// POST: Status is active, MembershipDate is the creation day, Privacy is set
func New(id, email, firstName, lastName, role string, privacy *Privacy, now time.Time) *Member {
	p := DefaultPrivacy()
	if privacy != nil {
		p = *privacy
	}
	if role == "" {
		role = RoleMember
	}
	return &Member{
		ID:             id,
		Email:          NormalizeEmail(email),
		FirstName:      strings.TrimSpace(firstName),
		LastName:       strings.TrimSpace(lastName),
		Role:           role,
		Status:         StatusActive,
		MembershipDate: truncateDay(now),
		Privacy:        p,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NormalizeEmail lower-cases and trims an address so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks if the Member has valid data.
// PRE: Member struct is populated
// POST: Returns nil if valid, a validation error otherwise
// INVARIANT: Email contains '@'; first and last name are non-empty
func (m *Member) Validate() error {
	if strings.TrimSpace(m.FirstName) == "" || strings.TrimSpace(m.LastName) == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(m.FirstName) > MaxNameLength || utf8.RuneCountInString(m.LastName) > MaxNameLength {
		return ErrNameTooLong
	}
	at := strings.Index(m.Email, "@")
	if at <= 0 || at == len(m.Email)-1 || len(m.Email) > MaxEmailLength {
		return ErrInvalidEmail
	}
	if utf8.RuneCountInString(m.Phone) > MaxPhoneLength {
		return ErrInvalidPhone
	}
	if utf8.RuneCountInString(m.Address) > MaxAddressLength {
		return ErrInvalidAddress
	}
	if !IsValidRole(m.Role) {
		return ErrInvalidRole
	}
	switch m.Status {
	case StatusActive, StatusInactive, StatusDeactivated:
	default:
		return ErrInvalidStatus
	}
	if m.Birthday != nil && !m.CreatedAt.IsZero() && m.Birthday.After(m.CreatedAt) {
		return ErrBirthdayInFuture
	}
	return nil
}

// FullName joins first and last name.
func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

// IsActive returns true if the member can sign in and take part.
// INVARIANT: Member fields are not mutated
func (m *Member) IsActive() bool {
	return m.Status == StatusActive
}

// IsAdmin returns true if the member has the admin role.
func (m *Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// CanManageEvents reports whether the member may create and edit events.
func (m *Member) CanManageEvents() bool {
	return m.Role == RoleAdmin || m.Role == RoleLeader
}

// Deactivate moves the member out of the active directory without deleting
// any record that references it.
// PRE: Member is not already deactivated
// POST: Status is deactivated, DeactivatedAt is now
func (m *Member) Deactivate(now time.Time) error {
	if m.Status == StatusDeactivated {
		return ErrAlreadyDeactivated
	}
	m.Status = StatusDeactivated
	m.DeactivatedAt = &now
	m.UpdatedAt = now
	return nil
}

// Reactivate returns a deactivated member to active status.
// PRE: Member is deactivated
// POST: Status is active, DeactivatedAt is cleared
func (m *Member) Reactivate(now time.Time) error {
	if m.Status != StatusDeactivated {
		return ErrNotDeactivated
	}
	m.Status = StatusActive
	m.DeactivatedAt = nil
	m.UpdatedAt = now
	return nil
}

// SetPassword hashes and stores a password using bcrypt.
// PRE: plaintext has at least MinPasswordLength characters
// POST: PasswordHash is set to a bcrypt hash
func (m *Member) SetPassword(plaintext string) error {
	if len(plaintext) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), BcryptCost)
	if err != nil {
		return err
	}
	m.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a plaintext password against the stored hash.
// INVARIANT: Member fields are not mutated
func (m *Member) CheckPassword(plaintext string) error {
	if m.PasswordHash == "" {
		return ErrWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(plaintext)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// IsLocked returns true if the member is inside a lockout window.
func (m *Member) IsLocked(now time.Time) bool {
	return m.LockedUntil != nil && now.Before(*m.LockedUntil)
}

// RecordFailedLogin increments the failure counter and locks the member after
// MaxFailedLogins consecutive failures. It reports whether this call locked it.
// POST: FailedLogins incremented; LockedUntil set when the threshold is reached
func (m *Member) RecordFailedLogin(now time.Time) bool {
	m.FailedLogins++
	m.UpdatedAt = now
	if m.FailedLogins >= MaxFailedLogins {
		until := now.Add(LockoutDuration)
		m.LockedUntil = &until
		m.FailedLogins = 0
		return true
	}
	return false
}

// RecordSuccessfulLogin clears the failure state and stamps LastLoginAt.
// POST: FailedLogins is 0, LockedUntil is nil
func (m *Member) RecordSuccessfulLogin(now time.Time) {
	m.FailedLogins = 0
	m.LockedUntil = nil
	m.LastLoginAt = &now
	m.UpdatedAt = now
}

// IsValidRole reports whether role is a known role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

// VisibleTo returns a copy of m as a directory viewer may see it. Fields the
// member has hidden are blanked unless the viewer is the member or an admin.
// Authentication state is always stripped.
// INVARIANT: m is not mutated
func (m Member) VisibleTo(viewerID string, viewerIsAdmin bool) Member {
	v := m
	v.PasswordHash = ""
	v.FailedLogins = 0
	v.LockedUntil = nil
	if viewerIsAdmin || viewerID == m.ID {
		return v
	}
	v.LastLoginAt = nil
	if !m.Privacy.ShowEmail {
		v.Email = ""
	}
	if !m.Privacy.ShowPhone {
		v.Phone = ""
	}
	if !m.Privacy.ShowAddress {
		v.Address = ""
	}
	if !m.Privacy.ShowBirthday {
		v.Birthday = nil
	}
	return v
}
