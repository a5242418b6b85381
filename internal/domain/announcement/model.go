package announcement

import (
	"strings"
	"time"
	"unicode/utf8"

	"fellowship/internal/domain/apperr"
)

// Announcement statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Priorities control ordering and whether a push notification is urgent.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Max length constants.
const (
	MaxTitleLength = 200
	MaxBodyLength  = 20000
)

// ValidPriorities contains all valid priority values.
var ValidPriorities = []string{PriorityNormal, PriorityHigh, PriorityUrgent}

// Domain errors
var (
	ErrEmptyTitle       = apperr.Validation("announcement title cannot be empty")
	ErrTitleTooLong     = apperr.Validation("announcement title cannot exceed 200 characters")
	ErrEmptyBody        = apperr.Validation("announcement body cannot be empty")
	ErrBodyTooLong      = apperr.Validation("announcement body cannot exceed 20000 characters")
	ErrInvalidStatus    = apperr.Validation("announcement status must be one of: draft, published")
	ErrInvalidPriority  = apperr.Validation("announcement priority must be one of: normal, high, urgent")
	ErrExpiryInPast     = apperr.Validation("announcement expiry must be after publication")
	ErrAlreadyPublished = apperr.Conflict("announcement is already published")
	ErrNotFound         = apperr.NotFound("announcement not found")
	ErrAlreadyViewed    = apperr.Conflict("announcement already viewed by member")
)

// Announcement is a message from the organisation to all members.
// Body is Markdown.
type Announcement struct {
	ID          string
	Title       string
	Body        string
	Priority    string
	Status      string
	Pinned      bool
	CreatedBy   string // member ID
	PublishedAt *time.Time
	ExpiresAt   *time.Time // nil means indefinite
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// View records that a member has seen an announcement. Unique per
// (AnnouncementID, MemberID).
type View struct {
	ID             string
	AnnouncementID string
	MemberID       string
	ViewedAt       time.Time
}

// Validate checks if the Announcement has valid data.
// PRE: Announcement struct is populated
// POST: Returns nil if valid, error otherwise
func (a *Announcement) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(a.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if strings.TrimSpace(a.Body) == "" {
		return ErrEmptyBody
	}
	if utf8.RuneCountInString(a.Body) > MaxBodyLength {
		return ErrBodyTooLong
	}
	if a.Status != StatusDraft && a.Status != StatusPublished {
		return ErrInvalidStatus
	}
	if !isValidPriority(a.Priority) {
		return ErrInvalidPriority
	}
	if a.ExpiresAt != nil && a.PublishedAt != nil && !a.ExpiresAt.After(*a.PublishedAt) {
		return ErrExpiryInPast
	}
	return nil
}

// Normalize applies defaults for a newly drafted announcement.
func (a *Announcement) Normalize() {
	a.Title = strings.TrimSpace(a.Title)
	if a.Status == "" {
		a.Status = StatusDraft
	}
	if a.Priority == "" {
		a.Priority = PriorityNormal
	}
}

// Publish makes the announcement visible to members.
// PRE: Announcement is a draft
// POST: Status is published, PublishedAt is now
func (a *Announcement) Publish(now time.Time) error {
	if a.Status == StatusPublished {
		return ErrAlreadyPublished
	}
	if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
		return ErrExpiryInPast
	}
	a.Status = StatusPublished
	a.PublishedAt = &now
	a.UpdatedAt = now
	return nil
}

// IsVisible returns true if members can see the announcement at now.
// INVARIANT: Announcement fields are not mutated
func (a *Announcement) IsVisible(now time.Time) bool {
	if a.Status != StatusPublished {
		return false
	}
	if a.PublishedAt != nil && now.Before(*a.PublishedAt) {
		return false
	}
	return a.ExpiresAt == nil || now.Before(*a.ExpiresAt)
}

// IsUrgent returns true for urgent announcements.
func (a *Announcement) IsUrgent() bool {
	return a.Priority == PriorityUrgent
}

func isValidPriority(p string) bool {
	for _, v := range ValidPriorities {
		if v == p {
			return true
		}
	}
	return false
}
