package event

import (
	"strings"
	"time"
	"unicode/utf8"

	"fellowship/internal/domain/apperr"
)

// Max length constants.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 4000
	MaxLocationLength    = 200
	MaxCapacity          = 100000
)

// Status constants.
const (
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
)

// Domain errors
var (
	ErrTitleRequired   = apperr.Validation("event title cannot be empty")
	ErrTitleTooLong    = apperr.Validation("event title cannot exceed 200 characters")
	ErrStartRequired   = apperr.Validation("event start time is required")
	ErrEndBeforeStart  = apperr.Validation("event end cannot be before its start")
	ErrDescTooLong     = apperr.Validation("event description cannot exceed 4000 characters")
	ErrLocationTooLong = apperr.Validation("event location cannot exceed 200 characters")
	ErrInvalidCapacity = apperr.Validation("event capacity must be between 0 and 100000")
	ErrInvalidStatus   = apperr.Validation("event status must be 'scheduled' or 'cancelled'")
	ErrAlreadyCanceled = apperr.Conflict("event is already cancelled")
	ErrNotFound        = apperr.NotFound("event not found")
)

// Event is a scheduled gathering members can RSVP to.
// INVARIANT: EndsAt >= StartsAt. Capacity 0 means unlimited.
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	Capacity    int
	Status      string
	CreatedBy   string // member ID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the event's invariants.
// PRE: none
// POST: returns nil if valid, error describing the first violation otherwise
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(e.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if e.StartsAt.IsZero() {
		return ErrStartRequired
	}
	if e.EndsAt.Before(e.StartsAt) {
		return ErrEndBeforeStart
	}
	if utf8.RuneCountInString(e.Description) > MaxDescriptionLength {
		return ErrDescTooLong
	}
	if utf8.RuneCountInString(e.Location) > MaxLocationLength {
		return ErrLocationTooLong
	}
	if e.Capacity < 0 || e.Capacity > MaxCapacity {
		return ErrInvalidCapacity
	}
	if e.Status != StatusScheduled && e.Status != StatusCancelled {
		return ErrInvalidStatus
	}
	return nil
}

// Normalize fills EndsAt for events given only a start.
func (e *Event) Normalize() {
	e.Title = strings.TrimSpace(e.Title)
	if e.EndsAt.IsZero() {
		e.EndsAt = e.StartsAt
	}
	if e.Status == "" {
		e.Status = StatusScheduled
	}
}

// IsCancelled returns true once the event has been called off.
func (e *Event) IsCancelled() bool {
	return e.Status == StatusCancelled
}

// HasEnded reports whether the event is over at now.
func (e *Event) HasEnded(now time.Time) bool {
	return !e.EndsAt.After(now)
}

// IsUpcoming reports whether a scheduled event starts inside [now, now+window).
func (e *Event) IsUpcoming(now time.Time, window time.Duration) bool {
	return e.Status == StatusScheduled && !e.StartsAt.Before(now) && e.StartsAt.Before(now.Add(window))
}

// Cancel calls the event off.
// PRE: Event is scheduled
// POST: Status is cancelled
func (e *Event) Cancel(now time.Time) error {
	if e.Status == StatusCancelled {
		return ErrAlreadyCanceled
	}
	e.Status = StatusCancelled
	e.UpdatedAt = now
	return nil
}

// IsMultiDay returns true if the event spans more than one calendar day.
func (e *Event) IsMultiDay() bool {
	return e.EndsAt.After(e.StartsAt) &&
		e.EndsAt.Format("2006-01-02") != e.StartsAt.Format("2006-01-02")
}
