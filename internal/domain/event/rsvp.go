package event

import (
	"time"
	"unicode/utf8"

	"fellowship/internal/domain/apperr"
)

// RSVP status constants.
const (
	RSVPAttending = "attending"
	RSVPMaybe     = "maybe"
	RSVPDeclined  = "declined"
)

// Limits on an RSVP.
const (
	MaxGuests     = 10
	MaxNoteLength = 500
)

// RSVP errors
var (
	ErrInvalidRSVPStatus = apperr.Validation("rsvp status must be one of: attending, maybe, declined")
	ErrInvalidGuests     = apperr.Validation("guests must be between 0 and 10")
	ErrNoteTooLong       = apperr.Validation("note cannot exceed 500 characters")
	ErrRSVPRefsRequired  = apperr.Validation("rsvp requires an event and a member")
	ErrRSVPExists        = apperr.Conflict("member has already responded to this event")
	ErrEventFull         = apperr.Conflict("event is full")
	ErrEventClosed       = apperr.Conflict("event is cancelled or has already ended")
	ErrRSVPNotFound      = apperr.NotFound("rsvp not found")
)

// RSVP is a member's response to an event. At most one exists per
// (EventID, MemberID) pair.
type RSVP struct {
	ID        string
	EventID   string
	MemberID  string
	Status    string
	Guests    int
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary counts responses for one event.
type Summary struct {
	Attending int
	Maybe     int
	Declined  int
	Guests    int // guests brought by attending members
}

// Headcount is attending members plus their guests.
func (s Summary) Headcount() int {
	return s.Attending + s.Guests
}

// Validate checks the RSVP's invariants.
// PRE: none
// POST: returns nil if valid, error describing the first violation otherwise
func (r *RSVP) Validate() error {
	if r.EventID == "" || r.MemberID == "" {
		return ErrRSVPRefsRequired
	}
	switch r.Status {
	case RSVPAttending, RSVPMaybe, RSVPDeclined:
	default:
		return ErrInvalidRSVPStatus
	}
	if r.Guests < 0 || r.Guests > MaxGuests {
		return ErrInvalidGuests
	}
	if utf8.RuneCountInString(r.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// Seats is the number of places the RSVP takes from the event's capacity.
func (r *RSVP) Seats() int {
	if r.Status != RSVPAttending {
		return 0
	}
	return 1 + r.Guests
}

// CheckOpen rejects responses to cancelled or finished events.
// PRE: e is the event the RSVP refers to
func (e *Event) CheckOpen(now time.Time) error {
	if e.IsCancelled() || e.HasEnded(now) {
		return ErrEventClosed
	}
	return nil
}

// CheckCapacity reports ErrEventFull when adding delta seats to the current
// summary would exceed the event's capacity.
// PRE: delta is the change in seats caused by the write being checked
func (e *Event) CheckCapacity(current Summary, delta int) error {
	if e.Capacity == 0 || delta <= 0 {
		return nil
	}
	if current.Headcount()+delta > e.Capacity {
		return ErrEventFull
	}
	return nil
}
