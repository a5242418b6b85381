package orchestrators

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/domain/event"
)

// RSVPInput carries a member's response to an event.
type RSVPInput struct {
	EventID  string
	MemberID string
	Status   string
	Guests   int
	Note     string
}

// RSVPDeps holds dependencies for the RSVP commands.
type RSVPDeps struct {
	EventStore EventStore
	RSVPStore  RSVPStore
	GenerateID func() string
	Now        func() time.Time
	Log        *zap.SugaredLogger
}

// ExecuteCreateRSVP records a member's first response to an event.
// PRE: event exists, is scheduled and has not ended
// POST: RSVP persisted; a second response for the same pair is a conflict;
// attending seats beyond capacity are refused with ErrEventFull
func ExecuteCreateRSVP(ctx context.Context, input RSVPInput, deps RSVPDeps) (event.RSVP, error) {
	e, err := deps.EventStore.GetByID(ctx, input.EventID)
	if err != nil {
		return event.RSVP{}, err
	}
	now := deps.Now()
	if err := e.CheckOpen(now); err != nil {
		return event.RSVP{}, err
	}
	r := event.RSVP{
		ID:        deps.GenerateID(),
		EventID:   e.ID,
		MemberID:  input.MemberID,
		Status:    input.Status,
		Guests:    input.Guests,
		Note:      strings.TrimSpace(input.Note),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := deps.RSVPStore.Create(ctx, &r); err != nil {
		return event.RSVP{}, err
	}
	deps.Log.Infow("rsvp_event", "event", "rsvp_created", "event_id", e.ID, "member_id", r.MemberID, "status", r.Status, "guests", r.Guests)
	return r, nil
}

// ExecuteChangeRSVP replaces a member's existing response.
// PRE: the member has responded; event is still open
// POST: status, guests and note replaced; capacity re-checked for added seats
func ExecuteChangeRSVP(ctx context.Context, input RSVPInput, deps RSVPDeps) (event.RSVP, error) {
	e, err := deps.EventStore.GetByID(ctx, input.EventID)
	if err != nil {
		return event.RSVP{}, err
	}
	now := deps.Now()
	if err := e.CheckOpen(now); err != nil {
		return event.RSVP{}, err
	}
	r, err := deps.RSVPStore.Get(ctx, e.ID, input.MemberID)
	if err != nil {
		return event.RSVP{}, err
	}
	r.Status = input.Status
	r.Guests = input.Guests
	r.Note = strings.TrimSpace(input.Note)
	r.UpdatedAt = now
	if err := deps.RSVPStore.Update(ctx, &r); err != nil {
		return event.RSVP{}, err
	}
	deps.Log.Infow("rsvp_event", "event", "rsvp_changed", "event_id", e.ID, "member_id", r.MemberID, "status", r.Status, "guests", r.Guests)
	return r, nil
}

// ExecuteWithdrawRSVP removes a member's response.
// POST: no RSVP exists for the pair
func ExecuteWithdrawRSVP(ctx context.Context, input RSVPInput, deps RSVPDeps) error {
	if err := deps.RSVPStore.Delete(ctx, input.EventID, input.MemberID); err != nil {
		return err
	}
	deps.Log.Infow("rsvp_event", "event", "rsvp_withdrawn", "event_id", input.EventID, "member_id", input.MemberID)
	return nil
}
