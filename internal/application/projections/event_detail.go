package projections

import (
	"context"
	"time"

	eventStore "fellowship/internal/adapters/storage/event"
	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/event"
)

// EventListQuery selects events in a window. Zero From means now.
type EventListQuery struct {
	From             time.Time
	To               time.Time
	IncludeCancelled bool
	Page             Page
}

// EventListResult is one page of events.
type EventListResult struct {
	Events []event.Event
	Total  int64
}

// EventDeps holds dependencies for the event projections.
type EventDeps struct {
	EventStore EventStore
	RSVPStore  RSVPStore
}

// QueryEventList lists events starting in the window, soonest first.
func QueryEventList(ctx context.Context, query EventListQuery, deps EventDeps, now time.Time) (EventListResult, error) {
	page := query.Page.normalize()
	from := query.From
	if from.IsZero() {
		from = now
	}
	if !query.To.IsZero() && query.To.Before(from) {
		return EventListResult{}, apperr.Validation("'to' must not be before 'from'")
	}
	events, total, err := deps.EventStore.List(ctx, eventStore.ListFilter{
		From:             from,
		To:               query.To,
		IncludeCancelled: query.IncludeCancelled,
		Limit:            page.Limit,
		Offset:           page.Offset,
	})
	if err != nil {
		return EventListResult{}, err
	}
	return EventListResult{Events: events, Total: total}, nil
}

// EventDetail is an event with its RSVP totals and the viewer's response.
type EventDetail struct {
	Event     event.Event
	Summary   event.Summary
	Headcount int
	SeatsLeft *int // nil when capacity is unlimited
	MyRSVP    *event.RSVP
}

// EventDetailQuery names the event and the viewer.
type EventDetailQuery struct {
	EventID  string
	MemberID string
}

// QueryEventDetail returns one event with its summary and the viewer's RSVP.
// POST: MyRSVP is nil when the viewer has not responded
func QueryEventDetail(ctx context.Context, query EventDetailQuery, deps EventDeps) (EventDetail, error) {
	e, err := deps.EventStore.GetByID(ctx, query.EventID)
	if err != nil {
		return EventDetail{}, err
	}
	summary, err := deps.RSVPStore.Summarize(ctx, e.ID)
	if err != nil {
		return EventDetail{}, err
	}
	detail := EventDetail{Event: e, Summary: summary, Headcount: summary.Headcount()}
	if e.Capacity > 0 {
		left := max(e.Capacity-detail.Headcount, 0)
		detail.SeatsLeft = &left
	}

	r, err := deps.RSVPStore.Get(ctx, e.ID, query.MemberID)
	switch {
	case err == nil:
		detail.MyRSVP = &r
	case !apperr.IsNotFound(err):
		return EventDetail{}, err
	}
	return detail, nil
}

// QueryEventRSVPs lists every response to an event.
func QueryEventRSVPs(ctx context.Context, eventID string, deps EventDeps) ([]event.RSVP, error) {
	if _, err := deps.EventStore.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return deps.RSVPStore.ListByEvent(ctx, eventID)
}
