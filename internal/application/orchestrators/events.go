package orchestrators

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/application/notify"
	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/event"
	"fellowship/internal/domain/push"
)

// ErrCapacityBelowHeadcount rejects shrinking an event below its current attendance.
var ErrCapacityBelowHeadcount = apperr.Conflict("capacity cannot be lower than the current headcount")

// EventStore is the part of event.Store that event commands use.
type EventStore interface {
	Create(ctx context.Context, value *event.Event) error
	GetByID(ctx context.Context, id string) (event.Event, error)
	Update(ctx context.Context, value *event.Event) error
	Delete(ctx context.Context, id string) error
}

// RSVPStore is the part of event.RSVPStore that RSVP commands use.
type RSVPStore interface {
	Create(ctx context.Context, value *event.RSVP) error
	Get(ctx context.Context, eventID, memberID string) (event.RSVP, error)
	Update(ctx context.Context, value *event.RSVP) error
	Delete(ctx context.Context, eventID, memberID string) error
	ListByEvent(ctx context.Context, eventID string) ([]event.RSVP, error)
	Summarize(ctx context.Context, eventID string) (event.Summary, error)
}

// EventDeps holds dependencies shared by the event commands.
type EventDeps struct {
	EventStore EventStore
	RSVPStore  RSVPStore
	Members    MemberLister
	Notifier   Notifier
	Auditor    *Auditor
	BaseURL    string
	GenerateID func() string
	Now        func() time.Time
	Log        *zap.SugaredLogger
}

// CreateEventInput carries input for creating an event.
type CreateEventInput struct {
	Actor       Actor
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time // defaults to StartsAt
	Capacity    int
	Notify      bool // push an announcement of the event to active members
}

// ExecuteCreateEvent schedules a new event.
// PRE: Actor may manage events
// POST: Event persisted with status scheduled
func ExecuteCreateEvent(ctx context.Context, input CreateEventInput, deps EventDeps) (event.Event, error) {
	now := deps.Now()
	e := event.Event{
		ID:          deps.GenerateID(),
		Title:       input.Title,
		Description: strings.TrimSpace(input.Description),
		Location:    strings.TrimSpace(input.Location),
		StartsAt:    input.StartsAt.UTC(),
		EndsAt:      input.EndsAt.UTC(),
		Capacity:    input.Capacity,
		Status:      event.StatusScheduled,
		CreatedBy:   input.Actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.Normalize()
	if err := deps.EventStore.Create(ctx, &e); err != nil {
		return event.Event{}, err
	}

	deps.Log.Infow("event_event", "event", "event_created", "event_id", e.ID, "by", input.Actor.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryEvent, audit.ActionCreate, now).
		WithResource("event", e.ID).
		WithDescription("event created: "+e.Title))

	if input.Notify && deps.Members != nil {
		ids, err := activeMemberIDs(ctx, deps.Members, input.Actor.ID)
		if err != nil {
			deps.Log.Warnw("event_event", "event", "notify_targets_failed", "event_id", e.ID, "error", err)
		} else {
			notifyMembers(deps.Notifier, notify.Job{
				MemberIDs: ids,
				Notification: push.Notification{
					Kind:    push.KindEventCreated,
					Title:   e.Title,
					Body:    e.StartsAt.Format("Mon 2 Jan, 3:04 PM"),
					URL:     deps.BaseURL + "/events/" + e.ID,
					TopicID: "event-" + e.ID,
				},
			})
		}
	}
	return e, nil
}

// UpdateEventInput carries edits to an event. Nil fields are unchanged.
type UpdateEventInput struct {
	Actor       Actor
	EventID     string
	Title       *string
	Description *string
	Location    *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	Capacity    *int
}

// ExecuteUpdateEvent edits a scheduled event.
// PRE: Actor may manage events
// POST: Changes persisted; capacity never drops below current headcount
func ExecuteUpdateEvent(ctx context.Context, input UpdateEventInput, deps EventDeps) (event.Event, error) {
	e, err := deps.EventStore.GetByID(ctx, input.EventID)
	if err != nil {
		return event.Event{}, err
	}
	if e.IsCancelled() {
		return event.Event{}, event.ErrAlreadyCanceled
	}
	if input.Title != nil {
		e.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		e.Description = strings.TrimSpace(*input.Description)
	}
	if input.Location != nil {
		e.Location = strings.TrimSpace(*input.Location)
	}
	if input.StartsAt != nil {
		e.StartsAt = input.StartsAt.UTC()
	}
	if input.EndsAt != nil {
		e.EndsAt = input.EndsAt.UTC()
	}
	if input.Capacity != nil && *input.Capacity != e.Capacity {
		e.Capacity = *input.Capacity
		if e.Capacity > 0 {
			summary, err := deps.RSVPStore.Summarize(ctx, e.ID)
			if err != nil {
				return event.Event{}, err
			}
			if summary.Headcount() > e.Capacity {
				return event.Event{}, ErrCapacityBelowHeadcount
			}
		}
	}
	if err := e.Validate(); err != nil {
		return event.Event{}, err
	}
	now := deps.Now()
	e.UpdatedAt = now
	if err := deps.EventStore.Update(ctx, &e); err != nil {
		return event.Event{}, err
	}

	deps.Log.Infow("event_event", "event", "event_updated", "event_id", e.ID, "by", input.Actor.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryEvent, audit.ActionUpdate, now).
		WithResource("event", e.ID).
		WithDescription("event updated: "+e.Title))
	return e, nil
}

// EventRefInput names an event acted on by Actor.
type EventRefInput struct {
	Actor   Actor
	EventID string
}

// ExecuteCancelEvent calls off an event and tells members who responded
// attending or maybe.
// PRE: Actor may manage events; event is scheduled
// POST: Event status is cancelled; RSVPs are kept
func ExecuteCancelEvent(ctx context.Context, input EventRefInput, deps EventDeps) (event.Event, error) {
	e, err := deps.EventStore.GetByID(ctx, input.EventID)
	if err != nil {
		return event.Event{}, err
	}
	now := deps.Now()
	if err := e.Cancel(now); err != nil {
		return event.Event{}, err
	}
	if err := deps.EventStore.Update(ctx, &e); err != nil {
		return event.Event{}, err
	}

	deps.Log.Infow("event_event", "event", "event_cancelled", "event_id", e.ID, "by", input.Actor.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryEvent, audit.ActionCancel, now).
		WithSeverity(audit.SeverityWarning).
		WithResource("event", e.ID).
		WithDescription("event cancelled: "+e.Title))

	rsvps, err := deps.RSVPStore.ListByEvent(ctx, e.ID)
	if err != nil {
		deps.Log.Warnw("event_event", "event", "notify_targets_failed", "event_id", e.ID, "error", err)
		return e, nil
	}
	var ids []string
	for _, r := range rsvps {
		if r.Status != event.RSVPDeclined {
			ids = append(ids, r.MemberID)
		}
	}
	notifyMembers(deps.Notifier, notify.Job{
		MemberIDs: ids,
		Notification: push.Notification{
			Kind:    push.KindEventCancelled,
			Title:   "Cancelled: " + e.Title,
			Body:    e.StartsAt.Format("Mon 2 Jan, 3:04 PM") + " will not go ahead.",
			URL:     deps.BaseURL + "/events/" + e.ID,
			Urgent:  true,
			TopicID: "event-" + e.ID,
		},
	})
	return e, nil
}

// ExecuteDeleteEvent removes an event and its RSVPs.
// PRE: Actor is an admin
// POST: Event and its RSVPs are gone
func ExecuteDeleteEvent(ctx context.Context, input EventRefInput, deps EventDeps) error {
	e, err := deps.EventStore.GetByID(ctx, input.EventID)
	if err != nil {
		return err
	}
	if err := deps.EventStore.Delete(ctx, e.ID); err != nil {
		return err
	}

	deps.Log.Infow("event_event", "event", "event_deleted", "event_id", e.ID, "by", input.Actor.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryEvent, audit.ActionDelete, deps.Now()).
		WithSeverity(audit.SeverityWarning).
		WithResource("event", e.ID).
		WithDescription("event deleted: "+e.Title))
	return nil
}
