package orchestrators

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/adapters/email"
	eventStore "fellowship/internal/adapters/storage/event"
	"fellowship/internal/application/notify"
	"fellowship/internal/domain/event"
	"fellowship/internal/domain/push"
)

// ReminderWindow is how far ahead reminders look.
const ReminderWindow = 24 * time.Hour

// ReminderLog remembers which (event, member) pairs were already reminded.
// It lives for the process; a restart may remind once more. Entries are
// dropped once their event has started.
type ReminderLog struct {
	mu   sync.Mutex
	sent map[string]time.Time // pair key -> event start
}

// NewReminderLog creates an empty log.
func NewReminderLog() *ReminderLog {
	return &ReminderLog{sent: make(map[string]time.Time)}
}

func reminderKey(eventID, memberID string) string { return eventID + "/" + memberID }

// claim marks the pair and reports whether it was new.
func (l *ReminderLog) claim(e event.Event, memberID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := reminderKey(e.ID, memberID)
	if _, ok := l.sent[key]; ok {
		return false
	}
	l.sent[key] = e.StartsAt
	return true
}

// release forgets pairs whose reminder never left the process.
func (l *ReminderLog) release(eventID string, memberIDs []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range memberIDs {
		delete(l.sent, reminderKey(eventID, id))
	}
}

// prune drops pairs for events that started before now.
func (l *ReminderLog) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, startsAt := range l.sent {
		if startsAt.Before(now) {
			delete(l.sent, key)
		}
	}
}

// Len reports how many pairs are remembered.
func (l *ReminderLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}

// EventLister is the part of event.Store reminders read.
type EventLister interface {
	List(ctx context.Context, filter eventStore.ListFilter) ([]event.Event, int64, error)
}

// AttendeeLister lists the responses to one event.
type AttendeeLister interface {
	ListByEvent(ctx context.Context, eventID string) ([]event.RSVP, error)
}

// EventRemindersDeps holds dependencies for the reminder job.
type EventRemindersDeps struct {
	Events   EventLister
	RSVPs    AttendeeLister
	Members  MemberGetter // optional; enables reminder emails
	Notifier Notifier
	Sent     *ReminderLog
	BaseURL  string
	Now      func() time.Time
	Log      *zap.SugaredLogger
}

// ExecuteSendEventReminders notifies attending members of events starting
// within ReminderWindow. It returns the number of members reminded.
// PRE: deps.Sent and deps.Notifier are non-nil
// POST: each (event, member) pair is queued at most once per ReminderLog; a
// pair whose job the notifier refused is left for the next run
func ExecuteSendEventReminders(ctx context.Context, deps EventRemindersDeps) (int, error) {
	now := deps.Now()
	deps.Sent.prune(now)
	events, _, err := deps.Events.List(ctx, eventStore.ListFilter{From: now, To: now.Add(ReminderWindow)})
	if err != nil {
		return 0, err
	}

	reminded := 0
	for _, e := range events {
		if e.IsCancelled() || e.StartsAt.Before(now) {
			continue
		}
		rsvps, err := deps.RSVPs.ListByEvent(ctx, e.ID)
		if err != nil {
			deps.Log.Warnw("reminder_event", "event", "rsvp_lookup_failed", "event_id", e.ID, "error", err)
			continue
		}
		var ids []string
		for _, r := range rsvps {
			if r.Status == event.RSVPAttending && deps.Sent.claim(e, r.MemberID) {
				ids = append(ids, r.MemberID)
			}
		}
		if len(ids) == 0 {
			continue
		}

		url := deps.BaseURL + "/events/" + e.ID
		queued := deps.Notifier.Enqueue(notify.Job{
			MemberIDs: ids,
			Notification: push.Notification{
				Kind:    push.KindEventReminder,
				Title:   "Reminder: " + e.Title,
				Body:    reminderBody(e),
				URL:     url,
				TopicID: "reminder-" + e.ID,
			},
		})
		if !queued {
			deps.Sent.release(e.ID, ids)
			deps.Log.Warnw("reminder_event", "event", "reminders_deferred", "event_id", e.ID, "members", len(ids))
			continue
		}
		if deps.Members != nil {
			for _, id := range ids {
				m, err := deps.Members.GetByID(ctx, id)
				if err != nil || !m.IsActive() {
					continue
				}
				req, err := email.NewEventReminder(m.Email, e.Title, e.Location, e.StartsAt, url)
				if err != nil {
					deps.Log.Warnw("reminder_event", "event", "email_render_failed", "event_id", e.ID, "error", err)
					break
				}
				notifyMembers(deps.Notifier, notify.Job{Email: &req})
			}
		}
		reminded += len(ids)
		deps.Log.Infow("reminder_event", "event", "reminders_queued", "event_id", e.ID, "members", len(ids))
	}
	return reminded, nil
}

func reminderBody(e event.Event) string {
	body := e.StartsAt.Format("Mon 2 Jan, 3:04 PM")
	if e.Location != "" {
		body += " at " + e.Location
	}
	return body
}
