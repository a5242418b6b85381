package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/event"
	"fellowship/internal/domain/member"
	"fellowship/internal/domain/push"
)

func scheduledEvent(id string, capacity int) event.Event {
	start := testTime.Add(48 * time.Hour)
	return event.Event{
		ID:        id,
		Title:     "Harvest Supper",
		Location:  "Fellowship Hall",
		StartsAt:  start,
		EndsAt:    start.Add(2 * time.Hour),
		Capacity:  capacity,
		Status:    event.StatusScheduled,
		CreatedBy: "leader-1",
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}

type eventFixture struct {
	events   *fakeEvents
	rsvps    *fakeRSVPs
	members  *fakeMembers
	audit    *fakeAudit
	notifier *fakeNotifier
}

func newEventFixture(es ...event.Event) eventFixture {
	events := newFakeEvents(es...)
	return eventFixture{
		events:   events,
		rsvps:    newFakeRSVPs(events),
		members:  newFakeMembers(newMember("leader-1", member.RoleLeader), newMember("m-1", member.RoleMember), newMember("m-2", member.RoleMember)),
		audit:    &fakeAudit{},
		notifier: &fakeNotifier{},
	}
}

func (f eventFixture) deps() EventDeps {
	return EventDeps{
		EventStore: f.events,
		RSVPStore:  f.rsvps,
		Members:    f.members,
		Notifier:   f.notifier,
		Auditor:    &Auditor{Store: f.audit, Log: nopLog},
		BaseURL:    "https://church.example",
		GenerateID: seqIDs("e"),
		Now:        testNow,
		Log:        nopLog,
	}
}

func (f eventFixture) rsvpDeps() RSVPDeps {
	return RSVPDeps{EventStore: f.events, RSVPStore: f.rsvps, GenerateID: seqIDs("r"), Now: testNow, Log: nopLog}
}

var leader = Actor{ID: "leader-1", Role: member.RoleLeader}

// --- ExecuteCreateEvent ---

func TestExecuteCreateEvent_NotifiesOtherActiveMembers(t *testing.T) {
	f := newEventFixture()
	start := testTime.Add(72 * time.Hour)
	e, err := ExecuteCreateEvent(context.Background(), CreateEventInput{
		Actor:    leader,
		Title:    "  Choir Practice ",
		StartsAt: start,
		Notify:   true,
	}, f.deps())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Title != "Choir Practice" || e.Status != event.StatusScheduled {
		t.Errorf("unexpected event %+v", e)
	}
	if !e.EndsAt.Equal(start) {
		t.Errorf("expected EndsAt to default to StartsAt, got %v", e.EndsAt)
	}
	if len(f.notifier.jobs) != 1 {
		t.Fatalf("expected one notification job, got %d", len(f.notifier.jobs))
	}
	job := f.notifier.jobs[0]
	if job.Notification.Kind != push.KindEventCreated {
		t.Errorf("expected event_created, got %s", job.Notification.Kind)
	}
	if len(job.MemberIDs) != 2 {
		t.Errorf("expected creator excluded, got %v", job.MemberIDs)
	}
	if job.Notification.URL != "https://church.example/events/"+e.ID {
		t.Errorf("unexpected URL %s", job.Notification.URL)
	}
}

func TestExecuteCreateEvent_InvalidNothingSaved(t *testing.T) {
	f := newEventFixture()
	start := testTime.Add(time.Hour)
	_, err := ExecuteCreateEvent(context.Background(), CreateEventInput{
		Actor:    leader,
		Title:    "Backwards",
		StartsAt: start,
		EndsAt:   start.Add(-time.Minute),
	}, f.deps())
	if !errors.Is(err, event.ErrEndBeforeStart) {
		t.Errorf("expected ErrEndBeforeStart, got %v", err)
	}
	if len(f.events.byID) != 0 || len(f.audit.entries) != 0 || len(f.notifier.jobs) != 0 {
		t.Error("expected no side effects")
	}
}

// --- ExecuteUpdateEvent ---

func TestExecuteUpdateEvent_CapacityBelowHeadcount(t *testing.T) {
	f := newEventFixture(scheduledEvent("ev-1", 10))
	for _, id := range []string{"m-1", "m-2"} {
		_, err := ExecuteCreateRSVP(context.Background(), RSVPInput{EventID: "ev-1", MemberID: id, Status: event.RSVPAttending, Guests: 1}, f.rsvpDeps())
		if err != nil {
			t.Fatalf("rsvp %s: %v", id, err)
		}
	}

	small := 3
	_, err := ExecuteUpdateEvent(context.Background(), UpdateEventInput{Actor: leader, EventID: "ev-1", Capacity: &small}, f.deps())
	if !errors.Is(err, ErrCapacityBelowHeadcount) {
		t.Errorf("expected ErrCapacityBelowHeadcount, got %v", err)
	}
	if f.events.byID["ev-1"].Capacity != 10 {
		t.Error("capacity must be unchanged")
	}

	exact := 4
	e, err := ExecuteUpdateEvent(context.Background(), UpdateEventInput{Actor: leader, EventID: "ev-1", Capacity: &exact}, f.deps())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Capacity != 4 {
		t.Errorf("expected capacity 4, got %d", e.Capacity)
	}
}

// --- ExecuteCancelEvent ---

func TestExecuteCancelEvent_NotifiesRespondersExceptDeclined(t *testing.T) {
	f := newEventFixture(scheduledEvent("ev-1", 0))
	responses := map[string]string{"m-1": event.RSVPAttending, "m-2": event.RSVPDeclined, "leader-1": event.RSVPMaybe}
	for id, status := range responses {
		if _, err := ExecuteCreateRSVP(context.Background(), RSVPInput{EventID: "ev-1", MemberID: id, Status: status}, f.rsvpDeps()); err != nil {
			t.Fatalf("rsvp %s: %v", id, err)
		}
	}

	e, err := ExecuteCancelEvent(context.Background(), EventRefInput{Actor: leader, EventID: "ev-1"}, f.deps())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.IsCancelled() {
		t.Error("expected cancelled event")
	}
	if len(f.rsvps.rsvps) != 3 {
		t.Errorf("RSVPs must be kept, have %d", len(f.rsvps.rsvps))
	}
	if len(f.notifier.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(f.notifier.jobs))
	}
	job := f.notifier.jobs[0]
	if !job.Notification.Urgent || job.Notification.Kind != push.KindEventCancelled {
		t.Errorf("expected urgent cancellation, got %+v", job.Notification)
	}
	if len(job.MemberIDs) != 2 || job.MemberIDs[0] != "leader-1" || job.MemberIDs[1] != "m-1" {
		t.Errorf("expected leader-1 and m-1, got %v", job.MemberIDs)
	}
	if acts := f.audit.actions(); len(acts) != 1 || acts[0] != audit.ActionCancel {
		t.Errorf("expected cancel audit, got %v", acts)
	}

	if _, err := ExecuteCancelEvent(context.Background(), EventRefInput{Actor: leader, EventID: "ev-1"}, f.deps()); !errors.Is(err, event.ErrAlreadyCanceled) {
		t.Errorf("expected ErrAlreadyCanceled, got %v", err)
	}
	title := "New title"
	if _, err := ExecuteUpdateEvent(context.Background(), UpdateEventInput{Actor: leader, EventID: "ev-1", Title: &title}, f.deps()); !errors.Is(err, event.ErrAlreadyCanceled) {
		t.Errorf("expected cancelled event to be read-only, got %v", err)
	}
}

// --- ExecuteDeleteEvent ---

func TestExecuteDeleteEvent(t *testing.T) {
	f := newEventFixture(scheduledEvent("ev-1", 0))
	if err := ExecuteDeleteEvent(context.Background(), EventRefInput{Actor: adminActor("admin-1"), EventID: "ev-1"}, f.deps()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := f.events.byID["ev-1"]; ok {
		t.Error("expected event removed")
	}
	err := ExecuteDeleteEvent(context.Background(), EventRefInput{Actor: adminActor("admin-1"), EventID: "ev-1"}, f.deps())
	if !errors.Is(err, event.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- RSVPs ---

func TestRSVP_CapacityAndDuplicates(t *testing.T) {
	f := newEventFixture(scheduledEvent("ev-1", 3))
	deps := f.rsvpDeps()
	ctx := context.Background()

	if _, err := ExecuteCreateRSVP(ctx, RSVPInput{EventID: "ev-1", MemberID: "m-1", Status: event.RSVPAttending, Guests: 1}, deps); err != nil {
		t.Fatalf("first rsvp: %v", err)
	}
	if _, err := ExecuteCreateRSVP(ctx, RSVPInput{EventID: "ev-1", MemberID: "m-1", Status: event.RSVPMaybe}, deps); !errors.Is(err, event.ErrRSVPExists) {
		t.Errorf("expected ErrRSVPExists, got %v", err)
	}
	if _, err := ExecuteCreateRSVP(ctx, RSVPInput{EventID: "ev-1", MemberID: "m-2", Status: event.RSVPAttending, Guests: 1}, deps); !errors.Is(err, event.ErrEventFull) {
		t.Errorf("expected ErrEventFull, got %v", err)
	}
	if _, err := ExecuteCreateRSVP(ctx, RSVPInput{EventID: "ev-1", MemberID: "m-2", Status: event.RSVPMaybe}, deps); err != nil {
		t.Errorf("maybe takes no seat: %v", err)
	}

	if _, err := ExecuteChangeRSVP(ctx, RSVPInput{EventID: "ev-1", MemberID: "m-2", Status: event.RSVPAttending, Guests: 1}, deps); !errors.Is(err, event.ErrEventFull) {
		t.Errorf("expected ErrEventFull on change, got %v", err)
	}
	if _, err := ExecuteChangeRSVP(ctx, RSVPInput{EventID: "ev-1", MemberID: "m-2", Status: event.RSVPAttending}, deps); err != nil {
		t.Errorf("one seat left: %v", err)
	}

	s, _ := f.rsvps.Summarize(ctx, "ev-1")
	if s.Headcount() != 3 {
		t.Errorf("expected headcount 3, got %d", s.Headcount())
	}

	if err := ExecuteWithdrawRSVP(ctx, RSVPInput{EventID: "ev-1", MemberID: "m-1"}, deps); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := ExecuteWithdrawRSVP(ctx, RSVPInput{EventID: "ev-1", MemberID: "m-1"}, deps); !errors.Is(err, event.ErrRSVPNotFound) {
		t.Errorf("expected ErrRSVPNotFound, got %v", err)
	}
}

func TestRSVP_ClosedEvents(t *testing.T) {
	cancelled := scheduledEvent("ev-c", 0)
	cancelled.Status = event.StatusCancelled
	past := scheduledEvent("ev-p", 0)
	past.StartsAt = testTime.Add(-3 * time.Hour)
	past.EndsAt = testTime.Add(-time.Hour)

	f := newEventFixture(cancelled, past)
	for _, id := range []string{"ev-c", "ev-p"} {
		_, err := ExecuteCreateRSVP(context.Background(), RSVPInput{EventID: id, MemberID: "m-1", Status: event.RSVPAttending}, f.rsvpDeps())
		if !errors.Is(err, event.ErrEventClosed) {
			t.Errorf("%s: expected ErrEventClosed, got %v", id, err)
		}
	}
	_, err := ExecuteCreateRSVP(context.Background(), RSVPInput{EventID: "missing", MemberID: "m-1", Status: event.RSVPAttending}, f.rsvpDeps())
	if !errors.Is(err, event.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- ExecuteSendEventReminders ---

func TestExecuteSendEventReminders_OncePerPair(t *testing.T) {
	soon := scheduledEvent("ev-soon", 0)
	soon.StartsAt = testTime.Add(3 * time.Hour)
	soon.EndsAt = soon.StartsAt.Add(time.Hour)
	later := scheduledEvent("ev-later", 0) // 48h out
	f := newEventFixture(soon, later)
	ctx := context.Background()
	for _, r := range []RSVPInput{
		{EventID: "ev-soon", MemberID: "m-1", Status: event.RSVPAttending},
		{EventID: "ev-soon", MemberID: "m-2", Status: event.RSVPDeclined},
		{EventID: "ev-later", MemberID: "m-1", Status: event.RSVPAttending},
	} {
		if _, err := ExecuteCreateRSVP(ctx, r, f.rsvpDeps()); err != nil {
			t.Fatalf("rsvp: %v", err)
		}
	}

	deps := EventRemindersDeps{
		Events:   f.events,
		RSVPs:    f.rsvps,
		Members:  f.members,
		Notifier: f.notifier,
		Sent:     NewReminderLog(),
		BaseURL:  "https://church.example",
		Now:      testNow,
		Log:      nopLog,
	}
	n, err := ExecuteSendEventReminders(ctx, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reminder, got %d", n)
	}
	if len(f.notifier.jobs) != 2 {
		t.Fatalf("expected a push job and an email job, got %d", len(f.notifier.jobs))
	}
	pushJob, emailJob := f.notifier.jobs[0], f.notifier.jobs[1]
	if pushJob.Notification.Kind != push.KindEventReminder || len(pushJob.MemberIDs) != 1 || pushJob.MemberIDs[0] != "m-1" {
		t.Errorf("unexpected push job %+v", pushJob)
	}
	if emailJob.Email == nil || len(emailJob.Email.To) != 1 || emailJob.Email.To[0] != "m-1@example.com" {
		t.Errorf("unexpected email job %+v", emailJob)
	}

	n, err = ExecuteSendEventReminders(ctx, deps)
	if err != nil || n != 0 {
		t.Errorf("second run must not remind again, got %d, %v", n, err)
	}
}

func TestExecuteSendEventReminders_RetriesWhenQueueFull(t *testing.T) {
	soon := scheduledEvent("ev-soon", 0)
	soon.StartsAt = testTime.Add(3 * time.Hour)
	soon.EndsAt = soon.StartsAt.Add(time.Hour)
	f := newEventFixture(soon)
	ctx := context.Background()
	if _, err := ExecuteCreateRSVP(ctx, RSVPInput{EventID: "ev-soon", MemberID: "m-1", Status: event.RSVPAttending}, f.rsvpDeps()); err != nil {
		t.Fatalf("rsvp: %v", err)
	}

	sent := NewReminderLog()
	deps := EventRemindersDeps{Events: f.events, RSVPs: f.rsvps, Notifier: f.notifier, Sent: sent, Now: testNow, Log: nopLog}

	f.notifier.full = true
	n, err := ExecuteSendEventReminders(ctx, deps)
	if err != nil || n != 0 {
		t.Fatalf("refused job must not count, got %d, %v", n, err)
	}
	if sent.Len() != 0 {
		t.Fatalf("refused pair must be released, log has %d", sent.Len())
	}

	f.notifier.full = false
	if n, err = ExecuteSendEventReminders(ctx, deps); err != nil || n != 1 {
		t.Fatalf("expected the reminder on the next run, got %d, %v", n, err)
	}

	deps.Now = func() time.Time { return soon.StartsAt.Add(time.Minute) }
	if _, err := ExecuteSendEventReminders(ctx, deps); err != nil {
		t.Fatal(err)
	}
	if sent.Len() != 0 {
		t.Errorf("pairs for started events must be pruned, log has %d", sent.Len())
	}
}
