package orchestrators

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	eventStore "fellowship/internal/adapters/storage/event"
	memberStore "fellowship/internal/adapters/storage/member"
	"fellowship/internal/application/notify"
	"fellowship/internal/domain/announcement"
	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/event"
	"fellowship/internal/domain/member"
	"fellowship/internal/domain/message"
	"fellowship/internal/domain/push"
)

var testTime = time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC)

func testNow() time.Time { return testTime }

// seqIDs returns a generator of "<prefix>-1", "<prefix>-2", ...
func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

var nopLog = zap.NewNop().Sugar()

// --- members ---

type fakeMembers struct {
	byID map[string]member.Member
}

func newFakeMembers(ms ...*member.Member) *fakeMembers {
	f := &fakeMembers{byID: make(map[string]member.Member)}
	for _, m := range ms {
		f.byID[m.ID] = *m
	}
	return f
}

func (f *fakeMembers) Create(_ context.Context, m *member.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	for _, existing := range f.byID {
		if existing.Email == member.NormalizeEmail(m.Email) {
			return member.ErrEmailTaken
		}
	}
	f.byID[m.ID] = *m
	return nil
}

func (f *fakeMembers) GetByID(_ context.Context, id string) (member.Member, error) {
	m, ok := f.byID[id]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	return m, nil
}

func (f *fakeMembers) GetByEmail(_ context.Context, email string) (member.Member, error) {
	for _, m := range f.byID {
		if m.Email == member.NormalizeEmail(email) {
			return m, nil
		}
	}
	return member.Member{}, member.ErrNotFound
}

func (f *fakeMembers) Update(_ context.Context, m *member.Member) error {
	if _, ok := f.byID[m.ID]; !ok {
		return member.ErrNotFound
	}
	if err := m.Validate(); err != nil {
		return err
	}
	f.byID[m.ID] = *m
	return nil
}

func (f *fakeMembers) RecordLoginFailure(_ context.Context, id string, now time.Time) (member.Member, bool, error) {
	m, ok := f.byID[id]
	if !ok {
		return member.Member{}, false, member.ErrNotFound
	}
	if m.IsLocked(now) {
		return m, false, nil
	}
	locked := m.RecordFailedLogin(now)
	f.byID[id] = m
	return m, locked, nil
}

func (f *fakeMembers) RecordLoginSuccess(_ context.Context, id string, now time.Time) (member.Member, error) {
	m, ok := f.byID[id]
	switch {
	case !ok:
		return member.Member{}, member.ErrNotFound
	case !m.IsActive():
		return member.Member{}, member.ErrAccountInactive
	case m.IsLocked(now):
		return member.Member{}, member.ErrAccountLocked
	}
	m.RecordSuccessfulLogin(now)
	f.byID[id] = m
	return m, nil
}

func (f *fakeMembers) List(_ context.Context, filter memberStore.ListFilter) ([]member.Member, int64, error) {
	var out []member.Member
	for _, m := range f.byID {
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func newMember(id, role string) *member.Member {
	return member.New(id, id+"@example.com", "First"+id, "Last", role, nil, testTime.Add(-24*time.Hour))
}

// --- audit and notifications ---

type fakeAudit struct {
	entries []audit.Entry
	err     error
}

func (f *fakeAudit) Append(ctx context.Context, e audit.Entry) error {
	if f.err != nil {
		return f.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) actions() []audit.Action {
	out := make([]audit.Action, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	jobs []notify.Job
	full bool // refuse every job, as a saturated queue does
}

func (f *fakeNotifier) Enqueue(job notify.Job) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.jobs = append(f.jobs, job)
	return true
}

// --- events ---

type fakeEvents struct {
	byID map[string]event.Event
}

func newFakeEvents(es ...event.Event) *fakeEvents {
	f := &fakeEvents{byID: make(map[string]event.Event)}
	for _, e := range es {
		f.byID[e.ID] = e
	}
	return f
}

func (f *fakeEvents) Create(_ context.Context, e *event.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	f.byID[e.ID] = *e
	return nil
}

func (f *fakeEvents) GetByID(_ context.Context, id string) (event.Event, error) {
	e, ok := f.byID[id]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	return e, nil
}

func (f *fakeEvents) Update(_ context.Context, e *event.Event) error {
	if _, ok := f.byID[e.ID]; !ok {
		return event.ErrNotFound
	}
	f.byID[e.ID] = *e
	return nil
}

func (f *fakeEvents) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return event.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeEvents) List(_ context.Context, filter eventStore.ListFilter) ([]event.Event, int64, error) {
	var out []event.Event
	for _, e := range f.byID {
		if !filter.From.IsZero() && e.StartsAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.StartsAt.Before(filter.To) {
			continue
		}
		if !filter.IncludeCancelled && e.IsCancelled() {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, int64(len(out)), nil
}

// fakeRSVPs enforces capacity the way the gorm store does.
type fakeRSVPs struct {
	events *fakeEvents
	rsvps  map[string]event.RSVP
}

func newFakeRSVPs(events *fakeEvents) *fakeRSVPs {
	return &fakeRSVPs{events: events, rsvps: make(map[string]event.RSVP)}
}

func rsvpKey(eventID, memberID string) string { return eventID + "/" + memberID }

func (f *fakeRSVPs) Summarize(_ context.Context, eventID string) (event.Summary, error) {
	var s event.Summary
	for _, r := range f.rsvps {
		if r.EventID != eventID {
			continue
		}
		switch r.Status {
		case event.RSVPAttending:
			s.Attending++
			s.Guests += r.Guests
		case event.RSVPMaybe:
			s.Maybe++
		case event.RSVPDeclined:
			s.Declined++
		}
	}
	return s, nil
}

func (f *fakeRSVPs) Create(ctx context.Context, r *event.RSVP) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, ok := f.rsvps[rsvpKey(r.EventID, r.MemberID)]; ok {
		return event.ErrRSVPExists
	}
	e, err := f.events.GetByID(ctx, r.EventID)
	if err != nil {
		return err
	}
	s, _ := f.Summarize(ctx, r.EventID)
	if err := e.CheckCapacity(s, r.Seats()); err != nil {
		return err
	}
	f.rsvps[rsvpKey(r.EventID, r.MemberID)] = *r
	return nil
}

func (f *fakeRSVPs) Get(_ context.Context, eventID, memberID string) (event.RSVP, error) {
	r, ok := f.rsvps[rsvpKey(eventID, memberID)]
	if !ok {
		return event.RSVP{}, event.ErrRSVPNotFound
	}
	return r, nil
}

func (f *fakeRSVPs) Update(ctx context.Context, r *event.RSVP) error {
	if err := r.Validate(); err != nil {
		return err
	}
	old, ok := f.rsvps[rsvpKey(r.EventID, r.MemberID)]
	if !ok {
		return event.ErrRSVPNotFound
	}
	e, err := f.events.GetByID(ctx, r.EventID)
	if err != nil {
		return err
	}
	s, _ := f.Summarize(ctx, r.EventID)
	if err := e.CheckCapacity(s, r.Seats()-old.Seats()); err != nil {
		return err
	}
	f.rsvps[rsvpKey(r.EventID, r.MemberID)] = *r
	return nil
}

func (f *fakeRSVPs) Delete(_ context.Context, eventID, memberID string) error {
	if _, ok := f.rsvps[rsvpKey(eventID, memberID)]; !ok {
		return event.ErrRSVPNotFound
	}
	delete(f.rsvps, rsvpKey(eventID, memberID))
	return nil
}

func (f *fakeRSVPs) ListByEvent(_ context.Context, eventID string) ([]event.RSVP, error) {
	var out []event.RSVP
	for _, r := range f.rsvps {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

// --- announcements ---

type fakeAnnouncements struct {
	byID map[string]announcement.Announcement
}

func newFakeAnnouncements(as ...announcement.Announcement) *fakeAnnouncements {
	f := &fakeAnnouncements{byID: make(map[string]announcement.Announcement)}
	for _, a := range as {
		f.byID[a.ID] = a
	}
	return f
}

func (f *fakeAnnouncements) Create(_ context.Context, a *announcement.Announcement) error {
	if err := a.Validate(); err != nil {
		return err
	}
	f.byID[a.ID] = *a
	return nil
}

func (f *fakeAnnouncements) GetByID(_ context.Context, id string) (announcement.Announcement, error) {
	a, ok := f.byID[id]
	if !ok {
		return announcement.Announcement{}, announcement.ErrNotFound
	}
	return a, nil
}

func (f *fakeAnnouncements) Update(_ context.Context, a *announcement.Announcement) error {
	if _, ok := f.byID[a.ID]; !ok {
		return announcement.ErrNotFound
	}
	if err := a.Validate(); err != nil {
		return err
	}
	f.byID[a.ID] = *a
	return nil
}

func (f *fakeAnnouncements) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return announcement.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeViews struct {
	views map[string]announcement.View
}

func newFakeViews() *fakeViews {
	return &fakeViews{views: make(map[string]announcement.View)}
}

func (f *fakeViews) Create(_ context.Context, v *announcement.View) error {
	key := v.AnnouncementID + "/" + v.MemberID
	if _, ok := f.views[key]; ok {
		return announcement.ErrAlreadyViewed
	}
	f.views[key] = *v
	return nil
}

// --- messages ---

type fakeMessages struct {
	byID map[string]message.Message
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byID: make(map[string]message.Message)}
}

func (f *fakeMessages) Create(_ context.Context, m *message.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	f.byID[m.ID] = *m
	return nil
}

func (f *fakeMessages) GetByID(_ context.Context, id string) (message.Message, error) {
	m, ok := f.byID[id]
	if !ok {
		return message.Message{}, message.ErrNotFound
	}
	return m, nil
}

func (f *fakeMessages) Update(_ context.Context, m *message.Message) error {
	if _, ok := f.byID[m.ID]; !ok {
		return message.ErrNotFound
	}
	f.byID[m.ID] = *m
	return nil
}

func (f *fakeMessages) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return message.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

// --- push subscriptions ---

type fakePushStore struct {
	byID map[string]push.Subscription
}

func newFakePushStore() *fakePushStore {
	return &fakePushStore{byID: make(map[string]push.Subscription)}
}

func (f *fakePushStore) Create(_ context.Context, s *push.Subscription) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, existing := range f.byID {
		if existing.Endpoint == s.Endpoint {
			return push.ErrEndpointTaken
		}
	}
	f.byID[s.ID] = *s
	return nil
}

func (f *fakePushStore) GetByEndpoint(_ context.Context, endpoint string) (push.Subscription, error) {
	for _, s := range f.byID {
		if s.Endpoint == endpoint {
			return s, nil
		}
	}
	return push.Subscription{}, push.ErrNotFound
}

func (f *fakePushStore) Update(_ context.Context, s *push.Subscription) error {
	if _, ok := f.byID[s.ID]; !ok {
		return push.ErrNotFound
	}
	f.byID[s.ID] = *s
	return nil
}

func (f *fakePushStore) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return push.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakePushStore) DeleteByEndpoint(_ context.Context, endpoint string) error {
	for id, s := range f.byID {
		if s.Endpoint == endpoint {
			delete(f.byID, id)
			return nil
		}
	}
	return push.ErrNotFound
}
