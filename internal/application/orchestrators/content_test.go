package orchestrators

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fellowship/internal/domain/announcement"
	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/member"
	"fellowship/internal/domain/message"
	"fellowship/internal/domain/push"
)

// --- announcements ---

type announcementFixture struct {
	store    *fakeAnnouncements
	views    *fakeViews
	audit    *fakeAudit
	notifier *fakeNotifier
}

func newAnnouncementFixture(as ...announcement.Announcement) announcementFixture {
	return announcementFixture{
		store:    newFakeAnnouncements(as...),
		views:    newFakeViews(),
		audit:    &fakeAudit{},
		notifier: &fakeNotifier{},
	}
}

func (f announcementFixture) deps() AnnouncementDeps {
	return AnnouncementDeps{
		AnnouncementStore: f.store,
		ViewStore:         f.views,
		Members:           newFakeMembers(newMember("admin-1", member.RoleAdmin), newMember("m-1", member.RoleMember)),
		Notifier:          f.notifier,
		Auditor:           &Auditor{Store: f.audit, Log: nopLog},
		BaseURL:           "https://church.example",
		GenerateID:        seqIDs("a"),
		Now:               testNow,
		Log:               nopLog,
	}
}

func TestAnnouncement_DraftThenPublish(t *testing.T) {
	f := newAnnouncementFixture()
	ctx := context.Background()

	a, err := ExecuteCreateAnnouncement(ctx, CreateAnnouncementInput{
		Actor: adminActor("admin-1"),
		Title: "Building fund",
		Body:  "## Thank you\nWe reached **our goal**.",
	}, f.deps())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Status != announcement.StatusDraft || a.Priority != announcement.PriorityNormal {
		t.Errorf("expected normal draft, got status=%s priority=%s", a.Status, a.Priority)
	}
	if len(f.notifier.jobs) != 0 {
		t.Error("drafts must not notify")
	}

	urgent := announcement.PriorityUrgent
	if _, err := ExecuteUpdateAnnouncement(ctx, UpdateAnnouncementInput{Actor: adminActor("admin-1"), AnnouncementID: a.ID, Priority: &urgent}, f.deps()); err != nil {
		t.Fatalf("update: %v", err)
	}

	a, err = ExecutePublishAnnouncement(ctx, AnnouncementRefInput{Actor: adminActor("admin-1"), AnnouncementID: a.ID}, f.deps())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if a.Status != announcement.StatusPublished || a.PublishedAt == nil || !a.PublishedAt.Equal(testTime) {
		t.Errorf("expected published at now, got %+v", a)
	}
	if len(f.notifier.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(f.notifier.jobs))
	}
	n := f.notifier.jobs[0].Notification
	if n.Kind != push.KindAnnouncement || !n.Urgent {
		t.Errorf("expected urgent announcement push, got %+v", n)
	}
	if strings.ContainsAny(n.Body, "#*") {
		t.Errorf("expected markdown stripped from push body, got %q", n.Body)
	}
	if len(f.notifier.jobs[0].MemberIDs) != 2 {
		t.Errorf("expected every active member, got %v", f.notifier.jobs[0].MemberIDs)
	}

	if _, err := ExecutePublishAnnouncement(ctx, AnnouncementRefInput{Actor: adminActor("admin-1"), AnnouncementID: a.ID}, f.deps()); !errors.Is(err, announcement.ErrAlreadyPublished) {
		t.Errorf("expected ErrAlreadyPublished, got %v", err)
	}
	want := []audit.Action{audit.ActionCreate, audit.ActionUpdate, audit.ActionPublish}
	got := f.audit.actions()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("audit[%d]: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestExecuteCreateAnnouncement_Invalid(t *testing.T) {
	f := newAnnouncementFixture()
	_, err := ExecuteCreateAnnouncement(context.Background(), CreateAnnouncementInput{Actor: adminActor("admin-1"), Title: " ", Body: "x"}, f.deps())
	if !errors.Is(err, announcement.ErrEmptyTitle) {
		t.Errorf("expected ErrEmptyTitle, got %v", err)
	}
	if len(f.audit.entries) != 0 {
		t.Error("failed commands must not be audited")
	}
}

func TestExecuteMarkAnnouncementViewed(t *testing.T) {
	published := testTime.Add(-time.Hour)
	expired := testTime.Add(-time.Minute)
	visible := announcement.Announcement{ID: "a-1", Title: "Hi", Body: "b", Priority: announcement.PriorityNormal, Status: announcement.StatusPublished, PublishedAt: &published}
	draft := announcement.Announcement{ID: "a-2", Title: "Hi", Body: "b", Priority: announcement.PriorityNormal, Status: announcement.StatusDraft}
	old := announcement.Announcement{ID: "a-3", Title: "Hi", Body: "b", Priority: announcement.PriorityNormal, Status: announcement.StatusPublished, PublishedAt: &published, ExpiresAt: &expired}
	f := newAnnouncementFixture(visible, draft, old)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := ExecuteMarkAnnouncementViewed(ctx, MarkViewedInput{AnnouncementID: "a-1", MemberID: "m-1"}, f.deps()); err != nil {
			t.Fatalf("mark %d: %v", i, err)
		}
	}
	if len(f.views.views) != 1 {
		t.Errorf("expected exactly one view, got %d", len(f.views.views))
	}
	for _, id := range []string{"a-2", "a-3", "missing"} {
		err := ExecuteMarkAnnouncementViewed(ctx, MarkViewedInput{AnnouncementID: id, MemberID: "m-1"}, f.deps())
		if !errors.Is(err, announcement.ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestExecuteDeleteAnnouncement(t *testing.T) {
	f := newAnnouncementFixture(announcement.Announcement{ID: "a-1", Title: "Bye", Body: "b", Priority: announcement.PriorityNormal, Status: announcement.StatusDraft})
	if err := ExecuteDeleteAnnouncement(context.Background(), AnnouncementRefInput{Actor: adminActor("admin-1"), AnnouncementID: "a-1"}, f.deps()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.store.byID) != 0 {
		t.Error("expected announcement removed")
	}
	if e := f.audit.entries; len(e) != 1 || e[0].Severity != audit.SeverityWarning {
		t.Errorf("expected one warning entry, got %+v", e)
	}
}

func TestExcerpt(t *testing.T) {
	if got := excerpt("**Bold**  and\n\n_soft_", 140); got != "Bold and soft" {
		t.Errorf("got %q", got)
	}
	if got := excerpt(strings.Repeat("a", 10), 5); got != "aaaa…" {
		t.Errorf("got %q", got)
	}
}

// --- messages ---

func messageDeps(members *fakeMembers, store *fakeMessages, n *fakeNotifier) MessageDeps {
	return MessageDeps{
		MessageStore: store,
		Members:      members,
		Notifier:     n,
		BaseURL:      "https://church.example",
		GenerateID:   seqIDs("msg"),
		Now:          testNow,
		Log:          nopLog,
	}
}

func TestExecuteSendMessage_NotifiesByPushAndEmail(t *testing.T) {
	members := newFakeMembers(newMember("m-1", member.RoleMember), newMember("m-2", member.RoleMember))
	store := newFakeMessages()
	n := &fakeNotifier{}

	msg, err := ExecuteSendMessage(context.Background(), SendMessageInput{
		SenderID: "m-1", RecipientID: "m-2", Subject: " Meals rota ", Body: "Can you cover Sunday?",
	}, messageDeps(members, store, n))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Meals rota" || msg.IsRead() {
		t.Errorf("unexpected message %+v", msg)
	}
	if len(n.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(n.jobs))
	}
	job := n.jobs[0]
	if job.Notification.Kind != push.KindMessage || job.MemberIDs[0] != "m-2" {
		t.Errorf("unexpected push %+v", job)
	}
	if job.Email == nil || job.Email.To[0] != "m-2@example.com" || !strings.Contains(job.Email.Subject, "Firstm-1 Last") {
		t.Errorf("unexpected email %+v", job.Email)
	}
}

func TestExecuteSendMessage_Rejects(t *testing.T) {
	gone := newMember("m-3", member.RoleMember)
	_ = gone.Deactivate(testTime)
	members := newFakeMembers(newMember("m-1", member.RoleMember), gone)
	tests := []struct {
		name  string
		input SendMessageInput
		want  error
	}{
		{"self", SendMessageInput{SenderID: "m-1", RecipientID: "m-1", Body: "hi"}, message.ErrSelfMessage},
		{"empty body", SendMessageInput{SenderID: "m-1", RecipientID: "m-3", Body: "  "}, message.ErrEmptyBody},
		{"inactive recipient", SendMessageInput{SenderID: "m-1", RecipientID: "m-3", Body: "hi"}, ErrRecipientInactive},
		{"inactive sender", SendMessageInput{SenderID: "m-3", RecipientID: "m-1", Body: "hi"}, ErrSenderInactive},
		{"unknown recipient", SendMessageInput{SenderID: "m-1", RecipientID: "m-9", Body: "hi"}, member.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeMessages()
			n := &fakeNotifier{}
			_, err := ExecuteSendMessage(context.Background(), tt.input, messageDeps(members, store, n))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if len(store.byID) != 0 || len(n.jobs) != 0 {
				t.Error("expected no side effects")
			}
		})
	}
}

func TestExecuteReadMessage(t *testing.T) {
	store := newFakeMessages()
	store.byID["msg-1"] = message.Message{ID: "msg-1", SenderID: "m-1", RecipientID: "m-2", Body: "hi", CreatedAt: testTime.Add(-time.Hour)}
	deps := messageDeps(newFakeMembers(), store, nil)
	ctx := context.Background()

	if _, err := ExecuteReadMessage(ctx, MessageRefInput{MessageID: "msg-1", MemberID: "m-1"}, deps); err != nil {
		t.Fatalf("sender read: %v", err)
	}
	if store.byID["msg-1"].ReadAt != nil {
		t.Error("the sender opening a message must not mark it read")
	}

	got, err := ExecuteReadMessage(ctx, MessageRefInput{MessageID: "msg-1", MemberID: "m-2"}, deps)
	if err != nil {
		t.Fatalf("recipient read: %v", err)
	}
	if got.ReadAt == nil || !got.ReadAt.Equal(testTime) || store.byID["msg-1"].ReadAt == nil {
		t.Errorf("expected read at now, got %+v", got)
	}

	if _, err := ExecuteReadMessage(ctx, MessageRefInput{MessageID: "msg-1", MemberID: "m-3"}, deps); !errors.Is(err, message.ErrNotParticipant) {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
	if err := ExecuteDeleteMessage(ctx, MessageRefInput{MessageID: "msg-1", MemberID: "m-3"}, deps); !errors.Is(err, message.ErrNotParticipant) {
		t.Errorf("expected ErrNotParticipant on delete, got %v", err)
	}
	if err := ExecuteDeleteMessage(ctx, MessageRefInput{MessageID: "msg-1", MemberID: "m-2"}, deps); err != nil {
		t.Errorf("recipient delete: %v", err)
	}
	if len(store.byID) != 0 {
		t.Error("expected message removed")
	}
}

// --- push subscriptions ---

func TestExecuteSubscribePush(t *testing.T) {
	store := newFakePushStore()
	deps := PushDeps{PushStore: store, GenerateID: seqIDs("sub"), Now: testNow, Log: nopLog}
	ctx := context.Background()
	endpoint := "https://push.example.com/send/abc"

	first, err := ExecuteSubscribePush(ctx, SubscribePushInput{MemberID: "m-1", Endpoint: endpoint, P256dh: "k1", Auth: "a1"}, deps)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	again, err := ExecuteSubscribePush(ctx, SubscribePushInput{MemberID: "m-1", Endpoint: endpoint, P256dh: "k2", Auth: "a2"}, deps)
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if again.ID != first.ID || store.byID[first.ID].P256dh != "k2" {
		t.Errorf("expected keys refreshed in place, got %+v", again)
	}

	moved, err := ExecuteSubscribePush(ctx, SubscribePushInput{MemberID: "m-2", Endpoint: endpoint, P256dh: "k3", Auth: "a3"}, deps)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.MemberID != "m-2" || len(store.byID) != 1 {
		t.Errorf("expected one subscription owned by m-2, got %+v", store.byID)
	}

	if _, err := ExecuteSubscribePush(ctx, SubscribePushInput{MemberID: "m-1", Endpoint: "http://insecure", P256dh: "k", Auth: "a"}, deps); !errors.Is(err, push.ErrInvalidEndpoint) {
		t.Errorf("expected ErrInvalidEndpoint, got %v", err)
	}
}

func TestExecuteUnsubscribePush(t *testing.T) {
	store := newFakePushStore()
	store.byID["sub-1"] = push.Subscription{ID: "sub-1", MemberID: "m-1", Endpoint: "https://push.example.com/x", P256dh: "k", Auth: "a"}
	deps := PushDeps{PushStore: store, GenerateID: seqIDs("sub"), Now: testNow, Log: nopLog}
	ctx := context.Background()

	err := ExecuteUnsubscribePush(ctx, UnsubscribePushInput{MemberID: "m-2", Endpoint: "https://push.example.com/x"}, deps)
	if !errors.Is(err, push.ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if err := ExecuteUnsubscribePush(ctx, UnsubscribePushInput{MemberID: "m-1", Endpoint: "https://push.example.com/x"}, deps); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if len(store.byID) != 0 {
		t.Error("expected subscription removed")
	}
	err = ExecuteUnsubscribePush(ctx, UnsubscribePushInput{MemberID: "m-1", Endpoint: "https://push.example.com/x"}, deps)
	if !errors.Is(err, push.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
