package orchestrators

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/application/notify"
	"fellowship/internal/domain/announcement"
	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/push"
)

// AnnouncementStore is the part of announcement.Store that commands use.
type AnnouncementStore interface {
	Create(ctx context.Context, value *announcement.Announcement) error
	GetByID(ctx context.Context, id string) (announcement.Announcement, error)
	Update(ctx context.Context, value *announcement.Announcement) error
	Delete(ctx context.Context, id string) error
}

// ViewStore is the part of announcement.ViewStore that MarkViewed uses.
type ViewStore interface {
	Create(ctx context.Context, value *announcement.View) error
}

// AnnouncementDeps holds dependencies for the announcement commands.
type AnnouncementDeps struct {
	AnnouncementStore AnnouncementStore
	ViewStore         ViewStore
	Members           MemberLister
	Notifier          Notifier
	Auditor           *Auditor
	BaseURL           string
	GenerateID        func() string
	Now               func() time.Time
	Log               *zap.SugaredLogger
}

// --- Create Announcement ---

// CreateAnnouncementInput carries input for drafting an announcement.
type CreateAnnouncementInput struct {
	Actor     Actor
	Title     string
	Body      string // Markdown
	Priority  string // defaults to normal
	Pinned    bool
	ExpiresAt *time.Time
}

// ExecuteCreateAnnouncement saves a new draft.
// PRE: Actor is an admin
// POST: Announcement persisted with status draft
func ExecuteCreateAnnouncement(ctx context.Context, input CreateAnnouncementInput, deps AnnouncementDeps) (announcement.Announcement, error) {
	now := deps.Now()
	a := announcement.Announcement{
		ID:        deps.GenerateID(),
		Title:     input.Title,
		Body:      input.Body,
		Priority:  input.Priority,
		Pinned:    input.Pinned,
		CreatedBy: input.Actor.ID,
		ExpiresAt: input.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.Normalize()
	if err := deps.AnnouncementStore.Create(ctx, &a); err != nil {
		return announcement.Announcement{}, err
	}

	deps.Log.Infow("announcement_event", "event", "announcement_created", "announcement_id", a.ID, "by", input.Actor.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryAnnouncement, audit.ActionCreate, now).
		WithResource("announcement", a.ID).
		WithDescription("announcement drafted: "+a.Title))
	return a, nil
}

// --- Update Announcement ---

// UpdateAnnouncementInput carries edits. Nil fields are unchanged.
type UpdateAnnouncementInput struct {
	Actor          Actor
	AnnouncementID string
	Title          *string
	Body           *string
	Priority       *string
	Pinned         *bool
	ExpiresAt      *time.Time
	ClearExpiry    bool
}

// ExecuteUpdateAnnouncement edits a draft or published announcement.
// PRE: Actor is an admin
// POST: Changes persisted; status and publication time are unchanged
func ExecuteUpdateAnnouncement(ctx context.Context, input UpdateAnnouncementInput, deps AnnouncementDeps) (announcement.Announcement, error) {
	a, err := deps.AnnouncementStore.GetByID(ctx, input.AnnouncementID)
	if err != nil {
		return announcement.Announcement{}, err
	}
	if input.Title != nil {
		a.Title = strings.TrimSpace(*input.Title)
	}
	if input.Body != nil {
		a.Body = *input.Body
	}
	if input.Priority != nil {
		a.Priority = *input.Priority
	}
	if input.Pinned != nil {
		a.Pinned = *input.Pinned
	}
	switch {
	case input.ClearExpiry:
		a.ExpiresAt = nil
	case input.ExpiresAt != nil:
		exp := input.ExpiresAt.UTC()
		a.ExpiresAt = &exp
	}
	now := deps.Now()
	a.UpdatedAt = now
	if err := deps.AnnouncementStore.Update(ctx, &a); err != nil {
		return announcement.Announcement{}, err
	}

	deps.Log.Infow("announcement_event", "event", "announcement_updated", "announcement_id", a.ID, "by", input.Actor.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryAnnouncement, audit.ActionUpdate, now).
		WithResource("announcement", a.ID).
		WithDescription("announcement updated: "+a.Title))
	return a, nil
}

// --- Publish Announcement ---

// AnnouncementRefInput names an announcement acted on by Actor.
type AnnouncementRefInput struct {
	Actor          Actor
	AnnouncementID string
}

// ExecutePublishAnnouncement makes a draft visible and pushes it to every
// active member.
// PRE: Actor is an admin; announcement is a draft
// POST: Status is published, PublishedAt is now
func ExecutePublishAnnouncement(ctx context.Context, input AnnouncementRefInput, deps AnnouncementDeps) (announcement.Announcement, error) {
	a, err := deps.AnnouncementStore.GetByID(ctx, input.AnnouncementID)
	if err != nil {
		return announcement.Announcement{}, err
	}
	now := deps.Now()
	if err := a.Publish(now); err != nil {
		return announcement.Announcement{}, err
	}
	if err := deps.AnnouncementStore.Update(ctx, &a); err != nil {
		return announcement.Announcement{}, err
	}

	deps.Log.Infow("announcement_event", "event", "announcement_published", "announcement_id", a.ID, "priority", a.Priority, "by", input.Actor.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryAnnouncement, audit.ActionPublish, now).
		WithResource("announcement", a.ID).
		WithDescription("announcement published: "+a.Title).
		WithMetadata("priority", a.Priority))

	if deps.Members == nil {
		return a, nil
	}
	ids, err := activeMemberIDs(ctx, deps.Members, "")
	if err != nil {
		deps.Log.Warnw("announcement_event", "event", "notify_targets_failed", "announcement_id", a.ID, "error", err)
		return a, nil
	}
	notifyMembers(deps.Notifier, notify.Job{
		MemberIDs: ids,
		Notification: push.Notification{
			Kind:    push.KindAnnouncement,
			Title:   a.Title,
			Body:    excerpt(a.Body, 140),
			URL:     deps.BaseURL + "/announcements/" + a.ID,
			Urgent:  a.IsUrgent(),
			TopicID: "announcement-" + a.ID,
		},
	})
	return a, nil
}

// excerpt shortens Markdown text for a notification body.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(strings.NewReplacer("#", "", "*", "", "_", "", "`", "").Replace(s)), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// --- Delete Announcement ---

// ExecuteDeleteAnnouncement removes an announcement and its view records.
// PRE: Actor is an admin
func ExecuteDeleteAnnouncement(ctx context.Context, input AnnouncementRefInput, deps AnnouncementDeps) error {
	a, err := deps.AnnouncementStore.GetByID(ctx, input.AnnouncementID)
	if err != nil {
		return err
	}
	if err := deps.AnnouncementStore.Delete(ctx, a.ID); err != nil {
		return err
	}
	deps.Log.Infow("announcement_event", "event", "announcement_deleted", "announcement_id", a.ID, "by", input.Actor.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryAnnouncement, audit.ActionDelete, deps.Now()).
		WithSeverity(audit.SeverityWarning).
		WithResource("announcement", a.ID).
		WithDescription("announcement deleted: "+a.Title))
	return nil
}

// --- Mark Viewed ---

// MarkViewedInput names the announcement a member has read.
type MarkViewedInput struct {
	AnnouncementID string
	MemberID       string
}

// ExecuteMarkAnnouncementViewed records that a member has seen an
// announcement. Marking it again is not an error.
// PRE: the announcement is visible now
// POST: exactly one view exists for the pair
func ExecuteMarkAnnouncementViewed(ctx context.Context, input MarkViewedInput, deps AnnouncementDeps) error {
	a, err := deps.AnnouncementStore.GetByID(ctx, input.AnnouncementID)
	if err != nil {
		return err
	}
	now := deps.Now()
	if !a.IsVisible(now) {
		return announcement.ErrNotFound
	}
	err = deps.ViewStore.Create(ctx, &announcement.View{
		ID:             deps.GenerateID(),
		AnnouncementID: a.ID,
		MemberID:       input.MemberID,
		ViewedAt:       now,
	})
	if errors.Is(err, announcement.ErrAlreadyViewed) {
		return nil
	}
	return err
}
