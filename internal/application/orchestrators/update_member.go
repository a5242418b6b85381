package orchestrators

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/member"
)

// ErrSelfDemotion stops an admin from removing their own admin access.
var ErrSelfDemotion = apperr.Conflict("admins cannot change their own role or deactivate themselves")

// ProfileChanges lists the fields a member may edit on their own record.
// Nil fields are left unchanged.
type ProfileChanges struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *string
	Birthday  *time.Time
	Privacy   *member.Privacy
}

func (c ProfileChanges) apply(m *member.Member) {
	if c.FirstName != nil {
		m.FirstName = strings.TrimSpace(*c.FirstName)
	}
	if c.LastName != nil {
		m.LastName = strings.TrimSpace(*c.LastName)
	}
	if c.Phone != nil {
		m.Phone = strings.TrimSpace(*c.Phone)
	}
	if c.Address != nil {
		m.Address = strings.TrimSpace(*c.Address)
	}
	if c.Birthday != nil {
		b := *c.Birthday
		m.Birthday = &b
	}
	if c.Privacy != nil {
		m.Privacy = *c.Privacy
	}
}

// UpdateProfileInput carries a member's edits to their own record.
type UpdateProfileInput struct {
	Actor   Actor
	Changes ProfileChanges
}

// UpdateMemberDeps holds dependencies for UpdateProfile and UpdateMember.
type UpdateMemberDeps struct {
	MemberStore MemberStore
	Auditor     *Auditor
	Now         func() time.Time
	Log         *zap.SugaredLogger
}

// ExecuteUpdateProfile applies a member's edits to their own profile and
// privacy settings.
// PRE: Actor.ID references an existing member
// POST: Changed fields persisted; email, role and status are untouched
func ExecuteUpdateProfile(ctx context.Context, input UpdateProfileInput, deps UpdateMemberDeps) (member.Member, error) {
	m, err := deps.MemberStore.GetByID(ctx, input.Actor.ID)
	if err != nil {
		return member.Member{}, err
	}
	input.Changes.apply(&m)
	m.UpdatedAt = deps.Now()
	if err := deps.MemberStore.Update(ctx, &m); err != nil {
		return member.Member{}, err
	}
	deps.Log.Infow("member_event", "event", "profile_updated", "member_id", m.ID)
	return m, nil
}

// UpdateMemberInput carries an admin's edits to any member.
type UpdateMemberInput struct {
	Actor    Actor
	MemberID string
	Changes  ProfileChanges
	Email    *string
	Role     *string
	Status   *string // active or inactive; deactivation has its own command
}

// ExecuteUpdateMember applies an admin's edits, including role changes.
// PRE: Actor is an admin
// POST: Changed fields persisted; role changes are audited at warning level
func ExecuteUpdateMember(ctx context.Context, input UpdateMemberInput, deps UpdateMemberDeps) (member.Member, error) {
	m, err := deps.MemberStore.GetByID(ctx, input.MemberID)
	if err != nil {
		return member.Member{}, err
	}
	oldRole := m.Role

	input.Changes.apply(&m)
	if input.Email != nil {
		m.Email = member.NormalizeEmail(*input.Email)
	}
	if input.Role != nil && *input.Role != m.Role {
		if m.ID == input.Actor.ID {
			return member.Member{}, ErrSelfDemotion
		}
		m.Role = *input.Role
	}
	if input.Status != nil && *input.Status != m.Status {
		if *input.Status == member.StatusDeactivated || m.Status == member.StatusDeactivated {
			return member.Member{}, apperr.Validation("use deactivate or reactivate to change a deactivated status")
		}
		m.Status = *input.Status
	}
	now := deps.Now()
	m.UpdatedAt = now
	if err := deps.MemberStore.Update(ctx, &m); err != nil {
		return member.Member{}, err
	}

	deps.Log.Infow("member_event", "event", "member_updated", "member_id", m.ID, "by", input.Actor.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryMember, audit.ActionUpdate, now).
		WithResource("member", m.ID).
		WithDescription("member updated: "+m.FullName()))
	if m.Role != oldRole {
		deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryMember, audit.ActionRoleChange, now).
			WithSeverity(audit.SeverityWarning).
			WithResource("member", m.ID).
			WithMetadata("from", oldRole).
			WithMetadata("to", m.Role))
	}
	return m, nil
}
