package orchestrators

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/member"
)

// MemberLifecycleInput names the member to deactivate or reactivate.
type MemberLifecycleInput struct {
	Actor    Actor
	MemberID string
	Reason   string
}

// MemberLifecycleDeps holds dependencies for Deactivate/Reactivate.
type MemberLifecycleDeps struct {
	MemberStore MemberStore
	Auditor     *Auditor
	Now         func() time.Time
	Log         *zap.SugaredLogger
}

// ExecuteDeactivateMember removes a member from the active directory.
// Records that reference the member are kept.
// PRE: Actor is an admin other than the member
// POST: Member status is deactivated
func ExecuteDeactivateMember(ctx context.Context, input MemberLifecycleInput, deps MemberLifecycleDeps) (member.Member, error) {
	if input.MemberID == input.Actor.ID {
		return member.Member{}, ErrSelfDemotion
	}
	m, err := deps.MemberStore.GetByID(ctx, input.MemberID)
	if err != nil {
		return member.Member{}, err
	}
	now := deps.Now()
	if err := m.Deactivate(now); err != nil {
		return member.Member{}, err
	}
	if err := deps.MemberStore.Update(ctx, &m); err != nil {
		return member.Member{}, err
	}

	deps.Log.Infow("member_event", "event", "member_deactivated", "member_id", m.ID, "by", input.Actor.ID)
	e := input.Actor.entry(audit.CategoryMember, audit.ActionDeactivate, now).
		WithSeverity(audit.SeverityWarning).
		WithResource("member", m.ID).
		WithDescription("member deactivated: " + m.FullName())
	if input.Reason != "" {
		e = e.WithMetadata("reason", input.Reason)
	}
	deps.Auditor.Record(ctx, e)
	return m, nil
}

// ExecuteReactivateMember returns a deactivated member to active status.
// PRE: Actor is an admin; member is deactivated
// POST: Member status is active
func ExecuteReactivateMember(ctx context.Context, input MemberLifecycleInput, deps MemberLifecycleDeps) (member.Member, error) {
	m, err := deps.MemberStore.GetByID(ctx, input.MemberID)
	if err != nil {
		return member.Member{}, err
	}
	now := deps.Now()
	if err := m.Reactivate(now); err != nil {
		return member.Member{}, err
	}
	if err := deps.MemberStore.Update(ctx, &m); err != nil {
		return member.Member{}, err
	}

	deps.Log.Infow("member_event", "event", "member_reactivated", "member_id", m.ID, "by", input.Actor.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryMember, audit.ActionReactivate, now).
		WithResource("member", m.ID).
		WithDescription("member reactivated: "+m.FullName()))
	return m, nil
}
