package orchestrators

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/member"
)

// CreateMemberInput carries input for an admin creating a member.
type CreateMemberInput struct {
	Actor          Actor
	Email          string
	FirstName      string
	LastName       string
	Phone          string
	Address        string
	Birthday       *time.Time
	Role           string
	MembershipDate *time.Time      // defaults to today
	Privacy        *member.Privacy // nil means all fields visible
	Password       string          // optional; without one the member cannot sign in yet
}

// CreateMemberDeps holds dependencies for CreateMember.
type CreateMemberDeps struct {
	MemberStore MemberStore
	Auditor     *Auditor
	GenerateID  func() string
	Now         func() time.Time
	Log         *zap.SugaredLogger
}

// ExecuteCreateMember creates a member on behalf of an admin.
// PRE: Actor is an admin
// POST: Member persisted with privacy set; an audit entry is recorded
func ExecuteCreateMember(ctx context.Context, input CreateMemberInput, deps CreateMemberDeps) (member.Member, error) {
	now := deps.Now()
	m := member.New(deps.GenerateID(), input.Email, input.FirstName, input.LastName, input.Role, input.Privacy, now)
	m.Phone = input.Phone
	m.Address = input.Address
	m.Birthday = input.Birthday
	if input.MembershipDate != nil {
		m.MembershipDate = *input.MembershipDate
	}
	if err := m.Validate(); err != nil {
		return member.Member{}, err
	}
	if input.Password != "" {
		if err := m.SetPassword(input.Password); err != nil {
			return member.Member{}, err
		}
	}
	if err := deps.MemberStore.Create(ctx, m); err != nil {
		return member.Member{}, err
	}

	deps.Log.Infow("member_event", "event", "member_created", "member_id", m.ID, "role", m.Role, "by", input.Actor.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategoryMember, audit.ActionCreate, now).
		WithResource("member", m.ID).
		WithDescription("member created: "+m.FullName()).
		WithMetadata("role", m.Role))
	return *m, nil
}
