package orchestrators

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/member"
)

// MemberStore is the part of member.Store that member commands use.
type MemberStore interface {
	Create(ctx context.Context, value *member.Member) error
	GetByID(ctx context.Context, id string) (member.Member, error)
	GetByEmail(ctx context.Context, email string) (member.Member, error)
	Update(ctx context.Context, value *member.Member) error
}

// RegisterMemberInput carries input for self-registration.
type RegisterMemberInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Privacy   *member.Privacy // nil means all fields visible
}

// RegisterMemberDeps holds dependencies for RegisterMember.
type RegisterMemberDeps struct {
	MemberStore MemberStore
	GenerateID  func() string
	Now         func() time.Time
	Log         *zap.SugaredLogger
}

// ExecuteRegisterMember creates an active member with the member role.
// PRE: Email is well formed; Password has at least MinPasswordLength characters
// POST: Member created with Status=active, Role=member and privacy set
// INVARIANT: Email must be unique (enforced by store)
func ExecuteRegisterMember(ctx context.Context, input RegisterMemberInput, deps RegisterMemberDeps) (member.Member, error) {
	if input.Password == "" {
		return member.Member{}, apperr.Validation("password is required")
	}
	m := member.New(deps.GenerateID(), input.Email, input.FirstName, input.LastName, member.RoleMember, input.Privacy, deps.Now())
	m.Phone = input.Phone
	if err := m.Validate(); err != nil {
		return member.Member{}, err
	}
	if err := m.SetPassword(input.Password); err != nil {
		return member.Member{}, err
	}
	if err := deps.MemberStore.Create(ctx, m); err != nil {
		return member.Member{}, err
	}

	deps.Log.Infow("auth_event", "event", "member_registered", "member_id", m.ID)
	return *m, nil
}
