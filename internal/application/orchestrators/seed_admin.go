package orchestrators

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/member"
)

// SeedAdminInput carries the bootstrap administrator's credentials.
type SeedAdminInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// SeedAdminDeps holds dependencies for SeedAdmin.
type SeedAdminDeps struct {
	MemberStore MemberStore
	Auditor     *Auditor
	GenerateID  func() string
	Now         func() time.Time
	Log         *zap.SugaredLogger
}

// SeedAdminResult reports whether a new member was created.
type SeedAdminResult struct {
	Member  member.Member
	Created bool
}

// ExecuteSeedAdmin makes sure an admin with the given email exists. An
// existing member with that email is promoted and reactivated; its
// password is left alone.
// PRE: Email and Password are set
// POST: a member with Email exists with role admin and status active
func ExecuteSeedAdmin(ctx context.Context, input SeedAdminInput, deps SeedAdminDeps) (SeedAdminResult, error) {
	if input.Email == "" || input.Password == "" {
		return SeedAdminResult{}, apperr.Validation("ADMIN_EMAIL and ADMIN_PASSWORD are required")
	}
	if input.FirstName == "" {
		input.FirstName = "Site"
	}
	if input.LastName == "" {
		input.LastName = "Administrator"
	}
	now := deps.Now()

	existing, err := deps.MemberStore.GetByEmail(ctx, input.Email)
	switch {
	case err == nil:
		if existing.IsAdmin() && existing.IsActive() {
			return SeedAdminResult{Member: existing}, nil
		}
		existing.Role = member.RoleAdmin
		if existing.Status == member.StatusDeactivated {
			if err := existing.Reactivate(now); err != nil {
				return SeedAdminResult{}, err
			}
		}
		existing.Status = member.StatusActive
		existing.UpdatedAt = now
		if err := deps.MemberStore.Update(ctx, &existing); err != nil {
			return SeedAdminResult{}, err
		}
		deps.Log.Infow("member_event", "event", "admin_promoted", "member_id", existing.ID)
		deps.Auditor.Record(ctx, actorFor(existing, "", "cli").
			entry(audit.CategorySystem, audit.ActionSeed, now).
			WithSeverity(audit.SeverityWarning).
			WithResource("member", existing.ID).
			WithDescription("existing member promoted to admin by seed"))
		return SeedAdminResult{Member: existing}, nil
	case !apperr.IsNotFound(err):
		return SeedAdminResult{}, err
	}

	m := member.New(deps.GenerateID(), input.Email, input.FirstName, input.LastName, member.RoleAdmin, nil, now)
	if err := m.Validate(); err != nil {
		return SeedAdminResult{}, err
	}
	if err := m.SetPassword(input.Password); err != nil {
		return SeedAdminResult{}, err
	}
	if err := deps.MemberStore.Create(ctx, m); err != nil {
		return SeedAdminResult{}, err
	}
	deps.Log.Infow("member_event", "event", "admin_seeded", "member_id", m.ID)
	deps.Auditor.Record(ctx, actorFor(*m, "", "cli").
		entry(audit.CategorySystem, audit.ActionSeed, now).
		WithResource("member", m.ID).
		WithDescription("initial admin created"))
	return SeedAdminResult{Member: *m, Created: true}, nil
}
