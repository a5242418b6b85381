package orchestrators

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/audit"
)

// ChangePasswordInput carries input for the change-password orchestrator.
type ChangePasswordInput struct {
	Actor           Actor
	CurrentPassword string
	NewPassword     string
}

// ChangePasswordDeps holds dependencies for ChangePassword.
type ChangePasswordDeps struct {
	MemberStore MemberStore
	Auditor     *Auditor
	Now         func() time.Time
	Log         *zap.SugaredLogger
}

var (
	ErrCurrentPasswordWrong = apperr.Validation("current password is incorrect")
	ErrNewPasswordSame      = apperr.Validation("new password must be different from current password")
)

// ExecuteChangePassword validates the current password and updates to the new one.
// PRE: Actor.ID is the member changing their own password
// POST: Password hash replaced
func ExecuteChangePassword(ctx context.Context, input ChangePasswordInput, deps ChangePasswordDeps) error {
	if input.CurrentPassword == "" || input.NewPassword == "" {
		return apperr.Validation("current and new password are required")
	}

	m, err := deps.MemberStore.GetByID(ctx, input.Actor.ID)
	if err != nil {
		return err
	}
	if err := m.CheckPassword(input.CurrentPassword); err != nil {
		return ErrCurrentPasswordWrong
	}
	if input.CurrentPassword == input.NewPassword {
		return ErrNewPasswordSame
	}
	if err := m.SetPassword(input.NewPassword); err != nil {
		return err
	}
	now := deps.Now()
	m.UpdatedAt = now
	if err := deps.MemberStore.Update(ctx, &m); err != nil {
		return err
	}

	deps.Log.Infow("auth_event", "event", "password_changed", "member_id", m.ID)
	deps.Auditor.Record(ctx, input.Actor.entry(audit.CategorySecurity, audit.ActionUpdate, now).
		WithResource("member", m.ID).
		WithDescription("password changed"))
	return nil
}
