package orchestrators

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/adapters/auth"
	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/member"
)

// TokenIssuer issues and verifies bearer tokens.
type TokenIssuer interface {
	IssuePair(sub auth.Subject) (auth.TokenPair, error)
	IssueAccess(sub auth.Subject) (string, time.Time, error)
	VerifyRefresh(token string) (*auth.Claims, error)
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult carries the tokens and the signed-in member.
type LoginResult struct {
	Tokens auth.TokenPair
	Member member.Member
}

// LoginStore reads members by email and records login outcomes without
// touching any other column.
type LoginStore interface {
	GetByEmail(ctx context.Context, email string) (member.Member, error)
	RecordLoginFailure(ctx context.Context, id string, now time.Time) (member.Member, bool, error)
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) (member.Member, error)
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	MemberStore LoginStore
	Tokens      TokenIssuer
	Auditor     *Auditor
	Now         func() time.Time
	Log         *zap.SugaredLogger
}

var (
	ErrInvalidCredentials = member.ErrWrongPassword
	ErrAccountLocked      = member.ErrAccountLocked
	ErrAccountInactive    = member.ErrAccountInactive
)

func subjectOf(m member.Member) auth.Subject {
	return auth.Subject{MemberID: m.ID, Email: m.Email, Role: m.Role}
}

// ExecuteLogin validates credentials and issues a token pair.
// PRE: none
// POST: on success the failure counter is reset and LastLoginAt stamped;
// on a wrong password the counter grows and the fifth failure locks the
// account for LockoutDuration
// INVARIANT: a locked account is refused before the password is checked
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (LoginResult, error) {
	if input.Email == "" || input.Password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	now := deps.Now()

	m, err := deps.MemberStore.GetByEmail(ctx, input.Email)
	if err != nil {
		if apperr.IsNotFound(err) {
			deps.Log.Infow("auth_event", "event", "login_failed", "reason", "not_found")
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if m.IsLocked(now) {
		deps.Log.Infow("auth_event", "event", "login_blocked", "member_id", m.ID, "reason", "locked")
		return LoginResult{}, ErrAccountLocked
	}

	if err := m.CheckPassword(input.Password); err != nil {
		stored, locked, err := deps.MemberStore.RecordLoginFailure(ctx, m.ID, now)
		if err != nil {
			return LoginResult{}, err
		}
		deps.Log.Infow("auth_event", "event", "login_failed", "member_id", m.ID, "reason", "wrong_password", "failed_logins", stored.FailedLogins)
		if locked {
			deps.Log.Warnw("auth_event", "event", "account_locked", "member_id", m.ID, "until", stored.LockedUntil)
			deps.Auditor.Record(ctx, actorFor(stored, input.IPAddress, input.UserAgent).
				entry(audit.CategorySecurity, audit.ActionLock, now).
				WithSeverity(audit.SeverityWarning).
				WithResource("member", m.ID).
				WithDescription("account locked after repeated failed logins"))
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if !m.IsActive() {
		deps.Log.Infow("auth_event", "event", "login_blocked", "member_id", m.ID, "reason", "inactive")
		return LoginResult{}, ErrAccountInactive
	}

	// INVARIANT: tokens carry the status and role read by RecordLoginSuccess
	current, err := deps.MemberStore.RecordLoginSuccess(ctx, m.ID, now)
	if err != nil {
		if errors.Is(err, ErrAccountInactive) || errors.Is(err, ErrAccountLocked) {
			deps.Log.Infow("auth_event", "event", "login_blocked", "member_id", m.ID, "reason", "changed_during_login")
		}
		return LoginResult{}, err
	}
	m = current
	tokens, err := deps.Tokens.IssuePair(subjectOf(m))
	if err != nil {
		return LoginResult{}, err
	}

	deps.Log.Infow("auth_event", "event", "login_success", "member_id", m.ID, "role", m.Role)
	return LoginResult{Tokens: tokens, Member: m}, nil
}

// RefreshInput carries a refresh token.
type RefreshInput struct {
	RefreshToken string
}

// RefreshResult is a fresh access token.
type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time
}

// RefreshDeps holds dependencies for Refresh.
type RefreshDeps struct {
	MemberStore MemberStore
	Tokens      TokenIssuer
	Now         func() time.Time
}

// ExecuteRefresh exchanges a refresh token for a new access token carrying
// the member's current role.
// PRE: RefreshToken was issued by Tokens
// POST: returns an access token, or an unauthenticated error when the
// token is bad or the member is no longer active
func ExecuteRefresh(ctx context.Context, input RefreshInput, deps RefreshDeps) (RefreshResult, error) {
	claims, err := deps.Tokens.VerifyRefresh(input.RefreshToken)
	if err != nil {
		return RefreshResult{}, err
	}
	m, err := deps.MemberStore.GetByID(ctx, claims.MemberID())
	if err != nil {
		if apperr.IsNotFound(err) {
			return RefreshResult{}, auth.ErrTokenInvalid
		}
		return RefreshResult{}, err
	}
	if !m.IsActive() || m.IsLocked(deps.Now()) {
		return RefreshResult{}, auth.ErrTokenInvalid
	}
	token, exp, err := deps.Tokens.IssueAccess(subjectOf(m))
	if err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{AccessToken: token, ExpiresAt: exp}, nil
}
