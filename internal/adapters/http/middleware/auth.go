package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"fellowship/internal/adapters/auth"
	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/member"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const (
	principalContextKey contextKey = "principal"
	tokenErrContextKey  contextKey = "token_error"
)

// Principal is the caller identified by a verified access token.
type Principal struct {
	MemberID string
	Email    string
	Role     string
}

// IsAdmin reports whether the caller holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == member.RoleAdmin
}

// HasRole reports whether the caller holds one of roles.
func (p Principal) HasRole(roles ...string) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// TokenVerifier checks bearer access tokens.
type TokenVerifier interface {
	VerifyAccess(token string) (*auth.Claims, error)
}

// MemberLookup reads the caller's current account.
type MemberLookup interface {
	GetByID(ctx context.Context, id string) (member.Member, error)
}

var (
	errMissingToken    = apperr.New(apperr.ErrUnauthenticated, "missing bearer token")
	errAccountInactive = apperr.New(apperr.ErrUnauthenticated, "account is not active")
)

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Auth returns middleware that verifies the bearer token and sets the
// Principal in context.
// It does NOT block unauthenticated requests; RequireAuth and RequireRole do that.
//
// With a non-nil members, the role and email come from the stored account,
// so deactivation and role changes apply before the token expires. A lookup
// that fails for any reason but absence falls back to the token's claims.
func Auth(verifier TokenVerifier, members MemberLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := verifier.VerifyAccess(token)
			if err != nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenErrContextKey, err)))
				return
			}
			p := Principal{
				MemberID: claims.MemberID(),
				Email:    claims.Email,
				Role:     claims.Role,
			}
			if members != nil {
				p, err = refresh(r.Context(), members, p)
				if err != nil {
					next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenErrContextKey, err)))
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// refresh replaces the claimed role and email with the stored ones.
func refresh(ctx context.Context, members MemberLookup, p Principal) (Principal, error) {
	m, err := members.GetByID(ctx, p.MemberID)
	switch {
	case apperr.IsNotFound(err):
		return Principal{}, errAccountInactive
	case err != nil:
		return p, nil
	case !m.IsActive():
		return Principal{}, errAccountInactive
	}
	p.Email = m.Email
	p.Role = m.Role
	return p, nil
}

// authError explains why the request carries no principal.
func authError(ctx context.Context) error {
	if err, ok := ctx.Value(tokenErrContextKey).(error); ok {
		return err
	}
	return errMissingToken
}

// RequireAuth returns middleware that blocks unauthenticated requests.
func RequireAuth(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return RequireRole(log)
}

// RequireRole returns middleware that blocks requests from callers without
// one of the specified roles. No roles means any authenticated caller.
func RequireRole(log *zap.SugaredLogger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				err := authError(r.Context())
				RespondError(w, http.StatusUnauthorized, apperr.ErrUnauthenticated.Error(), apperr.Message(err))
				return
			}
			if len(roles) > 0 && !p.HasRole(roles...) {
				log.Warnw("auth_denied", "path", r.URL.Path, "member_id", p.MemberID, "role", p.Role, "required", roles)
				RespondError(w, http.StatusForbidden, apperr.ErrForbidden.Error(), "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext extracts the caller from the request context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// ContextWithPrincipal returns a context carrying p. Tests use it to skip
// token issuance.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
