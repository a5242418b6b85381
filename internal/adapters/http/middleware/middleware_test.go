package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fellowship/internal/adapters/auth"
	"fellowship/internal/domain/member"
)

var nop = zap.NewNop().Sugar()

func okHandler(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestAuthAndRequireRole(t *testing.T) {
	issuer := auth.NewIssuer("access-secret-0123456789abcdefghijkl", "refresh-secret-0123456789abcdefghijk", time.Minute, time.Hour)
	leader, err := issuer.IssuePair(auth.Subject{MemberID: "m-1", Email: "m-1@example.com", Role: member.RoleLeader})
	require.NoError(t, err)
	expired, _, err := issuer.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }).
		IssueAccess(auth.Subject{MemberID: "m-1", Role: member.RoleAdmin})
	require.NoError(t, err)

	var seen Principal
	protected := Auth(issuer, nil)(RequireRole(nop, member.RoleAdmin, member.RoleLeader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))
	adminOnly := Auth(issuer, nil)(RequireRole(nop, member.RoleAdmin)(http.HandlerFunc(okHandler)))

	tests := []struct {
		name    string
		handler http.Handler
		header  string
		status  int
		details string
	}{
		{"no token", protected, "", http.StatusUnauthorized, "missing bearer token"},
		{"wrong scheme", protected, "Basic " + leader.AccessToken, http.StatusUnauthorized, "missing bearer token"},
		{"expired", protected, "Bearer " + expired, http.StatusUnauthorized, "token has expired"},
		{"refresh token as access", protected, "Bearer " + leader.RefreshToken, http.StatusUnauthorized, "token is invalid"},
		{"leader allowed", protected, "Bearer " + leader.AccessToken, http.StatusOK, ""},
		{"leader not admin", adminOnly, "bearer " + leader.AccessToken, http.StatusForbidden, "insufficient role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/events/ev-1/rsvps", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			tt.handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
			if tt.details != "" {
				assert.Equal(t, tt.details, decodeError(t, rr).Details)
			}
		})
	}
	assert.Equal(t, Principal{MemberID: "m-1", Email: "m-1@example.com", Role: member.RoleLeader}, seen)
}

func TestAuth_PublicRoutesIgnoreBadTokens(t *testing.T) {
	issuer := auth.NewIssuer("access-secret-0123456789abcdefghijkl", "refresh-secret-0123456789abcdefghijk", time.Minute, time.Hour)
	h := Auth(issuer, nil)(http.HandlerFunc(okHandler))
	req := httptest.NewRequest("GET", "/api/calendar.ics", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

type fakeLookup struct {
	members map[string]member.Member
	err     error
}

func (f fakeLookup) GetByID(_ context.Context, id string) (member.Member, error) {
	if f.err != nil {
		return member.Member{}, f.err
	}
	m, ok := f.members[id]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	return m, nil
}

func TestAuth_UsesStoredAccount(t *testing.T) {
	issuer := auth.NewIssuer("access-secret-0123456789abcdefghijkl", "refresh-secret-0123456789abcdefghijk", time.Minute, time.Hour)
	issue := func(id string) string {
		pair, err := issuer.IssuePair(auth.Subject{MemberID: id, Email: id + "@example.com", Role: member.RoleAdmin})
		require.NoError(t, err)
		return "Bearer " + pair.AccessToken
	}
	store := fakeLookup{members: map[string]member.Member{
		"admin":   {ID: "admin", Email: "admin@example.com", Role: member.RoleAdmin, Status: member.StatusActive},
		"demoted": {ID: "demoted", Email: "demoted@example.com", Role: member.RoleMember, Status: member.StatusActive},
		"gone":    {ID: "gone", Email: "gone@example.com", Role: member.RoleAdmin, Status: member.StatusDeactivated},
	}}
	adminOnly := func(lookup MemberLookup) http.Handler {
		return Auth(issuer, lookup)(RequireRole(nop, member.RoleAdmin)(http.HandlerFunc(okHandler)))
	}

	tests := []struct {
		name    string
		lookup  MemberLookup
		member  string
		status  int
		details string
	}{
		{"active admin", store, "admin", http.StatusOK, ""},
		{"demoted since issue", store, "demoted", http.StatusForbidden, "insufficient role"},
		{"deactivated since issue", store, "gone", http.StatusUnauthorized, "account is not active"},
		{"deleted since issue", store, "missing", http.StatusUnauthorized, "account is not active"},
		{"store down keeps claims", fakeLookup{err: errors.New("dial tcp: connection refused")}, "admin", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/admin/audit", nil)
			req.Header.Set("Authorization", issue(tt.member))
			rr := httptest.NewRecorder()
			adminOnly(tt.lookup).ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
			if tt.details != "" {
				assert.Equal(t, tt.details, decodeError(t, rr).Details)
			}
		})
	}
}

func TestRateLimiter_TokenBucket(t *testing.T) {
	now := time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2).WithClock(func() time.Time { return now })
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "a"))
	assert.True(t, rl.Allow(ctx, "a"))
	assert.False(t, rl.Allow(ctx, "a"), "burst exhausted")
	assert.True(t, rl.Allow(ctx, "b"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow(ctx, "a"), "one token refilled")
	assert.False(t, rl.Allow(ctx, "a"))

	now = now.Add(10 * time.Minute)
	rl.Allow(ctx, "c")
	rl.mu.Lock()
	_, kept := rl.visitors["b"]
	rl.mu.Unlock()
	assert.False(t, kept, "idle visitors are swept")
}

type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.counts[key]++
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeCounter) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires[key] = ttl
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	fake := &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
	rl := NewRedisLimiter(fake, "rl", 2, time.Minute, nop)
	now := time.Date(2026, 9, 6, 10, 0, 5, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "ip"))
	assert.True(t, rl.Allow(ctx, "ip"))
	assert.False(t, rl.Allow(ctx, "ip"))
	assert.Len(t, fake.expires, 1, "expiry is set once per window")

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow(ctx, "ip"), "new window")
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	fake := &fakeCounter{err: errors.New("dial tcp: connection refused")}
	rl := NewRedisLimiter(fake, "rl", 1, time.Minute, nop)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(context.Background(), "ip"))
	}
}

type fakeLimited struct{ names []string }

func (f *fakeLimited) RateLimited(name string) { f.names = append(f.names, name) }

func TestRateLimit_Rejects(t *testing.T) {
	obs := &fakeLimited{}
	h := RateLimit("login", NewRateLimiter(1, 1), obs, nop)(http.HandlerFunc(okHandler))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest("POST", "/api/auth/login", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest("POST", "/api/auth/login", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Equal(t, []string{"login"}, obs.names)
}

func TestRecoverAndHeaders(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }),
		SecurityHeaders,
		Recover(nop),
	)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/me", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal server error", decodeError(t, rr).Error)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.9:52100"
	assert.Equal(t, "203.0.113.9", ClientIP(req))
	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(req))
}
