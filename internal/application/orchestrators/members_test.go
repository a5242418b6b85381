package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"fellowship/internal/adapters/auth"
	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/member"
)

const goodPassword = "correct horse battery"

func memberWithPassword(t *testing.T, id, role string) *member.Member {
	t.Helper()
	m := newMember(id, role)
	if err := m.SetPassword(goodPassword); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	return m
}

func adminActor(id string) Actor {
	return Actor{ID: id, Email: id + "@example.com", Role: member.RoleAdmin, IPAddress: "10.0.0.1", UserAgent: "test"}
}

// --- ExecuteRegisterMember ---

func TestExecuteRegisterMember_CreatesActiveMember(t *testing.T) {
	store := newFakeMembers()
	hidden := member.Privacy{ShowEmail: true}
	m, err := ExecuteRegisterMember(context.Background(), RegisterMemberInput{
		Email:     "Ruth@Moab.org",
		Password:  goodPassword,
		FirstName: "Ruth",
		LastName:  "Moabite",
		Privacy:   &hidden,
	}, RegisterMemberDeps{MemberStore: store, GenerateID: seqIDs("m"), Now: testNow, Log: nopLog})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Role != member.RoleMember || m.Status != member.StatusActive {
		t.Errorf("expected active member, got role=%s status=%s", m.Role, m.Status)
	}
	if m.Email != "ruth@moab.org" {
		t.Errorf("expected normalized email, got %s", m.Email)
	}
	if m.Privacy != hidden {
		t.Errorf("expected privacy %+v, got %+v", hidden, m.Privacy)
	}
	if err := m.CheckPassword(goodPassword); err != nil {
		t.Errorf("password not stored: %v", err)
	}
}

func TestExecuteRegisterMember_Rejects(t *testing.T) {
	existing := newMember("m-0", member.RoleMember)
	tests := []struct {
		name  string
		input RegisterMemberInput
		kind  error
	}{
		{"short password", RegisterMemberInput{Email: "a@b.c", Password: "short", FirstName: "A", LastName: "B"}, apperr.ErrValidation},
		{"missing password", RegisterMemberInput{Email: "a@b.c", FirstName: "A", LastName: "B"}, apperr.ErrValidation},
		{"bad email", RegisterMemberInput{Email: "nope", Password: goodPassword, FirstName: "A", LastName: "B"}, apperr.ErrValidation},
		{"duplicate email", RegisterMemberInput{Email: existing.Email, Password: goodPassword, FirstName: "A", LastName: "B"}, apperr.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeMembers(existing)
			_, err := ExecuteRegisterMember(context.Background(), tt.input, RegisterMemberDeps{
				MemberStore: store, GenerateID: seqIDs("m"), Now: testNow, Log: nopLog,
			})
			if apperr.Kind(err) != tt.kind {
				t.Errorf("expected kind %s, got %v", tt.kind, err)
			}
			if len(store.byID) != 1 {
				t.Errorf("expected no new member, have %d", len(store.byID))
			}
		})
	}
}

// --- ExecuteLogin / ExecuteRefresh ---

func newTestIssuer() *auth.Issuer {
	return auth.NewIssuer("access-secret-for-tests", "refresh-secret-for-tests", 15*time.Minute, 7*24*time.Hour).WithClock(testNow)
}

func TestExecuteLogin_Success(t *testing.T) {
	m := memberWithPassword(t, "m-1", member.RoleLeader)
	m.FailedLogins = 3
	store := newFakeMembers(m)
	issuer := newTestIssuer()

	res, err := ExecuteLogin(context.Background(), LoginInput{Email: "M-1@example.com", Password: goodPassword},
		LoginDeps{MemberStore: store, Tokens: issuer, Now: testNow, Log: nopLog})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claims, err := issuer.VerifyAccess(res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.MemberID() != "m-1" || claims.Role != member.RoleLeader {
		t.Errorf("unexpected claims %+v", claims)
	}
	saved := store.byID["m-1"]
	if saved.FailedLogins != 0 || saved.LastLoginAt == nil {
		t.Errorf("expected failure count reset and last login stamped, got %+v", saved)
	}
}

func TestExecuteLogin_UnknownEmailLooksLikeWrongPassword(t *testing.T) {
	_, err := ExecuteLogin(context.Background(), LoginInput{Email: "ghost@example.com", Password: goodPassword},
		LoginDeps{MemberStore: newFakeMembers(), Tokens: newTestIssuer(), Now: testNow, Log: nopLog})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestExecuteLogin_LocksAfterRepeatedFailures(t *testing.T) {
	m := memberWithPassword(t, "m-1", member.RoleMember)
	store := newFakeMembers(m)
	auditLog := &fakeAudit{}
	deps := LoginDeps{
		MemberStore: store,
		Tokens:      newTestIssuer(),
		Auditor:     &Auditor{Store: auditLog, Log: nopLog},
		Now:         testNow,
		Log:         nopLog,
	}

	for i := 0; i < member.MaxFailedLogins; i++ {
		_, err := ExecuteLogin(context.Background(), LoginInput{Email: m.Email, Password: "wrong password!"}, deps)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := ExecuteLogin(context.Background(), LoginInput{Email: m.Email, Password: goodPassword}, deps)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked even with the right password, got %v", err)
	}
	if apperr.Kind(err) != apperr.ErrLocked {
		t.Errorf("expected locked kind, got %s", apperr.Kind(err))
	}
	if len(auditLog.entries) != 1 || auditLog.entries[0].Action != audit.ActionLock {
		t.Errorf("expected one lock audit entry, got %v", auditLog.actions())
	}

	deps.Now = func() time.Time { return testTime.Add(member.LockoutDuration + time.Second) }
	if _, err := ExecuteLogin(context.Background(), LoginInput{Email: m.Email, Password: goodPassword}, deps); err != nil {
		t.Errorf("expected login after lockout window, got %v", err)
	}
}

// staleMembers answers GetByEmail with a snapshot taken before a concurrent
// change reached the store.
type staleMembers struct {
	*fakeMembers
	snapshot member.Member
}

func (s staleMembers) GetByEmail(context.Context, string) (member.Member, error) {
	return s.snapshot, nil
}

func TestExecuteLogin_DeactivatedDuringLoginIsRefused(t *testing.T) {
	m := memberWithPassword(t, "m-1", member.RoleMember)
	snapshot := *m
	if err := m.Deactivate(testTime); err != nil {
		t.Fatal(err)
	}
	store := newFakeMembers(m)
	deps := LoginDeps{MemberStore: staleMembers{store, snapshot}, Tokens: newTestIssuer(), Now: testNow, Log: nopLog}

	_, err := ExecuteLogin(context.Background(), LoginInput{Email: m.Email, Password: goodPassword}, deps)
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
	if got := store.byID["m-1"]; got.Status != member.StatusDeactivated || got.LastLoginAt != nil {
		t.Errorf("deactivation must survive the login, got status %s", got.Status)
	}
}

func TestExecuteLogin_InactiveRefusedAfterPasswordCheck(t *testing.T) {
	m := memberWithPassword(t, "m-1", member.RoleMember)
	if err := m.Deactivate(testTime); err != nil {
		t.Fatal(err)
	}
	store := newFakeMembers(m)
	deps := LoginDeps{MemberStore: store, Tokens: newTestIssuer(), Now: testNow, Log: nopLog}

	_, err := ExecuteLogin(context.Background(), LoginInput{Email: m.Email, Password: goodPassword}, deps)
	if !errors.Is(err, ErrAccountInactive) {
		t.Errorf("expected ErrAccountInactive, got %v", err)
	}
	_, err = ExecuteLogin(context.Background(), LoginInput{Email: m.Email, Password: "not the password"}, deps)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password on an inactive account should not reveal status, got %v", err)
	}
}

func TestExecuteRefresh(t *testing.T) {
	m := memberWithPassword(t, "m-1", member.RoleMember)
	store := newFakeMembers(m)
	issuer := newTestIssuer()
	pair, err := issuer.IssuePair(subjectOf(*m))
	if err != nil {
		t.Fatal(err)
	}
	deps := RefreshDeps{MemberStore: store, Tokens: issuer, Now: testNow}

	res, err := ExecuteRefresh(context.Background(), RefreshInput{RefreshToken: pair.RefreshToken}, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := issuer.VerifyAccess(res.AccessToken); err != nil {
		t.Errorf("refreshed token does not verify: %v", err)
	}

	if _, err := ExecuteRefresh(context.Background(), RefreshInput{RefreshToken: pair.AccessToken}, deps); apperr.Kind(err) != apperr.ErrUnauthenticated {
		t.Errorf("access token must not refresh, got %v", err)
	}

	gone := store.byID["m-1"]
	_ = gone.Deactivate(testTime)
	store.byID["m-1"] = gone
	if _, err := ExecuteRefresh(context.Background(), RefreshInput{RefreshToken: pair.RefreshToken}, deps); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Errorf("deactivated member must not refresh, got %v", err)
	}
}

// --- ExecuteChangePassword ---

func TestExecuteChangePassword(t *testing.T) {
	m := memberWithPassword(t, "m-1", member.RoleMember)
	store := newFakeMembers(m)
	auditLog := &fakeAudit{}
	deps := ChangePasswordDeps{MemberStore: store, Auditor: &Auditor{Store: auditLog, Log: nopLog}, Now: testNow, Log: nopLog}
	actor := actorFor(*m, "", "")

	err := ExecuteChangePassword(context.Background(), ChangePasswordInput{Actor: actor, CurrentPassword: "guess guess guess", NewPassword: "another long password"}, deps)
	if !errors.Is(err, ErrCurrentPasswordWrong) {
		t.Errorf("expected ErrCurrentPasswordWrong, got %v", err)
	}
	err = ExecuteChangePassword(context.Background(), ChangePasswordInput{Actor: actor, CurrentPassword: goodPassword, NewPassword: goodPassword}, deps)
	if !errors.Is(err, ErrNewPasswordSame) {
		t.Errorf("expected ErrNewPasswordSame, got %v", err)
	}
	err = ExecuteChangePassword(context.Background(), ChangePasswordInput{Actor: actor, CurrentPassword: goodPassword, NewPassword: "another long password"}, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	saved := store.byID["m-1"]
	if err := saved.CheckPassword("another long password"); err != nil {
		t.Errorf("new password not stored: %v", err)
	}
	if len(auditLog.entries) != 1 || auditLog.entries[0].Category != audit.CategorySecurity {
		t.Errorf("expected one security audit entry, got %v", auditLog.actions())
	}
}

// --- ExecuteCreateMember / ExecuteUpdateMember ---

func TestExecuteCreateMember_AuditsWithRole(t *testing.T) {
	store := newFakeMembers()
	auditLog := &fakeAudit{}
	m, err := ExecuteCreateMember(context.Background(), CreateMemberInput{
		Actor:     adminActor("admin-1"),
		Email:     "naomi@example.com",
		FirstName: "Naomi",
		LastName:  "Bethlehem",
		Role:      member.RoleLeader,
	}, CreateMemberDeps{MemberStore: store, Auditor: &Auditor{Store: auditLog, Log: nopLog}, GenerateID: seqIDs("m"), Now: testNow, Log: nopLog})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Privacy != member.DefaultPrivacy() {
		t.Errorf("expected default privacy, got %+v", m.Privacy)
	}
	if m.PasswordHash != "" {
		t.Error("expected no password when none given")
	}
	if len(auditLog.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(auditLog.entries))
	}
	e := auditLog.entries[0]
	if e.ActorID != "admin-1" || e.ResourceID != m.ID || e.Metadata["role"] != member.RoleLeader {
		t.Errorf("unexpected audit entry %+v", e)
	}
}

func TestExecuteUpdateMember_RoleChangeAudited(t *testing.T) {
	target := newMember("m-1", member.RoleMember)
	store := newFakeMembers(target)
	auditLog := &fakeAudit{}
	deps := UpdateMemberDeps{MemberStore: store, Auditor: &Auditor{Store: auditLog, Log: nopLog}, Now: testNow, Log: nopLog}

	role := member.RoleLeader
	phone := "555-0199"
	m, err := ExecuteUpdateMember(context.Background(), UpdateMemberInput{
		Actor:    adminActor("admin-1"),
		MemberID: "m-1",
		Role:     &role,
		Changes:  ProfileChanges{Phone: &phone},
	}, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Role != member.RoleLeader || m.Phone != phone {
		t.Errorf("changes not applied: %+v", m)
	}
	got := auditLog.actions()
	if len(got) != 2 || got[0] != audit.ActionUpdate || got[1] != audit.ActionRoleChange {
		t.Fatalf("expected update then role_change, got %v", got)
	}
	rc := auditLog.entries[1]
	if rc.Severity != audit.SeverityWarning || rc.Metadata["from"] != member.RoleMember || rc.Metadata["to"] != member.RoleLeader {
		t.Errorf("unexpected role change entry %+v", rc)
	}
}

func TestExecuteUpdateMember_Guards(t *testing.T) {
	admin := newMember("admin-1", member.RoleAdmin)
	other := newMember("m-1", member.RoleMember)

	t.Run("own role", func(t *testing.T) {
		store := newFakeMembers(admin)
		role := member.RoleMember
		_, err := ExecuteUpdateMember(context.Background(), UpdateMemberInput{Actor: adminActor("admin-1"), MemberID: "admin-1", Role: &role},
			UpdateMemberDeps{MemberStore: store, Now: testNow, Log: nopLog})
		if !errors.Is(err, ErrSelfDemotion) {
			t.Errorf("expected ErrSelfDemotion, got %v", err)
		}
		if store.byID["admin-1"].Role != member.RoleAdmin {
			t.Error("role must be unchanged")
		}
	})

	t.Run("status to deactivated", func(t *testing.T) {
		store := newFakeMembers(other)
		status := member.StatusDeactivated
		_, err := ExecuteUpdateMember(context.Background(), UpdateMemberInput{Actor: adminActor("admin-1"), MemberID: "m-1", Status: &status},
			UpdateMemberDeps{MemberStore: store, Now: testNow, Log: nopLog})
		if !apperr.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("invalid role", func(t *testing.T) {
		store := newFakeMembers(other)
		role := "bishop"
		_, err := ExecuteUpdateMember(context.Background(), UpdateMemberInput{Actor: adminActor("admin-1"), MemberID: "m-1", Role: &role},
			UpdateMemberDeps{MemberStore: store, Now: testNow, Log: nopLog})
		if !errors.Is(err, member.ErrInvalidRole) {
			t.Errorf("expected ErrInvalidRole, got %v", err)
		}
	})
}

func TestExecuteUpdateProfile_LeavesRoleAlone(t *testing.T) {
	m := newMember("m-1", member.RoleMember)
	store := newFakeMembers(m)
	first := "  Dorcas "
	privacy := member.Privacy{ShowEmail: false, ShowPhone: true}

	got, err := ExecuteUpdateProfile(context.Background(), UpdateProfileInput{
		Actor:   Actor{ID: "m-1", Role: member.RoleMember},
		Changes: ProfileChanges{FirstName: &first, Privacy: &privacy},
	}, UpdateMemberDeps{MemberStore: store, Now: testNow, Log: nopLog})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FirstName != "Dorcas" || got.Privacy != privacy || got.Role != member.RoleMember {
		t.Errorf("unexpected result %+v", got)
	}
}

// --- ExecuteDeactivateMember / ExecuteReactivateMember ---

func TestExecuteDeactivateAndReactivate(t *testing.T) {
	m := newMember("m-1", member.RoleMember)
	store := newFakeMembers(m)
	auditLog := &fakeAudit{}
	deps := MemberLifecycleDeps{MemberStore: store, Auditor: &Auditor{Store: auditLog, Log: nopLog}, Now: testNow, Log: nopLog}
	input := MemberLifecycleInput{Actor: adminActor("admin-1"), MemberID: "m-1", Reason: "moved away"}

	got, err := ExecuteDeactivateMember(context.Background(), input, deps)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got.Status != member.StatusDeactivated || got.DeactivatedAt == nil {
		t.Errorf("expected deactivated member, got %+v", got)
	}
	if _, err := ExecuteDeactivateMember(context.Background(), input, deps); !errors.Is(err, member.ErrAlreadyDeactivated) {
		t.Errorf("expected ErrAlreadyDeactivated, got %v", err)
	}

	got, err = ExecuteReactivateMember(context.Background(), input, deps)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if got.Status != member.StatusActive || got.DeactivatedAt != nil {
		t.Errorf("expected active member, got %+v", got)
	}
	want := []audit.Action{audit.ActionDeactivate, audit.ActionReactivate}
	if acts := auditLog.actions(); len(acts) != 2 || acts[0] != want[0] || acts[1] != want[1] {
		t.Errorf("expected %v, got %v", want, acts)
	}
	if auditLog.entries[0].Metadata["reason"] != "moved away" {
		t.Errorf("expected reason in metadata, got %v", auditLog.entries[0].Metadata)
	}
}

func TestExecuteDeactivateMember_Self(t *testing.T) {
	admin := newMember("admin-1", member.RoleAdmin)
	_, err := ExecuteDeactivateMember(context.Background(), MemberLifecycleInput{Actor: adminActor("admin-1"), MemberID: "admin-1"},
		MemberLifecycleDeps{MemberStore: newFakeMembers(admin), Now: testNow, Log: nopLog})
	if !errors.Is(err, ErrSelfDemotion) {
		t.Errorf("expected ErrSelfDemotion, got %v", err)
	}
}

func TestAuditor_FailureDoesNotFailCommand(t *testing.T) {
	m := newMember("m-1", member.RoleMember)
	store := newFakeMembers(m)
	auditLog := &fakeAudit{err: errors.New("disk full")}
	_, err := ExecuteDeactivateMember(context.Background(), MemberLifecycleInput{Actor: adminActor("admin-1"), MemberID: "m-1"},
		MemberLifecycleDeps{MemberStore: store, Auditor: &Auditor{Store: auditLog, Log: nopLog}, Now: testNow, Log: nopLog})
	if err != nil {
		t.Fatalf("audit failure must not fail the command: %v", err)
	}
	if store.byID["m-1"].Status != member.StatusDeactivated {
		t.Error("expected member to be deactivated")
	}
}

func TestAuditor_RecordsAfterClientDisconnect(t *testing.T) {
	auditLog := &fakeAudit{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &Auditor{Store: auditLog, Log: nopLog}
	a.Record(ctx, adminActor("admin-1").entry(audit.CategoryMember, audit.ActionDeactivate, testTime))

	if len(auditLog.entries) != 1 {
		t.Fatalf("expected the entry to be stored despite the cancelled request, got %d", len(auditLog.entries))
	}
}

type failingMirror struct{ calls int }

func (f *failingMirror) Publish(context.Context, audit.Entry) (string, error) {
	f.calls++
	return "", errors.New("redis down")
}

func TestAuditor_MirrorFailureIsCounted(t *testing.T) {
	mirror := &failingMirror{}
	failures := 0
	a := &Auditor{Store: &fakeAudit{}, Mirror: mirror, Log: nopLog, OnMirrorFailure: func() { failures++ }}
	a.Record(context.Background(), adminActor("admin-1").entry(audit.CategoryMember, audit.ActionUpdate, testTime))
	if mirror.calls != 1 || failures != 1 {
		t.Errorf("expected one mirror call and one failure, got %d and %d", mirror.calls, failures)
	}

	var nilAuditor *Auditor
	nilAuditor.Record(context.Background(), audit.Entry{})
}

// --- ExecuteSeedAdmin ---

func TestExecuteSeedAdmin(t *testing.T) {
	store := newFakeMembers()
	auditLog := &fakeAudit{}
	deps := SeedAdminDeps{MemberStore: store, Auditor: &Auditor{Store: auditLog, Log: nopLog}, GenerateID: seqIDs("m"), Now: testNow, Log: nopLog}
	input := SeedAdminInput{Email: "pastor@example.com", Password: goodPassword}

	res, err := ExecuteSeedAdmin(context.Background(), input, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Created || res.Member.Role != member.RoleAdmin {
		t.Errorf("expected a new admin, got %+v", res)
	}
	if len(auditLog.entries) != 1 || auditLog.entries[0].ActorID != res.Member.ID {
		t.Errorf("expected seed entry attributed to the new admin, got %+v", auditLog.entries)
	}

	again, err := ExecuteSeedAdmin(context.Background(), input, deps)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if again.Created || again.Member.ID != res.Member.ID || len(store.byID) != 1 {
		t.Errorf("second seed must be a no-op, got %+v", again)
	}
}

func TestExecuteSeedAdmin_PromotesDeactivatedMember(t *testing.T) {
	m := newMember("m-1", member.RoleMember)
	_ = m.Deactivate(testTime)
	store := newFakeMembers(m)

	res, err := ExecuteSeedAdmin(context.Background(), SeedAdminInput{Email: m.Email, Password: goodPassword},
		SeedAdminDeps{MemberStore: store, GenerateID: seqIDs("m"), Now: testNow, Log: nopLog})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created || res.Member.Role != member.RoleAdmin || res.Member.Status != member.StatusActive {
		t.Errorf("expected promoted active admin, got %+v", res.Member)
	}
}
