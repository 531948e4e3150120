package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keystone-pm/keystone/internal/audit"
	"github.com/keystone-pm/keystone/internal/ratelimit"
)

type identityStub struct {
	identities map[string]*Identity
	err        error
	calls      int
}

func (s *identityStub) Identity(ctx context.Context, id string) (*Identity, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	ident, ok := s.identities[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return ident, nil
}

type limiterStub struct {
	result ratelimit.Result
	err    error
	calls  int
}

func (s *limiterStub) Allow(ctx context.Context, key string) (ratelimit.Result, error) {
	s.calls++
	return s.result, s.err
}

type recorderStub struct {
	events []audit.Event
}

func (s *recorderStub) Record(event audit.Event) {
	s.events = append(s.events, event)
}

type guardFixture struct {
	guard      *Guard
	identities *identityStub
	limiter    *limiterStub
	recorder   *recorderStub
	now        time.Time
}

func newGuardFixture(t *testing.T, rules []RouteRule) *guardFixture {
	t.Helper()
	policies, err := NewPolicySet(RoleClient, rules)
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := &guardFixture{
		identities: &identityStub{identities: map[string]*Identity{
			"1": {ID: "1", Role: RoleAdmin, Active: true},
			"2": {ID: "2", Role: RoleDirector, Active: true},
			"3": {ID: "3", Role: RoleClient, Active: true},
			"4": {ID: "4", Role: RoleTeam, Active: false},
			"5": {ID: "5", Role: RoleBuilder, Active: true, LockedUntil: now.Add(10 * time.Minute)},
		}},
		limiter:  &limiterStub{result: ratelimit.Result{Allowed: true, Remaining: 10}},
		recorder: &recorderStub{},
		now:      now,
	}
	f.guard = NewGuard(GuardConfig{
		Policies:   policies,
		Resolver:   DefaultResolver(),
		Identities: f.identities,
		Limiter:    f.limiter,
		Recorder:   f.recorder,
		Clock:      func() time.Time { return f.now },
	})
	return f
}

func defaultRules() []RouteRule {
	return []RouteRule{
		Public("/healthz"),
		PublicPrefix("/auth/"),
		RequireRolePrefix("/admin", RoleAdmin),
		RequirePermissionsPrefix("/audit", ModeAny, PermViewAudit),
		RequirePermissionsPrefix("/ops", ModeAll, PermManageUsers, PermManagePolicies),
	}
}

func TestAuthorizePublicRouteSkipsIdentity(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	v := f.guard.Authorize(context.Background(), Request{Path: "/healthz", Method: "GET"})
	require.True(t, v.Allow)
	require.Equal(t, ReasonGranted, v.Reason)
	require.Zero(t, f.identities.calls)
	require.Zero(t, f.limiter.calls)
}

func TestAuthorizeNoSession(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	v := f.guard.Authorize(context.Background(), Request{Path: "/projects", Method: "GET"})
	require.False(t, v.Allow)
	require.Equal(t, ReasonUnauthenticated, v.Reason)
}

func TestAuthorizeStaleSessionIdentity(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	v := f.guard.Authorize(context.Background(), Request{Path: "/projects", IdentityID: "99"})
	require.False(t, v.Allow)
	require.Equal(t, ReasonUnauthenticated, v.Reason)
}

func TestAuthorizeIdentityStoreFailureDeniesClosed(t *testing.T) {
	f := newGuardFixture(t, defaultRules())
	f.identities.err = errors.New("connection refused")

	v := f.guard.Authorize(context.Background(), Request{Path: "/projects", IdentityID: "1"})
	require.False(t, v.Allow)
	require.Equal(t, ReasonPolicyLookupFailed, v.Reason)
}

func TestAuthorizeInactiveIdentity(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	v := f.guard.Authorize(context.Background(), Request{Path: "/projects", IdentityID: "4"})
	require.False(t, v.Allow)
	require.Equal(t, ReasonUnauthenticated, v.Reason)
}

func TestAuthorizeLockedBeforeRateLimit(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	v := f.guard.Authorize(context.Background(), Request{Path: "/projects", IdentityID: "5"})
	require.False(t, v.Allow)
	require.Equal(t, ReasonAccountLocked, v.Reason)
	require.Equal(t, 10*time.Minute, v.RetryAfter)
	// A locked identity is refused before the limiter spends budget on it.
	require.Zero(t, f.limiter.calls)
}

func TestAuthorizeLockExpiresLazily(t *testing.T) {
	f := newGuardFixture(t, defaultRules())
	f.now = f.now.Add(11 * time.Minute)

	v := f.guard.Authorize(context.Background(), Request{Path: "/projects", IdentityID: "5"})
	require.True(t, v.Allow)
	require.Equal(t, ReasonGranted, v.Reason)
}

func TestAuthorizeRateLimited(t *testing.T) {
	f := newGuardFixture(t, defaultRules())
	f.limiter.result = ratelimit.Result{Allowed: false, RetryAfter: 42 * time.Second}

	v := f.guard.Authorize(context.Background(), Request{Path: "/projects", IdentityID: "3"})
	require.False(t, v.Allow)
	require.Equal(t, ReasonRateLimited, v.Reason)
	require.Equal(t, 42*time.Second, v.RetryAfter)
}

func TestAuthorizeLimiterFailureAllows(t *testing.T) {
	f := newGuardFixture(t, defaultRules())
	f.limiter.result = ratelimit.Result{Allowed: true}
	f.limiter.err = errors.New("redis down")

	v := f.guard.Authorize(context.Background(), Request{Path: "/projects", IdentityID: "3"})
	require.True(t, v.Allow)
	require.Equal(t, ReasonGranted, v.Reason)
}

func TestAuthorizeRoleRule(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	v := f.guard.Authorize(context.Background(), Request{Path: "/admin/users", IdentityID: "1"})
	require.True(t, v.Allow)

	// director sits below admin and must not pass an admin gate.
	v = f.guard.Authorize(context.Background(), Request{Path: "/admin/users", IdentityID: "2"})
	require.False(t, v.Allow)
	require.Equal(t, ReasonInsufficientRole, v.Reason)
}

func TestAuthorizePermissionModeAny(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	// director holds view:audit directly.
	v := f.guard.Authorize(context.Background(), Request{Path: "/audit/timeline", IdentityID: "2"})
	require.True(t, v.Allow)

	v = f.guard.Authorize(context.Background(), Request{Path: "/audit/timeline", IdentityID: "3"})
	require.False(t, v.Allow)
	require.Equal(t, ReasonInsufficientPermission, v.Reason)
}

func TestAuthorizePermissionModeAll(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	// admin holds both manage:users and manage:policies.
	v := f.guard.Authorize(context.Background(), Request{Path: "/ops/rotate", IdentityID: "1"})
	require.True(t, v.Allow)

	// director holds neither and team holds neither; all-of fails.
	v = f.guard.Authorize(context.Background(), Request{Path: "/ops/rotate", IdentityID: "2"})
	require.False(t, v.Allow)
	require.Equal(t, ReasonInsufficientPermission, v.Reason)
}

func TestAuthorizeFallbackRequiresBaselineRole(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	// Every authenticated role satisfies the client baseline.
	v := f.guard.Authorize(context.Background(), Request{Path: "/unmapped", IdentityID: "3"})
	require.True(t, v.Allow)

	v = f.guard.Authorize(context.Background(), Request{Path: "/unmapped"})
	require.False(t, v.Allow)
	require.Equal(t, ReasonUnauthenticated, v.Reason)
}

func TestAuthorizeEmitsExactlyOneEventPerDecision(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	f.guard.Authorize(context.Background(), Request{Path: "/healthz", Method: "GET"})
	f.guard.Authorize(context.Background(), Request{Path: "/admin/users", Method: "POST", IdentityID: "2"})
	f.guard.Authorize(context.Background(), Request{Path: "/projects", Method: "GET", IdentityID: "1"})

	require.Len(t, f.recorder.events, 3)

	allow := f.recorder.events[0]
	require.Equal(t, audit.OutcomeAllow, allow.Outcome)
	require.Equal(t, "/healthz", allow.Path)
	require.Equal(t, "GET", allow.Method)
	require.Equal(t, f.now, allow.At)

	deny := f.recorder.events[1]
	require.Equal(t, audit.OutcomeDeny, deny.Outcome)
	require.Equal(t, string(ReasonInsufficientRole), deny.Reason)
	require.Equal(t, "2", deny.IdentityID)
	require.Equal(t, "director", deny.Role)
	require.NotEmpty(t, deny.Detail)

	granted := f.recorder.events[2]
	require.Equal(t, audit.OutcomeAllow, granted.Outcome)
	require.Equal(t, "1", granted.IdentityID)
	require.Equal(t, "admin", granted.Role)
}

func TestAuthorizeWithoutRecorder(t *testing.T) {
	policies, err := NewPolicySet(RoleClient, defaultRules())
	require.NoError(t, err)
	guard := NewGuard(GuardConfig{
		Policies:   policies,
		Resolver:   DefaultResolver(),
		Identities: &identityStub{identities: map[string]*Identity{}},
		Limiter:    &limiterStub{result: ratelimit.Result{Allowed: true}},
	})

	v := guard.Authorize(context.Background(), Request{Path: "/healthz"})
	require.True(t, v.Allow)
}
