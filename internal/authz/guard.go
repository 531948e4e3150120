package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keystone-pm/keystone/internal/audit"
	"github.com/keystone-pm/keystone/internal/ratelimit"
)

// ErrIdentityNotFound is returned by IdentityReader implementations
// when no record exists for the id.
var ErrIdentityNotFound = errors.New("authz: identity not found")

// IdentityReader resolves the read view of an identity by its id.
type IdentityReader interface {
	Identity(ctx context.Context, id string) (*Identity, error)
}

// Recorder receives exactly one audit event per decision.
type Recorder interface {
	Record(event audit.Event)
}

// Request carries the attributes of one inbound request the guard
// evaluates. IdentityID is empty when the session names no user.
type Request struct {
	Path       string
	Method     string
	IdentityID string
}

// GuardConfig collects the guard's collaborators.
type GuardConfig struct {
	Policies   *PolicySet
	Resolver   *Resolver
	Identities IdentityReader
	Limiter    ratelimit.Limiter
	Recorder   Recorder
	Logger     *slog.Logger
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Guard combines route policy, session validity, lockout, throttling,
// and role/permission resolution into one allow/deny decision per
// request. It never returns an error: every failure mode collapses to
// a deny verdict with a specific reason, and ambiguity denies.
type Guard struct {
	policies   *PolicySet
	resolver   *Resolver
	identities IdentityReader
	limiter    ratelimit.Limiter
	recorder   Recorder
	logger     *slog.Logger
	clock      func() time.Time
}

// NewGuard constructs a Guard.
func NewGuard(cfg GuardConfig) *Guard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Guard{
		policies:   cfg.Policies,
		resolver:   cfg.Resolver,
		identities: cfg.Identities,
		limiter:    cfg.Limiter,
		recorder:   cfg.Recorder,
		logger:     logger,
		clock:      clock,
	}
}

// Authorize evaluates the request and returns a verdict. Every call
// emits exactly one audit event, on allow and deny alike; emission is
// best-effort and cannot alter the verdict.
func (g *Guard) Authorize(ctx context.Context, req Request) Verdict {
	rule := g.policies.Match(req.Path)
	verdict, detail := g.decide(ctx, req, rule)
	g.record(req, verdict, detail)
	return verdict
}

// decide runs the short-circuit sequence: public route, session
// presence, lock state, rate limit, role, permissions.
func (g *Guard) decide(ctx context.Context, req Request, rule RouteRule) (Verdict, string) {
	if rule.Kind == AccessPublic {
		return Verdict{Allow: true, Reason: ReasonGranted}, ""
	}

	if req.IdentityID == "" {
		return Verdict{Reason: ReasonUnauthenticated}, "no session"
	}

	ident, err := g.identities.Identity(ctx, req.IdentityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			// The session names a user that no longer exists.
			return Verdict{Reason: ReasonUnauthenticated}, "identity not found"
		}
		g.logger.Error("identity lookup failed",
			slog.String("identity", req.IdentityID),
			slog.Any("error", err))
		return Verdict{Reason: ReasonPolicyLookupFailed}, "identity store unavailable"
	}
	if !ident.Active {
		return Verdict{Reason: ReasonUnauthenticated, Identity: ident}, "identity inactive"
	}

	now := g.clock()
	if ident.Locked(now) {
		return Verdict{
			Reason:     ReasonAccountLocked,
			Identity:   ident,
			RetryAfter: ident.LockedUntil.Sub(now),
		}, fmt.Sprintf("locked until %s", ident.LockedUntil.UTC().Format(time.RFC3339))
	}

	res, err := g.limiter.Allow(ctx, ident.ID)
	if err != nil {
		// Throttling is best-effort; an unavailable store must not
		// block traffic.
		g.logger.Warn("rate limit store unavailable", slog.Any("error", err))
	} else if !res.Allowed {
		return Verdict{
			Reason:     ReasonRateLimited,
			Identity:   ident,
			RetryAfter: res.RetryAfter,
		}, "request budget exhausted"
	}

	switch rule.Kind {
	case AccessRole:
		if !g.resolver.HasRole(ident.Role, rule.Role) {
			return Verdict{Reason: ReasonInsufficientRole, Identity: ident},
				fmt.Sprintf("requires role %s", rule.Role)
		}
	case AccessPermissions:
		if !g.permitted(ident.Role, rule) {
			return Verdict{Reason: ReasonInsufficientPermission, Identity: ident},
				fmt.Sprintf("requires %s of %v", modeWord(rule.Mode), rule.Permissions)
		}
	}

	return Verdict{Allow: true, Reason: ReasonGranted, Identity: ident}, ""
}

func (g *Guard) permitted(role Role, rule RouteRule) bool {
	switch rule.Mode {
	case ModeAny:
		for _, perm := range rule.Permissions {
			if g.resolver.HasPermission(role, perm) {
				return true
			}
		}
		return false
	default:
		for _, perm := range rule.Permissions {
			if !g.resolver.HasPermission(role, perm) {
				return false
			}
		}
		return true
	}
}

func (g *Guard) record(req Request, verdict Verdict, detail string) {
	if g.recorder == nil {
		return
	}
	event := audit.Event{
		At:      g.clock().UTC(),
		Path:    req.Path,
		Method:  req.Method,
		Outcome: audit.OutcomeDeny,
		Reason:  string(verdict.Reason),
		Detail:  detail,
	}
	if verdict.Allow {
		event.Outcome = audit.OutcomeAllow
	}
	if verdict.Identity != nil {
		event.IdentityID = verdict.Identity.ID
		event.Role = string(verdict.Identity.Role)
	} else if req.IdentityID != "" {
		event.IdentityID = req.IdentityID
	}
	g.recorder.Record(event)
}

func modeWord(mode PermissionMode) string {
	if mode == ModeAny {
		return "any"
	}
	return "all"
}
