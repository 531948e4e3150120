package authz

import (
	"fmt"
	"sort"
	"strings"
)

// AccessKind enumerates what a route rule demands from the caller.
type AccessKind int

const (
	// AccessPublic allows the request with no session at all.
	AccessPublic AccessKind = iota
	// AccessRole requires the caller's role to satisfy Rule.Role.
	AccessRole
	// AccessPermissions requires the caller's role to resolve the
	// rule's permission set under the configured mode.
	AccessPermissions
)

// PermissionMode selects how a permission-gated rule combines its set.
type PermissionMode int

const (
	// ModeAll requires every listed permission.
	ModeAll PermissionMode = iota
	// ModeAny requires at least one listed permission.
	ModeAny
)

// RouteRule binds a request-path pattern to an access requirement.
// Pattern is an exact path unless Prefix is set.
type RouteRule struct {
	Pattern     string
	Prefix      bool
	Kind        AccessKind
	Role        Role
	Permissions []Permission
	Mode        PermissionMode
}

// Public marks an exact path as reachable without a session.
func Public(pattern string) RouteRule {
	return RouteRule{Pattern: pattern, Kind: AccessPublic}
}

// PublicPrefix marks a path prefix as reachable without a session.
func PublicPrefix(pattern string) RouteRule {
	return RouteRule{Pattern: pattern, Prefix: true, Kind: AccessPublic}
}

// RequireRole gates an exact path on a role.
func RequireRole(pattern string, role Role) RouteRule {
	return RouteRule{Pattern: pattern, Kind: AccessRole, Role: role}
}

// RequireRolePrefix gates a path prefix on a role.
func RequireRolePrefix(pattern string, role Role) RouteRule {
	return RouteRule{Pattern: pattern, Prefix: true, Kind: AccessRole, Role: role}
}

// RequirePermissions gates an exact path on a permission set.
func RequirePermissions(pattern string, mode PermissionMode, perms ...Permission) RouteRule {
	return RouteRule{Pattern: pattern, Kind: AccessPermissions, Permissions: perms, Mode: mode}
}

// RequirePermissionsPrefix gates a path prefix on a permission set.
func RequirePermissionsPrefix(pattern string, mode PermissionMode, perms ...Permission) RouteRule {
	return RouteRule{Pattern: pattern, Prefix: true, Kind: AccessPermissions, Permissions: perms, Mode: mode}
}

// PolicySet resolves request paths to route rules. Matching is ranked
// by specificity: exact match, then the longest matching prefix, then a
// fallback rule requiring the baseline authenticated role. The set is
// immutable after construction.
type PolicySet struct {
	exact    map[string]RouteRule
	prefixes []RouteRule
	fallback RouteRule
}

// NewPolicySet validates and indexes the rules. Duplicate exact
// patterns and duplicate equal prefixes are configuration errors:
// two equally specific rules would make matching order-dependent.
func NewPolicySet(baseline Role, rules []RouteRule) (*PolicySet, error) {
	if !baseline.Valid() {
		return nil, fmt.Errorf("authz: invalid baseline role %q", baseline)
	}
	ps := &PolicySet{
		exact:    make(map[string]RouteRule, len(rules)),
		fallback: RouteRule{Kind: AccessRole, Role: baseline},
	}
	seenPrefix := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if err := validateRule(rule); err != nil {
			return nil, err
		}
		if rule.Prefix {
			if _, dup := seenPrefix[rule.Pattern]; dup {
				return nil, fmt.Errorf("authz: duplicate prefix rule %q", rule.Pattern)
			}
			seenPrefix[rule.Pattern] = struct{}{}
			ps.prefixes = append(ps.prefixes, rule)
			continue
		}
		if _, dup := ps.exact[rule.Pattern]; dup {
			return nil, fmt.Errorf("authz: duplicate exact rule %q", rule.Pattern)
		}
		ps.exact[rule.Pattern] = rule
	}
	// Longest prefix first; equal lengths cannot collide after the
	// duplicate check, the secondary ordering just keeps the slice stable.
	sort.Slice(ps.prefixes, func(i, j int) bool {
		if len(ps.prefixes[i].Pattern) != len(ps.prefixes[j].Pattern) {
			return len(ps.prefixes[i].Pattern) > len(ps.prefixes[j].Pattern)
		}
		return ps.prefixes[i].Pattern < ps.prefixes[j].Pattern
	})
	return ps, nil
}

func validateRule(rule RouteRule) error {
	if rule.Pattern == "" || !strings.HasPrefix(rule.Pattern, "/") {
		return fmt.Errorf("authz: rule pattern %q must start with /", rule.Pattern)
	}
	switch rule.Kind {
	case AccessPublic:
		return nil
	case AccessRole:
		if !rule.Role.Valid() {
			return fmt.Errorf("authz: rule %q requires unknown role %q", rule.Pattern, rule.Role)
		}
		return nil
	case AccessPermissions:
		if len(rule.Permissions) == 0 {
			return fmt.Errorf("authz: rule %q requires an empty permission set", rule.Pattern)
		}
		for _, perm := range rule.Permissions {
			if !perm.Valid() {
				return fmt.Errorf("authz: rule %q requires unknown permission %q", rule.Pattern, perm)
			}
		}
		return nil
	default:
		return fmt.Errorf("authz: rule %q has unknown access kind %d", rule.Pattern, rule.Kind)
	}
}

// Match returns the rule applying to path. Unmatched paths fall back to
// the baseline-role rule, never to an open allow.
func (p *PolicySet) Match(path string) RouteRule {
	if rule, ok := p.exact[path]; ok {
		return rule
	}
	for _, rule := range p.prefixes {
		if strings.HasPrefix(path, rule.Pattern) {
			return rule
		}
	}
	return p.fallback
}

// Fallback exposes the default rule applied to unmatched paths.
func (p *PolicySet) Fallback() RouteRule {
	return p.fallback
}
