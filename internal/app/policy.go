package app

import "github.com/keystone-pm/keystone/internal/authz"

// DefaultPolicies returns the route rules for this deployment. Exact
// rules beat prefixes and the longest prefix wins; any path matching
// no rule falls back to requiring the baseline authenticated role.
func DefaultPolicies() []authz.RouteRule {
	return []authz.RouteRule{
		authz.Public("/healthz"),
		authz.Public("/metrics"),
		authz.PublicPrefix("/auth/"),
		authz.RequirePermissionsPrefix("/users", authz.ModeAny, authz.PermManageUsers),
		authz.RequirePermissionsPrefix("/audit", authz.ModeAny, authz.PermViewAudit),
		authz.RequireRolePrefix("/jobs", authz.RoleAdmin),
	}
}

// NewPolicySet builds the process-wide policy set. Client is the
// lowest-privilege authenticated role, so unmatched paths require a
// session but no particular grant.
func NewPolicySet() (*authz.PolicySet, error) {
	return authz.NewPolicySet(authz.RoleClient, DefaultPolicies())
}
