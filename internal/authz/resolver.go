package authz

import (
	"fmt"
	"sort"
)

// Resolver answers role and permission membership queries against a
// fixed hierarchy and grant table. Effective permission sets are
// computed once at construction; all query methods are read-only and
// safe for concurrent use without synchronization.
type Resolver struct {
	hierarchy *Hierarchy
	effective map[Role]map[Permission]struct{}
}

// NewResolver builds a resolver from the hierarchy and a direct grant
// table. Grants naming unknown roles or permissions are rejected.
func NewResolver(hierarchy *Hierarchy, grants map[Role][]Permission) (*Resolver, error) {
	for role, perms := range grants {
		if !role.Valid() {
			return nil, fmt.Errorf("authz: grant for unknown role %q", role)
		}
		for _, perm := range perms {
			if !perm.Valid() {
				return nil, fmt.Errorf("authz: unknown permission %q granted to %q", perm, role)
			}
		}
	}
	effective := make(map[Role]map[Permission]struct{}, len(Roles()))
	for _, role := range Roles() {
		set := make(map[Permission]struct{})
		for _, perm := range grants[role] {
			set[perm] = struct{}{}
		}
		for _, ancestor := range hierarchy.InheritedRoles(role) {
			for _, perm := range grants[ancestor] {
				set[perm] = struct{}{}
			}
		}
		effective[role] = set
	}
	return &Resolver{hierarchy: hierarchy, effective: effective}, nil
}

// DefaultResolver returns a resolver over the deployed hierarchy and
// grant table.
func DefaultResolver() *Resolver {
	r, err := NewResolver(DefaultHierarchy(), DefaultGrants())
	if err != nil {
		panic(err)
	}
	return r
}

// InheritedRoles returns the ancestor roles of role.
func (r *Resolver) InheritedRoles(role Role) []Role {
	return r.hierarchy.InheritedRoles(role)
}

// HasRole reports whether actual satisfies a requirement for required.
func (r *Resolver) HasRole(actual, required Role) bool {
	return r.hierarchy.HasRole(actual, required)
}

// HasPermission reports whether role holds perm directly or through
// inheritance.
func (r *Resolver) HasPermission(role Role, perm Permission) bool {
	_, ok := r.effective[role][perm]
	return ok
}

// ResolvePermissions returns the full permission set of role, own
// grants unioned with every ancestor's, sorted for stable output.
func (r *Resolver) ResolvePermissions(role Role) []Permission {
	set, ok := r.effective[role]
	if !ok {
		return nil
	}
	perms := make([]Permission, 0, len(set))
	for perm := range set {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}
