package authz

import "fmt"

// Role is a named authority level assigned to an identity.
type Role string

// Closed role set, fixed at deploy time.
const (
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RoleTeam     Role = "team"
	RoleBuilder  Role = "builder"
	RoleClient   Role = "client"
)

// Roles lists every role known to the platform.
func Roles() []Role {
	return []Role{RoleAdmin, RoleDirector, RoleTeam, RoleBuilder, RoleClient}
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDirector, RoleTeam, RoleBuilder, RoleClient:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Hierarchy is the role inheritance graph. Roles are mapped to small
// integer indices with parent adjacency stored in a fixed slice, so a
// lookup walks at most len(roles) nodes and never recurses.
type Hierarchy struct {
	roles   []Role
	index   map[Role]int
	parents [][]int
}

// NewHierarchy builds a hierarchy from child -> parents edges, where an
// edge means the child inherits every grant of the parent. Edges
// referencing unknown roles are rejected.
func NewHierarchy(edges map[Role][]Role) (*Hierarchy, error) {
	roles := Roles()
	index := make(map[Role]int, len(roles))
	for i, role := range roles {
		index[role] = i
	}
	parents := make([][]int, len(roles))
	for child, ps := range edges {
		ci, ok := index[child]
		if !ok {
			return nil, fmt.Errorf("authz: unknown role %q in hierarchy", child)
		}
		for _, parent := range ps {
			pi, ok := index[parent]
			if !ok {
				return nil, fmt.Errorf("authz: unknown parent role %q for %q", parent, child)
			}
			parents[ci] = append(parents[ci], pi)
		}
	}
	return &Hierarchy{roles: roles, index: index, parents: parents}, nil
}

// DefaultHierarchy returns the deployed inheritance chain:
// admin -> director -> team -> builder -> client.
func DefaultHierarchy() *Hierarchy {
	h, err := NewHierarchy(map[Role][]Role{
		RoleAdmin:    {RoleDirector},
		RoleDirector: {RoleTeam},
		RoleTeam:     {RoleBuilder},
		RoleBuilder:  {RoleClient},
	})
	if err != nil {
		panic(err)
	}
	return h
}

// InheritedRoles returns the ancestors of role in discovery order. The
// traversal keeps a visited set, so it terminates even if the configured
// graph accidentally contains a cycle. Unknown roles have no ancestors.
func (h *Hierarchy) InheritedRoles(role Role) []Role {
	start, ok := h.index[role]
	if !ok {
		return nil
	}
	visited := make([]bool, len(h.roles))
	visited[start] = true
	stack := make([]int, 0, len(h.roles))
	stack = append(stack, h.parents[start]...)
	var ancestors []Role
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		ancestors = append(ancestors, h.roles[cur])
		stack = append(stack, h.parents[cur]...)
	}
	return ancestors
}

// HasRole reports whether actual equals required or inherits from it.
// Inheritance runs child to parent only: a parent never passes a check
// for one of its children.
func (h *Hierarchy) HasRole(actual, required Role) bool {
	if actual == required {
		return actual.Valid()
	}
	for _, ancestor := range h.InheritedRoles(actual) {
		if ancestor == required {
			return true
		}
	}
	return false
}
