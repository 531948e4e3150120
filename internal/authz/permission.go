package authz

// Permission is a named capability token, granted to roles via the
// grant table and independent of any single route.
type Permission string

// Closed permission set.
const (
	PermManageUsers    Permission = "manage:users"
	PermManageRoles    Permission = "manage:roles"
	PermManagePolicies Permission = "manage:policies"
	PermViewAudit      Permission = "view:audit"
	PermManageProjects Permission = "manage:projects"
	PermViewProjects   Permission = "view:projects"
	PermManageDocs     Permission = "manage:documents"
	PermViewDocs       Permission = "view:documents"
	PermManageTasks    Permission = "manage:tasks"
	PermViewTasks      Permission = "view:tasks"
)

// Permissions lists every capability token known to the platform.
func Permissions() []Permission {
	return []Permission{
		PermManageUsers,
		PermManageRoles,
		PermManagePolicies,
		PermViewAudit,
		PermManageProjects,
		PermViewProjects,
		PermManageDocs,
		PermViewDocs,
		PermManageTasks,
		PermViewTasks,
	}
}

// Valid reports whether the permission belongs to the closed set.
func (p Permission) Valid() bool {
	switch p {
	case PermManageUsers, PermManageRoles, PermManagePolicies, PermViewAudit,
		PermManageProjects, PermViewProjects, PermManageDocs, PermViewDocs,
		PermManageTasks, PermViewTasks:
		return true
	}
	return false
}

func (p Permission) String() string {
	return string(p)
}

// DefaultGrants returns the direct role -> permission grant table.
// Inheritance is not baked in here; the resolver unions grants along
// the hierarchy at construction time.
func DefaultGrants() map[Role][]Permission {
	return map[Role][]Permission{
		RoleAdmin:    {PermManageUsers, PermManageRoles, PermManagePolicies},
		RoleDirector: {PermManageProjects, PermViewAudit},
		RoleTeam:     {PermManageTasks},
		RoleBuilder:  {PermManageDocs, PermViewTasks},
		RoleClient:   {PermViewProjects, PermViewDocs},
	}
}
