package rbac

// Well-known resource:action pairs guarding the administrative surface
// itself. Seeded by the schema migrations together with a system
// super-admin role holding the *:* grant.
const (
	PermRolesRead        = "roles:read"
	PermRolesWrite       = "roles:write"
	PermRolesDelete      = "roles:delete"
	PermPermissionsRead  = "permissions:read"
	PermPermissionsWrite = "permissions:write"
	PermAssignmentsRead  = "user_roles:read"
	PermAssignmentsWrite = "user_roles:write"
	PermStatsRead        = "rbac:read"
)
