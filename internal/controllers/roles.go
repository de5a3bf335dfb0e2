package controllers

const (
	RoleAdmin      = "admin"
	RoleFaculty    = "faculty"
	RoleSuperAdmin = "superadmin"
)

var allowedRoles = map[string]struct{}{
	RoleAdmin:      {},
	RoleFaculty:    {},
	RoleSuperAdmin: {},
}

func IsValidRole(role string) bool {
	_, ok := allowedRoles[role]
	return ok
}
