package auth

// Role constants, as printed on the station roster.
const (
	RoleDeskOfficer = "Desk Officer"
	RoleOCS         = "OCS"
	RoleAdmin       = "Admin"
)

// Permission constants
const (
	PermRegisterCase     = "register_case"
	PermCheckEligibility = "check_eligibility"
	PermAuthorizeRelease = "authorize_release"
	PermLockCase         = "lock_case"
	PermCloseCase        = "close_case"
	PermViewAudit        = "view_audit"
	PermManageScenarios  = "manage_scenarios"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleDeskOfficer: {
		PermRegisterCase, PermCheckEligibility, PermViewAudit,
		// Desk officers CANNOT release, lock or close
	},
	RoleOCS: {
		PermRegisterCase, PermCheckEligibility, PermViewAudit,
		PermAuthorizeRelease, PermLockCase, PermCloseCase,
	},
	RoleAdmin: {
		PermRegisterCase, PermCheckEligibility, PermViewAudit,
		PermAuthorizeRelease, PermLockCase, PermCloseCase,
		PermManageScenarios,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
