package rbac

import "fmt"

// Role is a named access level. The enumeration is closed; anything else is
// treated as anonymous (rank 0, no permissions).
type Role string

const (
	RoleConsultant Role = "consultant"
	RoleExecutor   Role = "executor"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleMaster     Role = "master"
)

// Permission is an opaque capability tag, namespaced action:resource.
type Permission string

const (
	PermCreateCompany Permission = "create:company"
	PermEditCompany   Permission = "edit:company"
	PermDeleteCompany Permission = "delete:company"
	PermManagePlans   Permission = "manage:plans"
	PermCreateTeam    Permission = "create:team"
	PermEditTeam      Permission = "edit:team"
	PermDeleteTeam    Permission = "delete:team"
	PermManageMembers Permission = "manage:members"
	PermAssignRoles   Permission = "assign:roles"
	PermCreateAction  Permission = "create:action"
	PermEditAction    Permission = "edit:action"
	PermDeleteAction  Permission = "delete:action"
	PermAssignAction  Permission = "assign:action"
	PermEditOwnAction Permission = "edit:own-action"
	PermViewDashboard Permission = "view:dashboard"
	PermViewReports   Permission = "view:reports"
	PermManageAPIKeys Permission = "manage:apikeys"
)

// ranks gives the hierarchy ordinal used by the comparison helpers. A higher
// rank does not imply a superset of permissions; the grants table below is
// curated per role.
var ranks = map[Role]int{
	RoleConsultant: 1,
	RoleExecutor:   2,
	RoleManager:    3,
	RoleAdmin:      4,
	RoleMaster:     5,
}

var grants = map[Role]map[Permission]struct{}{
	RoleConsultant: permSet(
		PermViewDashboard,
		PermViewReports,
	),
	RoleExecutor: permSet(
		PermCreateAction,
		PermEditOwnAction,
		PermViewDashboard,
	),
	RoleManager: permSet(
		PermEditTeam,
		PermManageMembers,
		PermCreateAction,
		PermEditAction,
		PermAssignAction,
		PermEditOwnAction,
		PermViewDashboard,
		PermViewReports,
	),
	RoleAdmin: permSet(
		PermEditCompany,
		PermCreateTeam,
		PermEditTeam,
		PermDeleteTeam,
		PermManageMembers,
		PermAssignRoles,
		PermCreateAction,
		PermEditAction,
		PermDeleteAction,
		PermAssignAction,
		PermEditOwnAction,
		PermViewDashboard,
		PermViewReports,
	),
	RoleMaster: permSet(
		PermCreateCompany,
		PermEditCompany,
		PermDeleteCompany,
		PermManagePlans,
		PermCreateTeam,
		PermEditTeam,
		PermDeleteTeam,
		PermManageMembers,
		PermAssignRoles,
		PermCreateAction,
		PermEditAction,
		PermDeleteAction,
		PermAssignAction,
		PermEditOwnAction,
		PermViewDashboard,
		PermViewReports,
		PermManageAPIKeys,
	),
}

// manageable is the explicit management allow-list. It is intentionally not
// derived from rank comparison: admins do not manage other admins or masters,
// and managers only manage executors.
var manageable = map[Role]map[Role]struct{}{
	RoleMaster: {
		RoleConsultant: {},
		RoleExecutor:   {},
		RoleManager:    {},
		RoleAdmin:      {},
		RoleMaster:     {},
	},
	RoleAdmin: {
		RoleConsultant: {},
		RoleExecutor:   {},
		RoleManager:    {},
	},
	RoleManager: {
		RoleExecutor: {},
	},
}

func permSet(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Roles returns the closed enumeration in ascending rank order.
func Roles() []Role {
	return []Role{RoleConsultant, RoleExecutor, RoleManager, RoleAdmin, RoleMaster}
}

// Valid reports whether r is one of the known roles.
func Valid(r Role) bool {
	_, ok := ranks[r]
	return ok
}

// Rank returns the hierarchy ordinal for r, or 0 for an unknown role.
func Rank(r Role) int {
	return ranks[r]
}

// PermissionsOf returns a copy of the permission set granted to r. Unknown
// roles get nothing.
func PermissionsOf(r Role) []Permission {
	set, ok := grants[r]
	if !ok {
		return nil
	}
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	return perms
}

// Has reports whether role r is granted permission p. False for unknown roles.
func Has(r Role, p Permission) bool {
	set, ok := grants[r]
	if !ok {
		return false
	}
	_, ok = set[p]
	return ok
}

// HasAny reports whether r holds at least one of perms. Vacuously false for
// an empty list.
func HasAny(r Role, perms ...Permission) bool {
	for _, p := range perms {
		if Has(r, p) {
			return true
		}
	}
	return false
}

// HasAll reports whether r holds every permission in perms. Vacuously true
// for an empty list.
func HasAll(r Role, perms ...Permission) bool {
	for _, p := range perms {
		if !Has(r, p) {
			return false
		}
	}
	return true
}

// AtLeast reports whether r ranks at or above required.
func AtLeast(r, required Role) bool {
	return Rank(r) >= Rank(required)
}

// Above reports whether r ranks strictly above other.
func Above(r, other Role) bool {
	return Rank(r) > Rank(other)
}

// Below reports whether r ranks strictly below other.
func Below(r, other Role) bool {
	return Rank(r) < Rank(other)
}

// CanManage reports whether a member with role manager may administer a
// member with role target. The relation is the fixed allow-list above, not a
// rank inequality.
func CanManage(manager, target Role) bool {
	targets, ok := manageable[manager]
	if !ok {
		return false
	}
	_, ok = targets[target]
	return ok
}

// ForbiddenError indicates a missing permission.
type ForbiddenError struct {
	Permission Permission
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// ForbiddenRoleError indicates a management attempt outside the allow-list.
type ForbiddenRoleError struct {
	Manager Role
	Target  Role
}

func (e ForbiddenRoleError) Error() string {
	return fmt.Sprintf("role %s cannot manage role %s", e.Manager, e.Target)
}
