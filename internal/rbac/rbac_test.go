package rbac_test

import (
	"testing"

	"tooldo/internal/rbac"
)

func TestRankOrdering(t *testing.T) {
	roles := rbac.Roles()
	for i := 1; i < len(roles); i++ {
		if rbac.Rank(roles[i]) <= rbac.Rank(roles[i-1]) {
			t.Fatalf("rank of %s (%d) not above %s (%d)", roles[i], rbac.Rank(roles[i]), roles[i-1], rbac.Rank(roles[i-1]))
		}
	}
	if rbac.Rank("") != 0 {
		t.Fatalf("empty role should rank 0, got %d", rbac.Rank(""))
	}
	if rbac.Rank("superuser") != 0 {
		t.Fatalf("unknown role should rank 0")
	}
}

func TestPermissionTable(t *testing.T) {
	// every role only has exactly its curated permissions
	for _, role := range rbac.Roles() {
		granted := map[rbac.Permission]bool{}
		for _, p := range rbac.PermissionsOf(role) {
			granted[p] = true
		}
		for _, p := range allPermissions() {
			if rbac.Has(role, p) != granted[p] {
				t.Fatalf("Has(%s,%s)=%v disagrees with PermissionsOf", role, p, rbac.Has(role, p))
			}
		}
	}
}

func TestPermissionsNotCumulative(t *testing.T) {
	// consultant reads reports but executor (higher rank) does not
	if !rbac.Has(rbac.RoleConsultant, rbac.PermViewReports) {
		t.Fatalf("consultant should view reports")
	}
	if rbac.Has(rbac.RoleExecutor, rbac.PermViewReports) {
		t.Fatalf("executor should not view reports")
	}
	if rbac.Has(rbac.RoleAdmin, rbac.PermCreateCompany) {
		t.Fatalf("only master creates companies")
	}
}

func TestUnknownRoleDenied(t *testing.T) {
	for _, role := range []rbac.Role{"", "root", "owner"} {
		if rbac.Valid(role) {
			t.Fatalf("role %q should not be valid", role)
		}
		if perms := rbac.PermissionsOf(role); len(perms) != 0 {
			t.Fatalf("role %q should have no permissions, got %v", role, perms)
		}
		if rbac.Has(role, rbac.PermViewDashboard) {
			t.Fatalf("role %q should be denied", role)
		}
	}
}

func TestQuantifiers(t *testing.T) {
	if rbac.HasAny(rbac.RoleMaster) {
		t.Fatalf("HasAny over empty list should be false")
	}
	if !rbac.HasAll(rbac.RoleConsultant) {
		t.Fatalf("HasAll over empty list should be true")
	}
	if !rbac.HasAny(rbac.RoleExecutor, rbac.PermViewReports, rbac.PermViewDashboard) {
		t.Fatalf("executor holds view:dashboard")
	}
	if rbac.HasAll(rbac.RoleExecutor, rbac.PermViewReports, rbac.PermViewDashboard) {
		t.Fatalf("executor does not hold view:reports")
	}
}

func TestHierarchyComparisons(t *testing.T) {
	if !rbac.AtLeast(rbac.RoleAdmin, rbac.RoleManager) {
		t.Fatalf("admin >= manager")
	}
	if !rbac.AtLeast(rbac.RoleAdmin, rbac.RoleAdmin) {
		t.Fatalf("admin >= admin")
	}
	if rbac.Above(rbac.RoleAdmin, rbac.RoleAdmin) {
		t.Fatalf("Above is strict")
	}
	if !rbac.Below(rbac.RoleConsultant, rbac.RoleExecutor) {
		t.Fatalf("consultant < executor")
	}
	if rbac.AtLeast("", rbac.RoleConsultant) {
		t.Fatalf("unknown role never reaches a required rank")
	}
}

func TestCanManageAllowList(t *testing.T) {
	cases := []struct {
		manager rbac.Role
		target  rbac.Role
		want    bool
	}{
		{rbac.RoleMaster, rbac.RoleMaster, true},
		{rbac.RoleMaster, rbac.RoleAdmin, true},
		{rbac.RoleMaster, rbac.RoleConsultant, true},
		{rbac.RoleAdmin, rbac.RoleAdmin, false},
		{rbac.RoleAdmin, rbac.RoleMaster, false},
		{rbac.RoleAdmin, rbac.RoleManager, true},
		{rbac.RoleAdmin, rbac.RoleExecutor, true},
		{rbac.RoleAdmin, rbac.RoleConsultant, true},
		{rbac.RoleManager, rbac.RoleExecutor, true},
		{rbac.RoleManager, rbac.RoleConsultant, false},
		{rbac.RoleManager, rbac.RoleManager, false},
		{rbac.RoleExecutor, rbac.RoleConsultant, false},
		{rbac.RoleExecutor, rbac.RoleExecutor, false},
		{rbac.RoleConsultant, rbac.RoleExecutor, false},
		{"", rbac.RoleExecutor, false},
	}
	for _, tc := range cases {
		if got := rbac.CanManage(tc.manager, tc.target); got != tc.want {
			t.Fatalf("CanManage(%s,%s)=%v want %v", tc.manager, tc.target, got, tc.want)
		}
	}
}

func allPermissions() []rbac.Permission {
	seen := map[rbac.Permission]struct{}{}
	var perms []rbac.Permission
	for _, role := range rbac.Roles() {
		for _, p := range rbac.PermissionsOf(role) {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	return perms
}
