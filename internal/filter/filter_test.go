package filter_test

import (
	"reflect"
	"testing"

	"tooldo/internal/filter"
)

func TestStatusSingularVersusPlural(t *testing.T) {
	cases := []struct {
		statuses     []string
		wantStatus   string
		wantStatuses []string
	}{
		{nil, "", nil},
		{[]string{}, "", nil},
		{[]string{"DONE"}, "DONE", nil},
		{[]string{"TODO", "DONE"}, "", []string{"TODO", "DONE"}},
		{[]string{"TODO", "IN_PROGRESS", "DONE"}, "", []string{"TODO", "IN_PROGRESS", "DONE"}},
	}
	for _, tc := range cases {
		f := filter.Build(filter.State{Statuses: tc.statuses}, filter.Context{})
		if f.Status != tc.wantStatus {
			t.Fatalf("statuses=%v: status=%q want %q", tc.statuses, f.Status, tc.wantStatus)
		}
		if !reflect.DeepEqual(f.Statuses, tc.wantStatuses) {
			t.Fatalf("statuses=%v: plural=%v want %v", tc.statuses, f.Statuses, tc.wantStatuses)
		}
		if f.Status != "" && f.Statuses != nil {
			t.Fatalf("statuses=%v: both singular and plural emitted", tc.statuses)
		}
	}
}

func TestPriorityAllOmitted(t *testing.T) {
	if f := filter.Build(filter.State{Priority: "all"}, filter.Context{}); f.Priority != "" {
		t.Fatalf("priority 'all' should be omitted, got %q", f.Priority)
	}
	if f := filter.Build(filter.State{Priority: "URGENT"}, filter.Context{}); f.Priority != "URGENT" {
		t.Fatalf("priority = %q", f.Priority)
	}
}

func TestToggleFlagsIndependent(t *testing.T) {
	f := filter.Build(filter.State{ShowBlockedOnly: true, ShowLateOnly: true}, filter.Context{})
	if !f.IsBlocked || !f.IsLate {
		t.Fatalf("both toggles should survive: %+v", f)
	}
}

func TestAssignmentScope(t *testing.T) {
	ctx := filter.Context{CurrentUserID: "u-1"}
	f := filter.Build(filter.State{Scope: filter.ScopeAssignedToMe}, ctx)
	if f.ResponsibleID != "u-1" || f.CreatorID != "" {
		t.Fatalf("assigned-to-me: %+v", f)
	}
	f = filter.Build(filter.State{Scope: filter.ScopeCreatedByMe}, ctx)
	if f.CreatorID != "u-1" || f.ResponsibleID != "" {
		t.Fatalf("created-by-me: %+v", f)
	}
	f = filter.Build(filter.State{Scope: filter.ScopeMyTeams}, ctx)
	if f.CreatorID != "" || f.ResponsibleID != "" {
		t.Fatalf("my-teams sets neither: %+v", f)
	}
}

func TestForcedResponsibleWins(t *testing.T) {
	ctx := filter.Context{CurrentUserID: "u-1", ForceResponsibleID: "u-9"}
	for _, scope := range []filter.Scope{filter.ScopeAll, filter.ScopeAssignedToMe, filter.ScopeCreatedByMe, filter.ScopeMyTeams} {
		f := filter.Build(filter.State{Scope: scope}, ctx)
		if f.ResponsibleID != "u-9" {
			t.Fatalf("scope %s: responsible=%q want u-9", scope, f.ResponsibleID)
		}
		if f.CreatorID != "" {
			t.Fatalf("scope %s: creator filter must be dropped, got %q", scope, f.CreatorID)
		}
	}
}

func TestCompanyFallback(t *testing.T) {
	f := filter.Build(filter.State{CompanyID: "c-state"}, filter.Context{SelectedCompanyID: "c-ctx"})
	if f.CompanyID != "c-state" {
		t.Fatalf("explicit state company should win, got %q", f.CompanyID)
	}
	f = filter.Build(filter.State{}, filter.Context{SelectedCompanyID: "c-ctx"})
	if f.CompanyID != "c-ctx" {
		t.Fatalf("fallback company = %q", f.CompanyID)
	}
	f = filter.Build(filter.State{}, filter.Context{})
	if f.CompanyID != "" {
		t.Fatalf("no company should be emitted, got %q", f.CompanyID)
	}
}

func TestDateFilterTypeNeedsBound(t *testing.T) {
	f := filter.Build(filter.State{DateField: "estimated_end"}, filter.Context{})
	if f.DateFilterType != "" {
		t.Fatalf("date field without bounds is meaningless, got %q", f.DateFilterType)
	}
	f = filter.Build(filter.State{DateField: "estimated_end", DateFrom: "2024-01-01T00:00:00Z"}, filter.Context{})
	if f.DateFilterType != "estimated_end" || f.DateFrom == "" {
		t.Fatalf("single bound should carry the field: %+v", f)
	}
	f = filter.Build(filter.State{DateField: "created", DateTo: "2024-02-01T00:00:00Z"}, filter.Context{})
	if f.DateFilterType != "created" {
		t.Fatalf("to-only bound should carry the field: %+v", f)
	}
}

func TestSearchTrimmed(t *testing.T) {
	f := filter.Build(filter.State{Query: "  launch  ", Objective: "   "}, filter.Context{})
	if f.Query != "launch" {
		t.Fatalf("query = %q", f.Query)
	}
	if f.Objective != "" {
		t.Fatalf("blank objective should be omitted, got %q", f.Objective)
	}
}

func TestPaginationFromCaller(t *testing.T) {
	f := filter.Build(filter.State{Page: 7, PageSize: 99}, filter.Context{Page: 2, Limit: 25})
	if f.Page != 2 || f.Limit != 25 {
		t.Fatalf("pagination must come from the caller, got page=%d limit=%d", f.Page, f.Limit)
	}
}
