// Package filter normalizes user-facing action filter state into the query
// object consumed by the repository and the list API.
package filter

import "strings"

// Scope is the assignment/ownership dimension used to narrow action queries.
type Scope string

const (
	ScopeAll          Scope = "all"
	ScopeAssignedToMe Scope = "assigned-to-me"
	ScopeCreatedByMe  Scope = "created-by-me"
	ScopeMyTeams      Scope = "my-teams"
)

// State is the user-adjustable filter criteria. Sort and view preferences
// survive reloads; scope and date bounds do not, so callers rebuild them.
type State struct {
	Statuses        []string
	Priority        string
	Scope           Scope
	ShowBlockedOnly bool
	ShowLateOnly    bool
	DateFrom        string
	DateTo          string
	DateField       string
	CompanyID       string
	TeamID          string
	Query           string
	Objective       string
	SortKey         string
	SortDesc        bool
	Page            int
	PageSize        int
}

// Context carries caller-side overrides that the user cannot change.
type Context struct {
	CurrentUserID      string
	ForceResponsibleID string
	SelectedCompanyID  string
	Page               int
	Limit              int
}

// Filters is the normalized query object. Zero-valued fields are omitted by
// consumers; Status and Statuses are mutually exclusive by construction.
type Filters struct {
	Status         string
	Statuses       []string
	Priority       string
	IsBlocked      bool
	IsLate         bool
	ResponsibleID  string
	CreatorID      string
	CompanyID      string
	TeamID         string
	DateFrom       string
	DateTo         string
	DateFilterType string
	Query          string
	Objective      string
	SortKey        string
	SortDesc       bool
	Page           int
	Limit          int
}

// Build converts filter state plus contextual overrides into Filters. It is
// pure and performs no validation of the date bounds; those pass through
// verbatim for the storage layer to interpret.
func Build(state State, ctx Context) Filters {
	f := Filters{
		SortKey:  state.SortKey,
		SortDesc: state.SortDesc,
		Page:     ctx.Page,
		Limit:    ctx.Limit,
	}

	switch len(state.Statuses) {
	case 0:
	case 1:
		f.Status = state.Statuses[0]
	default:
		f.Statuses = append([]string(nil), state.Statuses...)
	}

	if state.Priority != "" && state.Priority != "all" {
		f.Priority = state.Priority
	}

	f.IsBlocked = state.ShowBlockedOnly
	f.IsLate = state.ShowLateOnly

	switch state.Scope {
	case ScopeAssignedToMe:
		f.ResponsibleID = ctx.CurrentUserID
	case ScopeCreatedByMe:
		f.CreatorID = ctx.CurrentUserID
	}

	// A forced responsible wins over any user-chosen assignment filter.
	if ctx.ForceResponsibleID != "" {
		f.ResponsibleID = ctx.ForceResponsibleID
		f.CreatorID = ""
	}

	if state.CompanyID != "" {
		f.CompanyID = state.CompanyID
	} else if ctx.SelectedCompanyID != "" {
		f.CompanyID = ctx.SelectedCompanyID
	}

	if state.TeamID != "" {
		f.TeamID = state.TeamID
	}

	f.DateFrom = state.DateFrom
	f.DateTo = state.DateTo
	if state.DateFrom != "" || state.DateTo != "" {
		f.DateFilterType = state.DateField
	}

	f.Query = strings.TrimSpace(state.Query)
	f.Objective = strings.TrimSpace(state.Objective)

	return f
}
