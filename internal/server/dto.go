package server

import (
	"tooldo/internal/domain"
	"tooldo/internal/rbac"
)

type CreateCompanyRequest struct {
	Name   string `json:"name" example:"Acme"`
	PlanID string `json:"plan_id,omitempty" example:"team"`
}

type UpdateCompanyRequest struct {
	Name   *string `json:"name,omitempty"`
	PlanID *string `json:"plan_id,omitempty"`
	Status *string `json:"status,omitempty" enum:"active,suspended"`
}

type CreateTeamRequest struct {
	Name string `json:"name"`
}

type CreateMemberRequest struct {
	TeamID    string `json:"team_id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty" format:"email"`
	Role      string `json:"role" enum:"consultant,executor,manager,admin,master"`
}

type UpdateMemberRequest struct {
	Role   *string `json:"role,omitempty" enum:"consultant,executor,manager,admin,master"`
	TeamID *string `json:"team_id,omitempty"`
}

type CreateActionRequest struct {
	TeamID         string   `json:"team_id,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Objective      string   `json:"objective,omitempty"`
	Priority       string   `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,URGENT"`
	EstimatedStart string   `json:"estimated_start,omitempty" format:"date-time"`
	EstimatedEnd   string   `json:"estimated_end,omitempty" format:"date-time"`
	ResponsibleID  string   `json:"responsible_id,omitempty"`
	Checklist      []string `json:"checklist,omitempty"`
}

type UpdateActionRequest struct {
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	Objective      *string `json:"objective,omitempty"`
	Status         *string `json:"status,omitempty" enum:"TODO,IN_PROGRESS,DONE"`
	Priority       *string `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,URGENT"`
	ResponsibleID  *string `json:"responsible_id,omitempty"`
	EstimatedStart *string `json:"estimated_start,omitempty" format:"date-time"`
	EstimatedEnd   *string `json:"estimated_end,omitempty" format:"date-time"`
	Blocked        *bool   `json:"blocked,omitempty"`
	BlockedReason  *string `json:"blocked_reason,omitempty"`
	KanbanColumn   *string `json:"kanban_column,omitempty"`
	KanbanOrder    *int    `json:"kanban_order,omitempty"`
}

type ChecklistItemRequest struct {
	Title string `json:"title"`
}

type SetChecklistDoneRequest struct {
	Done bool `json:"done"`
}

type CreateAPIKeyRequest struct {
	MemberID string `json:"member_id,omitempty"`
	Name     string `json:"name,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	MemberID  string `json:"member_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DevLoginRequest struct {
	MemberID string `json:"member_id"`
	Role     string `json:"role,omitempty" enum:"consultant,executor,manager,admin,master"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	MemberID    string   `json:"member_id"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source,omitempty"`
}

type paginatedActions struct {
	Items []domain.Action `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func permissionStrings(r rbac.Role) []string {
	perms := rbac.PermissionsOf(r)
	res := make([]string, 0, len(perms))
	for _, p := range perms {
		res = append(res, string(p))
	}
	return res
}

func nonNilSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
