package domain

import "tooldo/internal/rbac"

type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PlanID    string `json:"plan_id,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Team struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Member struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	TeamID    *string   `json:"team_id,omitempty"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email,omitempty"`
	Role      rbac.Role `json:"role"`
	CreatedAt string    `json:"created_at" format:"date-time"`
}

// Plan is a subscription tier limiting what a company may hold.
type Plan struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MaxMembers     int    `json:"max_members"`
	MaxOpenActions int    `json:"max_open_actions"`
}

type Action struct {
	ID             string          `json:"id"`
	CompanyID      string          `json:"company_id"`
	TeamID         *string         `json:"team_id,omitempty"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Objective      string          `json:"objective,omitempty"`
	Status         string          `json:"status" enum:"TODO,IN_PROGRESS,DONE"`
	Priority       string          `json:"priority" enum:"LOW,MEDIUM,HIGH,URGENT"`
	EstimatedStart *string         `json:"estimated_start,omitempty" format:"date-time"`
	EstimatedEnd   *string         `json:"estimated_end,omitempty" format:"date-time"`
	ActualStart    *string         `json:"actual_start,omitempty" format:"date-time"`
	ActualEnd      *string         `json:"actual_end,omitempty" format:"date-time"`
	IsLate         bool            `json:"is_late"`
	IsBlocked      bool            `json:"is_blocked"`
	BlockedReason  string          `json:"blocked_reason,omitempty"`
	CreatorID      string          `json:"creator_id"`
	ResponsibleID  *string         `json:"responsible_id,omitempty"`
	Checklist      []ChecklistItem `json:"checklist,omitempty"`
	KanbanColumn   string          `json:"kanban_column,omitempty"`
	KanbanOrder    int             `json:"kanban_order,omitempty"`
	CreatedAt      string          `json:"created_at" format:"date-time"`
	UpdatedAt      string          `json:"updated_at" format:"date-time"`
	CompletedAt    *string         `json:"completed_at,omitempty" format:"date-time"`
}

type ChecklistItem struct {
	ID       string `json:"id"`
	ActionID string `json:"action_id"`
	Position int    `json:"position"`
	Title    string `json:"title"`
	Done     bool   `json:"done"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	CompanyID  string `json:"company_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	MemberID  string `json:"member_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Action status values.
const (
	StatusTodo       = "TODO"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

// Action priority values.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)
