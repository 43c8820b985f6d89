package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"tooldo/internal/config"
	"tooldo/internal/domain"
	"tooldo/internal/events"
	"tooldo/internal/filter"
	"tooldo/internal/metrics"
	"tooldo/internal/period"
	"tooldo/internal/rbac"
	"tooldo/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// SyncPlans upserts the config plan catalog into storage.
func (e Engine) SyncPlans(ctx context.Context) error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for id, spec := range e.Config.Plans.Catalog {
		p := domain.Plan{ID: id, Name: spec.Name, MaxMembers: spec.MaxMembers, MaxOpenActions: spec.MaxOpenActions}
		if p.Name == "" {
			p.Name = id
		}
		if err := e.Repo.UpsertPlan(ctx, tx, p); err != nil {
			return fmt.Errorf("upsert plan %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// InitCompanyOptions bootstrap a company with its first master member.
type InitCompanyOptions struct {
	CompanyName string
	PlanID      string
	FirstName   string
	LastName    string
	Email       string
}

// InitCompany creates a company and its founding master member. It is the
// bootstrap path and is not permission-gated.
func (e Engine) InitCompany(ctx context.Context, opts InitCompanyOptions) (domain.Company, domain.Member, error) {
	if e.Config == nil {
		return domain.Company{}, domain.Member{}, errors.New("config not loaded")
	}
	if opts.CompanyName == "" {
		return domain.Company{}, domain.Member{}, errors.New("company name is required")
	}
	planID := opts.PlanID
	if planID == "" {
		planID = e.Config.Plans.Default
	}
	if _, ok := e.Config.Plans.Catalog[planID]; !ok {
		return domain.Company{}, domain.Member{}, fmt.Errorf("plan %s not in catalog", planID)
	}
	if err := e.SyncPlans(ctx); err != nil {
		return domain.Company{}, domain.Member{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	c := domain.Company{
		ID:        uuid.New().String(),
		Name:      opts.CompanyName,
		PlanID:    planID,
		Status:    "active",
		CreatedAt: now,
	}
	m := domain.Member{
		ID:        uuid.New().String(),
		CompanyID: c.ID,
		FirstName: opts.FirstName,
		LastName:  opts.LastName,
		Email:     opts.Email,
		Role:      rbac.RoleMaster,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, m, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCompany(ctx, tx, c); err != nil {
		return c, m, fmt.Errorf("insert company: %w", err)
	}
	if err := e.Repo.InsertMember(ctx, tx, m); err != nil {
		return c, m, fmt.Errorf("insert member: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.CompanyCreated, c.ID, "company", c.ID, m.ID, events.EventPayload{"name": c.Name, "plan": c.PlanID}); err != nil {
		return c, m, err
	}
	if err := e.Events.Append(ctx, tx, events.MemberAdded, c.ID, "member", m.ID, m.ID, events.EventPayload{"role": string(m.Role)}); err != nil {
		return c, m, err
	}
	if err := tx.Commit(); err != nil {
		return c, m, err
	}
	return c, m, nil
}

// CreateCompany adds another company, master only.
func (e Engine) CreateCompany(ctx context.Context, name, planID, actorID string) (domain.Company, error) {
	actor, err := e.Repo.GetMember(ctx, actorID)
	if err != nil {
		return domain.Company{}, err
	}
	if !rbac.Has(actor.Role, rbac.PermCreateCompany) {
		return domain.Company{}, rbac.ForbiddenError{Permission: rbac.PermCreateCompany}
	}
	if name == "" {
		return domain.Company{}, errors.New("company name is required")
	}
	if planID == "" {
		planID = e.Config.Plans.Default
	}
	if _, err := e.Repo.GetPlan(ctx, planID); err != nil {
		return domain.Company{}, fmt.Errorf("plan %s: %w", planID, err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	c := domain.Company{
		ID:        uuid.New().String(),
		Name:      name,
		PlanID:    planID,
		Status:    "active",
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCompany(ctx, tx, c); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, events.CompanyCreated, c.ID, "company", c.ID, actorID, events.EventPayload{"name": c.Name, "plan": c.PlanID}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

func (e Engine) UpdateCompany(ctx context.Context, id string, name, planID, status *string, actorID string) (domain.Company, error) {
	actor, err := e.Repo.GetMember(ctx, actorID)
	if err != nil {
		return domain.Company{}, err
	}
	if !rbac.Has(actor.Role, rbac.PermEditCompany) {
		return domain.Company{}, rbac.ForbiddenError{Permission: rbac.PermEditCompany}
	}
	if planID != nil && *planID != "" {
		if _, err := e.Repo.GetPlan(ctx, *planID); err != nil {
			return domain.Company{}, fmt.Errorf("plan %s: %w", *planID, err)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Company{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateCompany(ctx, tx, id, name, planID, status); err != nil {
		return domain.Company{}, err
	}
	if err := e.Events.Append(ctx, tx, events.CompanyUpdated, id, "company", id, actorID, events.EventPayload{}); err != nil {
		return domain.Company{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Company{}, err
	}
	return e.Repo.GetCompany(ctx, id)
}

func (e Engine) CreateTeam(ctx context.Context, companyID, name, actorID string) (domain.Team, error) {
	actor, err := e.Repo.GetMember(ctx, actorID)
	if err != nil {
		return domain.Team{}, err
	}
	if !rbac.Has(actor.Role, rbac.PermCreateTeam) {
		return domain.Team{}, rbac.ForbiddenError{Permission: rbac.PermCreateTeam}
	}
	if name == "" {
		return domain.Team{}, errors.New("team name is required")
	}
	if _, err := e.Repo.GetCompany(ctx, companyID); err != nil {
		return domain.Team{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Team{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		Name:      name,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTeam(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, events.TeamCreated, companyID, "team", t.ID, actorID, events.EventPayload{"name": t.Name}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// MemberCreateOptions are parameters for adding a member.
type MemberCreateOptions struct {
	CompanyID string
	TeamID    string
	FirstName string
	LastName  string
	Email     string
	Role      rbac.Role
	ActorID   string
}

func (e Engine) AddMember(ctx context.Context, opts MemberCreateOptions) (domain.Member, error) {
	actor, err := e.Repo.GetMember(ctx, opts.ActorID)
	if err != nil {
		return domain.Member{}, err
	}
	if !rbac.Has(actor.Role, rbac.PermManageMembers) {
		return domain.Member{}, rbac.ForbiddenError{Permission: rbac.PermManageMembers}
	}
	if !rbac.Valid(opts.Role) {
		return domain.Member{}, fmt.Errorf("unknown role %s", opts.Role)
	}
	if !rbac.CanManage(actor.Role, opts.Role) {
		return domain.Member{}, rbac.ForbiddenRoleError{Manager: actor.Role, Target: opts.Role}
	}
	if opts.FirstName == "" {
		return domain.Member{}, errors.New("first name is required")
	}
	company, err := e.Repo.GetCompany(ctx, opts.CompanyID)
	if err != nil {
		return domain.Member{}, err
	}
	if opts.TeamID != "" {
		team, err := e.Repo.GetTeam(ctx, opts.TeamID)
		if err != nil {
			return domain.Member{}, err
		}
		if team.CompanyID != opts.CompanyID {
			return domain.Member{}, fmt.Errorf("team %s not in company %s", opts.TeamID, opts.CompanyID)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	m := domain.Member{
		ID:        uuid.New().String(),
		CompanyID: opts.CompanyID,
		TeamID:    optionalString(opts.TeamID),
		FirstName: opts.FirstName,
		LastName:  opts.LastName,
		Email:     opts.Email,
		Role:      opts.Role,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if company.PlanID != "" {
		plan, err := e.Repo.GetPlan(ctx, company.PlanID)
		if err == nil {
			n, err := e.Repo.CountMembers(ctx, tx, opts.CompanyID)
			if err != nil {
				return m, err
			}
			if n >= plan.MaxMembers {
				return m, fmt.Errorf("plan %s allows at most %d members", plan.ID, plan.MaxMembers)
			}
		} else if !errors.Is(err, repo.ErrNotFound) {
			return m, err
		}
	}
	if err := e.Repo.InsertMember(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, events.MemberAdded, opts.CompanyID, "member", m.ID, opts.ActorID, events.EventPayload{"role": string(m.Role)}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// SetMemberRole changes a member's role. The actor must be allowed to manage
// both the member's current role and the new one.
func (e Engine) SetMemberRole(ctx context.Context, memberID string, role rbac.Role, actorID string) (domain.Member, error) {
	actor, err := e.Repo.GetMember(ctx, actorID)
	if err != nil {
		return domain.Member{}, err
	}
	if !rbac.Has(actor.Role, rbac.PermAssignRoles) {
		return domain.Member{}, rbac.ForbiddenError{Permission: rbac.PermAssignRoles}
	}
	if !rbac.Valid(role) {
		return domain.Member{}, fmt.Errorf("unknown role %s", role)
	}
	target, err := e.Repo.GetMember(ctx, memberID)
	if err != nil {
		return domain.Member{}, err
	}
	if !rbac.CanManage(actor.Role, target.Role) {
		return domain.Member{}, rbac.ForbiddenRoleError{Manager: actor.Role, Target: target.Role}
	}
	if !rbac.CanManage(actor.Role, role) {
		return domain.Member{}, rbac.ForbiddenRoleError{Manager: actor.Role, Target: role}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Member{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMember(ctx, tx, memberID, nil, &role, nil, nil, nil); err != nil {
		return domain.Member{}, err
	}
	if err := e.Events.Append(ctx, tx, events.MemberUpdated, target.CompanyID, "member", memberID, actorID, events.EventPayload{
		"from_role": string(target.Role),
		"to_role":   string(role),
	}); err != nil {
		return domain.Member{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Member{}, err
	}
	target.Role = role
	return target, nil
}

func (e Engine) SetMemberTeam(ctx context.Context, memberID, teamID, actorID string) (domain.Member, error) {
	actor, err := e.Repo.GetMember(ctx, actorID)
	if err != nil {
		return domain.Member{}, err
	}
	if !rbac.Has(actor.Role, rbac.PermManageMembers) {
		return domain.Member{}, rbac.ForbiddenError{Permission: rbac.PermManageMembers}
	}
	target, err := e.Repo.GetMember(ctx, memberID)
	if err != nil {
		return domain.Member{}, err
	}
	if !rbac.CanManage(actor.Role, target.Role) {
		return domain.Member{}, rbac.ForbiddenRoleError{Manager: actor.Role, Target: target.Role}
	}
	if teamID != "" {
		team, err := e.Repo.GetTeam(ctx, teamID)
		if err != nil {
			return domain.Member{}, err
		}
		if team.CompanyID != target.CompanyID {
			return domain.Member{}, fmt.Errorf("team %s not in company %s", teamID, target.CompanyID)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Member{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMember(ctx, tx, memberID, &teamID, nil, nil, nil, nil); err != nil {
		return domain.Member{}, err
	}
	if err := e.Events.Append(ctx, tx, events.MemberUpdated, target.CompanyID, "member", memberID, actorID, events.EventPayload{"team": teamID}); err != nil {
		return domain.Member{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Member{}, err
	}
	target.TeamID = optionalString(teamID)
	return target, nil
}

func (e Engine) RemoveMember(ctx context.Context, memberID, actorID string) error {
	actor, err := e.Repo.GetMember(ctx, actorID)
	if err != nil {
		return err
	}
	if !rbac.Has(actor.Role, rbac.PermManageMembers) {
		return rbac.ForbiddenError{Permission: rbac.PermManageMembers}
	}
	target, err := e.Repo.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	if !rbac.CanManage(actor.Role, target.Role) {
		return rbac.ForbiddenRoleError{Manager: actor.Role, Target: target.Role}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteMember(ctx, tx, memberID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.MemberRemoved, target.CompanyID, "member", memberID, actorID, events.EventPayload{"role": string(target.Role)}); err != nil {
		return err
	}
	return tx.Commit()
}

// ActionCreateOptions are parameters for creating an action.
type ActionCreateOptions struct {
	CompanyID      string
	TeamID         string
	Title          string
	Description    string
	Objective      string
	Priority       string
	EstimatedStart string
	EstimatedEnd   string
	ResponsibleID  string
	Checklist      []string
	ActorID        string
}

func (e Engine) CreateAction(ctx context.Context, opts ActionCreateOptions) (domain.Action, error) {
	actor, err := e.Repo.GetMember(ctx, opts.ActorID)
	if err != nil {
		return domain.Action{}, err
	}
	if !rbac.Has(actor.Role, rbac.PermCreateAction) {
		return domain.Action{}, rbac.ForbiddenError{Permission: rbac.PermCreateAction}
	}
	if opts.Title == "" {
		return domain.Action{}, errors.New("title is required")
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !validPriority(opts.Priority) {
		return domain.Action{}, fmt.Errorf("unknown priority %s", opts.Priority)
	}
	company, err := e.Repo.GetCompany(ctx, opts.CompanyID)
	if err != nil {
		return domain.Action{}, err
	}
	if opts.ResponsibleID != "" {
		resp, err := e.Repo.GetMember(ctx, opts.ResponsibleID)
		if err != nil {
			return domain.Action{}, fmt.Errorf("responsible: %w", err)
		}
		if resp.CompanyID != opts.CompanyID {
			return domain.Action{}, errors.New("responsible not in company")
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Action{
		ID:             uuid.New().String(),
		CompanyID:      opts.CompanyID,
		TeamID:         optionalString(opts.TeamID),
		Title:          opts.Title,
		Description:    opts.Description,
		Objective:      opts.Objective,
		Status:         domain.StatusTodo,
		Priority:       opts.Priority,
		EstimatedStart: optionalString(opts.EstimatedStart),
		EstimatedEnd:   optionalString(opts.EstimatedEnd),
		CreatorID:      opts.ActorID,
		ResponsibleID:  optionalString(opts.ResponsibleID),
		KanbanColumn:   domain.StatusTodo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if company.PlanID != "" {
		plan, err := e.Repo.GetPlan(ctx, company.PlanID)
		if err == nil {
			n, err := e.Repo.CountOpenActions(ctx, tx, opts.CompanyID)
			if err != nil {
				return a, err
			}
			if n >= plan.MaxOpenActions {
				return a, fmt.Errorf("plan %s allows at most %d open actions", plan.ID, plan.MaxOpenActions)
			}
		} else if !errors.Is(err, repo.ErrNotFound) {
			return a, err
		}
	}
	if err := e.Repo.InsertAction(ctx, tx, a); err != nil {
		return a, err
	}
	for i, title := range opts.Checklist {
		item := domain.ChecklistItem{
			ID:       uuid.New().String(),
			ActionID: a.ID,
			Position: i,
			Title:    title,
		}
		if err := e.Repo.InsertChecklistItem(ctx, tx, item); err != nil {
			return a, err
		}
		a.Checklist = append(a.Checklist, item)
	}
	if err := e.Events.Append(ctx, tx, events.ActionCreated, a.CompanyID, "action", a.ID, opts.ActorID, events.EventPayload{"title": a.Title, "status": a.Status}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// ActionUpdateOptions encapsulates allowed updates.
type ActionUpdateOptions struct {
	ID             string
	Title          *string
	Description    *string
	Objective      *string
	Status         string
	Priority       string
	Assign         *string
	EstimatedStart *string
	EstimatedEnd   *string
	Blocked        *bool
	BlockedReason  *string
	KanbanColumn   *string
	KanbanOrder    *int
	ActorID        string
}

func (e Engine) UpdateAction(ctx context.Context, opts ActionUpdateOptions) (domain.Action, error) {
	actor, err := e.Repo.GetMember(ctx, opts.ActorID)
	if err != nil {
		return domain.Action{}, err
	}
	a, err := e.Repo.GetAction(ctx, opts.ID)
	if err != nil {
		return a, err
	}
	if err := e.ensureCanEdit(actor, a); err != nil {
		return a, err
	}
	original := a

	if opts.Title != nil {
		if *opts.Title == "" {
			return a, errors.New("title is required")
		}
		a.Title = *opts.Title
	}
	if opts.Description != nil {
		a.Description = *opts.Description
	}
	if opts.Objective != nil {
		a.Objective = *opts.Objective
	}
	if opts.Priority != "" {
		if !validPriority(opts.Priority) {
			return a, fmt.Errorf("unknown priority %s", opts.Priority)
		}
		a.Priority = opts.Priority
	}
	if opts.Assign != nil {
		if !rbac.Has(actor.Role, rbac.PermAssignAction) {
			return a, rbac.ForbiddenError{Permission: rbac.PermAssignAction}
		}
		if *opts.Assign == "" {
			a.ResponsibleID = nil
		} else {
			resp, err := e.Repo.GetMember(ctx, *opts.Assign)
			if err != nil {
				return a, fmt.Errorf("responsible: %w", err)
			}
			if resp.CompanyID != a.CompanyID {
				return a, errors.New("responsible not in company")
			}
			a.ResponsibleID = opts.Assign
		}
	}
	if opts.EstimatedStart != nil {
		a.EstimatedStart = optionalString(*opts.EstimatedStart)
	}
	if opts.EstimatedEnd != nil {
		a.EstimatedEnd = optionalString(*opts.EstimatedEnd)
	}
	if opts.Blocked != nil {
		a.IsBlocked = *opts.Blocked
		if !a.IsBlocked {
			a.BlockedReason = ""
		}
	}
	if opts.BlockedReason != nil {
		a.BlockedReason = *opts.BlockedReason
	}
	if opts.KanbanColumn != nil {
		a.KanbanColumn = *opts.KanbanColumn
	}
	if opts.KanbanOrder != nil {
		a.KanbanOrder = *opts.KanbanOrder
	}

	completed := false
	reopened := false
	if opts.Status != "" && opts.Status != a.Status {
		if err := ensureActionTransition(a.Status, opts.Status); err != nil {
			return a, err
		}
		nowStr := e.now().UTC().Format(time.RFC3339)
		switch opts.Status {
		case domain.StatusInProgress:
			if a.ActualStart == nil {
				a.ActualStart = &nowStr
			}
		case domain.StatusDone:
			a.CompletedAt = &nowStr
			a.ActualEnd = &nowStr
			a.IsLate = completedLate(a.EstimatedEnd, e.now())
			completed = true
		case domain.StatusTodo:
			a.CompletedAt = nil
			a.ActualEnd = nil
			a.IsLate = false
			reopened = true
		}
		a.Status = opts.Status
		a.KanbanColumn = opts.Status
	}
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAction(ctx, tx, a); err != nil {
		return a, err
	}
	if completed {
		if err := e.Events.Append(ctx, tx, events.ActionCompleted, a.CompanyID, "action", a.ID, opts.ActorID, events.EventPayload{"late": a.IsLate}); err != nil {
			return a, err
		}
	}
	if reopened {
		if err := e.Events.Append(ctx, tx, events.ActionReopened, a.CompanyID, "action", a.ID, opts.ActorID, events.EventPayload{}); err != nil {
			return a, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.ActionUpdated, a.CompanyID, "action", a.ID, opts.ActorID, events.EventPayload{
		"from_status": original.Status,
		"to_status":   a.Status,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	a.Checklist, _ = e.Repo.ListChecklist(ctx, a.ID)
	return a, nil
}

func (e Engine) DeleteAction(ctx context.Context, id, actorID string) error {
	actor, err := e.Repo.GetMember(ctx, actorID)
	if err != nil {
		return err
	}
	if !rbac.Has(actor.Role, rbac.PermDeleteAction) {
		return rbac.ForbiddenError{Permission: rbac.PermDeleteAction}
	}
	a, err := e.Repo.GetAction(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAction(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ActionDeleted, a.CompanyID, "action", id, actorID, events.EventPayload{"title": a.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetAction(ctx context.Context, id string) (domain.Action, error) {
	a, err := e.Repo.GetAction(ctx, id)
	if err != nil {
		return a, err
	}
	a.Checklist, err = e.Repo.ListChecklist(ctx, id)
	return a, err
}

// ListActions applies the viewer's visibility rules on top of the requested
// filter state. Executors only ever see actions assigned to them.
func (e Engine) ListActions(ctx context.Context, state filter.State, viewerID string, page, limit int) ([]domain.Action, error) {
	viewer, err := e.Repo.GetMember(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	fctx := filter.Context{
		CurrentUserID:     viewerID,
		SelectedCompanyID: viewer.CompanyID,
		Page:              page,
		Limit:             limit,
	}
	if viewer.Role == rbac.RoleExecutor {
		fctx.ForceResponsibleID = viewerID
	}
	return e.Repo.ListActions(ctx, filter.Build(state, fctx))
}

func (e Engine) AddChecklistItem(ctx context.Context, actionID, title, actorID string) (domain.ChecklistItem, error) {
	actor, err := e.Repo.GetMember(ctx, actorID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	a, err := e.Repo.GetAction(ctx, actionID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := e.ensureCanEdit(actor, a); err != nil {
		return domain.ChecklistItem{}, err
	}
	if title == "" {
		return domain.ChecklistItem{}, errors.New("title is required")
	}
	existing, err := e.Repo.ListChecklist(ctx, actionID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	item := domain.ChecklistItem{
		ID:       uuid.New().String(),
		ActionID: actionID,
		Position: len(existing),
		Title:    title,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return item, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertChecklistItem(ctx, tx, item); err != nil {
		return item, err
	}
	if err := e.Events.Append(ctx, tx, events.ActionUpdated, a.CompanyID, "action", actionID, actorID, events.EventPayload{"checklist_added": title}); err != nil {
		return item, err
	}
	return item, tx.Commit()
}

func (e Engine) SetChecklistItemDone(ctx context.Context, actionID, itemID string, done bool, actorID string) error {
	actor, err := e.Repo.GetMember(ctx, actorID)
	if err != nil {
		return err
	}
	a, err := e.Repo.GetAction(ctx, actionID)
	if err != nil {
		return err
	}
	if err := e.ensureCanEdit(actor, a); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetChecklistItemDone(ctx, tx, itemID, done); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ActionUpdated, a.CompanyID, "action", actionID, actorID, events.EventPayload{"checklist_item": itemID, "done": done}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey mints a key for a member and stores only its hash. The
// plaintext is returned once and never persisted.
func (e Engine) CreateAPIKey(ctx context.Context, memberID, name, actorID string) (domain.APIKey, string, error) {
	actor, err := e.Repo.GetMember(ctx, actorID)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	if !rbac.Has(actor.Role, rbac.PermManageAPIKeys) && actorID != memberID {
		return domain.APIKey{}, "", rbac.ForbiddenError{Permission: rbac.PermManageAPIKeys}
	}
	member, err := e.Repo.GetMember(ctx, memberID)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	plaintext := "td_" + uuid.New().String()
	key := domain.APIKey{
		ID:        uuid.New().String(),
		MemberID:  member.ID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}

// Dashboard is the aggregate view for one company and period.
type Dashboard struct {
	Preset  period.Preset        `json:"preset"`
	From    string               `json:"from" format:"date-time"`
	To      string               `json:"to" format:"date-time"`
	Label   string               `json:"label"`
	Summary metrics.Summary      `json:"summary"`
	Team    []metrics.TeamMember `json:"team"`
	Trend   []metrics.TrendPoint `json:"trend"`
}

// ComputeDashboard resolves the preset against the engine clock, loads the
// current and previous period snapshots and aggregates them. Executor viewers
// only see their own actions.
func (e Engine) ComputeDashboard(ctx context.Context, presetRaw, companyID, viewerID string) (Dashboard, error) {
	viewer, err := e.Repo.GetMember(ctx, viewerID)
	if err != nil {
		return Dashboard{}, err
	}
	if !rbac.Has(viewer.Role, rbac.PermViewDashboard) {
		return Dashboard{}, rbac.ForbiddenError{Permission: rbac.PermViewDashboard}
	}
	if companyID == "" {
		companyID = viewer.CompanyID
	}
	if presetRaw == "" && e.Config != nil {
		presetRaw = e.Config.Dashboard.DefaultPreset
	}
	preset, err := period.Parse(presetRaw)
	if err != nil {
		return Dashboard{}, err
	}
	now := e.now()
	cur := period.Resolve(preset, now)
	prev := period.Previous(preset, now)

	responsibleID := ""
	if viewer.Role == rbac.RoleExecutor {
		responsibleID = viewerID
	}
	current, err := e.Repo.ActionsInPeriod(ctx, companyID, responsibleID, cur.From.UTC().Format(time.RFC3339), cur.To.UTC().Format(time.RFC3339))
	if err != nil {
		return Dashboard{}, err
	}
	previous, err := e.Repo.ActionsInPeriod(ctx, companyID, responsibleID, prev.From.UTC().Format(time.RFC3339), prev.To.UTC().Format(time.RFC3339))
	if err != nil {
		return Dashboard{}, err
	}
	members, err := e.Repo.ListMembers(ctx, companyID, "")
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		Preset:  preset,
		From:    cur.From.UTC().Format(time.RFC3339),
		To:      cur.To.UTC().Format(time.RFC3339),
		Label:   period.FormatRange(cur),
		Summary: metrics.Compute(current, previous),
		Team:    metrics.Roster(members, current, previous),
		Trend:   slices.Collect(metrics.DeliveriesByDay(current, cur)),
	}, nil
}

func (e Engine) ensureCanEdit(actor domain.Member, a domain.Action) error {
	if rbac.Has(actor.Role, rbac.PermEditAction) {
		return nil
	}
	if rbac.Has(actor.Role, rbac.PermEditOwnAction) {
		if a.CreatorID == actor.ID {
			return nil
		}
		if a.ResponsibleID != nil && *a.ResponsibleID == actor.ID {
			return nil
		}
	}
	return rbac.ForbiddenError{Permission: rbac.PermEditAction}
}

func ensureActionTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.StatusTodo:
		if newStatus == domain.StatusInProgress || newStatus == domain.StatusDone {
			return nil
		}
	case domain.StatusInProgress:
		if newStatus == domain.StatusDone || newStatus == domain.StatusTodo {
			return nil
		}
	case domain.StatusDone:
		if newStatus == domain.StatusTodo {
			return nil
		}
	}
	return fmt.Errorf("invalid action status transition %s -> %s", oldStatus, newStatus)
}

// completedLate reports whether completing now misses the estimate.
func completedLate(estimatedEnd *string, now time.Time) bool {
	if estimatedEnd == nil || *estimatedEnd == "" {
		return false
	}
	due, err := time.Parse(time.RFC3339, *estimatedEnd)
	if err != nil {
		return false
	}
	return now.After(due)
}

func validPriority(p string) bool {
	switch p {
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityUrgent:
		return true
	}
	return false
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
