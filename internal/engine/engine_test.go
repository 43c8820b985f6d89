package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tooldo/internal/config"
	"tooldo/internal/db"
	"tooldo/internal/domain"
	"tooldo/internal/engine"
	"tooldo/internal/filter"
	"tooldo/internal/migrate"
	"tooldo/internal/rbac"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Company domain.Company
	Master  domain.Member
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("acme")
	if mutate != nil {
		mutate(cfg)
	}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	company, master, err := eng.InitCompany(ctx, engine.InitCompanyOptions{
		CompanyName: "Acme",
		FirstName:   "Olga",
		LastName:    "Prime",
		Email:       "olga@acme.test",
	})
	if err != nil {
		t.Fatalf("init company: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Company: company, Master: master}
}

func (env testEnv) addMember(t *testing.T, role rbac.Role, email string) domain.Member {
	t.Helper()
	m, err := env.Engine.AddMember(env.Ctx, engine.MemberCreateOptions{
		CompanyID: env.Company.ID,
		FirstName: "Member",
		LastName:  string(role),
		Email:     email,
		Role:      role,
		ActorID:   env.Master.ID,
	})
	if err != nil {
		t.Fatalf("add %s member: %v", role, err)
	}
	return m
}

func TestActionStatusTransitions(t *testing.T) {
	env := newTestEnv(t, nil)
	a, err := env.Engine.CreateAction(env.Ctx, engine.ActionCreateOptions{
		CompanyID: env.Company.ID,
		Title:     "Prepare proposal",
		ActorID:   env.Master.ID,
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	a, err = env.Engine.UpdateAction(env.Ctx, engine.ActionUpdateOptions{ID: a.ID, Status: domain.StatusInProgress, ActorID: env.Master.ID})
	if err != nil || a.Status != domain.StatusInProgress {
		t.Fatalf("to IN_PROGRESS: %v", err)
	}
	if a.ActualStart == nil {
		t.Fatalf("actual start not stamped")
	}
	a, err = env.Engine.UpdateAction(env.Ctx, engine.ActionUpdateOptions{ID: a.ID, Status: domain.StatusDone, ActorID: env.Master.ID})
	if err != nil || a.Status != domain.StatusDone {
		t.Fatalf("to DONE: %v", err)
	}
	if a.CompletedAt == nil {
		t.Fatalf("completed_at not stamped")
	}
	// DONE only reopens back to TODO
	_, err = env.Engine.UpdateAction(env.Ctx, engine.ActionUpdateOptions{ID: a.ID, Status: domain.StatusInProgress, ActorID: env.Master.ID})
	if err == nil {
		t.Fatalf("expected transition error")
	}
	a, err = env.Engine.UpdateAction(env.Ctx, engine.ActionUpdateOptions{ID: a.ID, Status: domain.StatusTodo, ActorID: env.Master.ID})
	if err != nil || a.Status != domain.StatusTodo {
		t.Fatalf("reopen: %v", err)
	}
	if a.CompletedAt != nil || a.IsLate {
		t.Fatalf("reopen should clear completion: %+v", a)
	}
}

func TestCompletionLateness(t *testing.T) {
	env := newTestEnv(t, nil)
	past := "2024-03-19T00:00:00Z"
	future := "2024-03-25T00:00:00Z"

	late, err := env.Engine.CreateAction(env.Ctx, engine.ActionCreateOptions{
		CompanyID: env.Company.ID, Title: "overdue", EstimatedEnd: past, ActorID: env.Master.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	late, err = env.Engine.UpdateAction(env.Ctx, engine.ActionUpdateOptions{ID: late.ID, Status: domain.StatusDone, ActorID: env.Master.ID})
	if err != nil {
		t.Fatal(err)
	}
	if !late.IsLate {
		t.Fatalf("completion past the estimate should be late")
	}

	onTime, err := env.Engine.CreateAction(env.Ctx, engine.ActionCreateOptions{
		CompanyID: env.Company.ID, Title: "on time", EstimatedEnd: future, ActorID: env.Master.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	onTime, err = env.Engine.UpdateAction(env.Ctx, engine.ActionUpdateOptions{ID: onTime.ID, Status: domain.StatusDone, ActorID: env.Master.ID})
	if err != nil {
		t.Fatal(err)
	}
	if onTime.IsLate {
		t.Fatalf("completion before the estimate should not be late")
	}
}

func TestMemberManagementAllowList(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Plans.Default = "business"
	})
	admin := env.addMember(t, rbac.RoleAdmin, "admin@acme.test")
	manager := env.addMember(t, rbac.RoleManager, "manager@acme.test")
	executor := env.addMember(t, rbac.RoleExecutor, "exec@acme.test")

	// manager may add executors
	_, err := env.Engine.AddMember(env.Ctx, engine.MemberCreateOptions{
		CompanyID: env.Company.ID, FirstName: "New", Email: "exec2@acme.test", Role: rbac.RoleExecutor, ActorID: manager.ID,
	})
	if err != nil {
		t.Fatalf("manager adding executor: %v", err)
	}
	// manager may not add admins
	_, err = env.Engine.AddMember(env.Ctx, engine.MemberCreateOptions{
		CompanyID: env.Company.ID, FirstName: "New", Email: "admin2@acme.test", Role: rbac.RoleAdmin, ActorID: manager.ID,
	})
	var roleErr rbac.ForbiddenRoleError
	if !errors.As(err, &roleErr) {
		t.Fatalf("expected role error, got %v", err)
	}
	// admin may not promote anyone to master
	_, err = env.Engine.SetMemberRole(env.Ctx, executor.ID, rbac.RoleMaster, admin.ID)
	if !errors.As(err, &roleErr) {
		t.Fatalf("expected role error, got %v", err)
	}
	// admin may not touch another admin
	_, err = env.Engine.SetMemberRole(env.Ctx, admin.ID, rbac.RoleManager, admin.ID)
	if !errors.As(err, &roleErr) {
		t.Fatalf("expected role error, got %v", err)
	}
	// executor holds no member management permission at all
	var permErr rbac.ForbiddenError
	err = env.Engine.RemoveMember(env.Ctx, manager.ID, executor.ID)
	if !errors.As(err, &permErr) {
		t.Fatalf("expected permission error, got %v", err)
	}
	// master demotes an admin
	if _, err := env.Engine.SetMemberRole(env.Ctx, admin.ID, rbac.RoleConsultant, env.Master.ID); err != nil {
		t.Fatalf("master demoting admin: %v", err)
	}
}

func TestPlanLimits(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		spec := cfg.Plans.Catalog["free"]
		spec.MaxMembers = 2
		spec.MaxOpenActions = 1
		cfg.Plans.Catalog["free"] = spec
	})
	// the master is the first member; one seat left
	env.addMember(t, rbac.RoleExecutor, "only@acme.test")
	_, err := env.Engine.AddMember(env.Ctx, engine.MemberCreateOptions{
		CompanyID: env.Company.ID, FirstName: "Extra", Email: "extra@acme.test", Role: rbac.RoleExecutor, ActorID: env.Master.ID,
	})
	if err == nil {
		t.Fatalf("expected member limit error")
	}

	if _, err := env.Engine.CreateAction(env.Ctx, engine.ActionCreateOptions{
		CompanyID: env.Company.ID, Title: "first", ActorID: env.Master.ID,
	}); err != nil {
		t.Fatalf("first action: %v", err)
	}
	_, err = env.Engine.CreateAction(env.Ctx, engine.ActionCreateOptions{
		CompanyID: env.Company.ID, Title: "second", ActorID: env.Master.ID,
	})
	if err == nil {
		t.Fatalf("expected open action limit error")
	}
}

func TestExecutorSeesOnlyOwnActions(t *testing.T) {
	env := newTestEnv(t, nil)
	executor := env.addMember(t, rbac.RoleExecutor, "exec@acme.test")

	mine, err := env.Engine.CreateAction(env.Ctx, engine.ActionCreateOptions{
		CompanyID: env.Company.ID, Title: "mine", ResponsibleID: executor.ID, ActorID: env.Master.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateAction(env.Ctx, engine.ActionCreateOptions{
		CompanyID: env.Company.ID, Title: "someone else's", ActorID: env.Master.ID,
	}); err != nil {
		t.Fatal(err)
	}

	got, err := env.Engine.ListActions(env.Ctx, filter.State{}, executor.ID, 1, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != mine.ID {
		t.Fatalf("executor should only see assigned actions: %+v", got)
	}
	// even an explicit created-by-me scope cannot widen the view
	got, err = env.Engine.ListActions(env.Ctx, filter.State{Scope: filter.ScopeCreatedByMe}, executor.ID, 1, 50)
	if err != nil {
		t.Fatalf("list scoped: %v", err)
	}
	if len(got) != 1 || got[0].ID != mine.ID {
		t.Fatalf("forced assignment must win over scope: %+v", got)
	}

	all, err := env.Engine.ListActions(env.Ctx, filter.State{}, env.Master.ID, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("master sees everything, got %d", len(all))
	}
}

func TestDashboardComputation(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, title := range []string{"a", "b", "c"} {
		a, err := env.Engine.CreateAction(env.Ctx, engine.ActionCreateOptions{
			CompanyID: env.Company.ID, Title: title, ActorID: env.Master.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
		if title != "c" {
			if _, err := env.Engine.UpdateAction(env.Ctx, engine.ActionUpdateOptions{ID: a.ID, Status: domain.StatusDone, ActorID: env.Master.ID}); err != nil {
				t.Fatal(err)
			}
		}
	}
	d, err := env.Engine.ComputeDashboard(env.Ctx, "this-week", env.Company.ID, env.Master.ID)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Summary.TotalDeliveries != 2 {
		t.Fatalf("deliveries = %d", d.Summary.TotalDeliveries)
	}
	if d.Summary.DeliveriesPercentDelta != 0 {
		t.Fatalf("empty previous period must not produce infinity: %v", d.Summary.DeliveriesPercentDelta)
	}
	// this-week always spans seven day buckets
	if len(d.Trend) != 7 {
		t.Fatalf("trend buckets = %d", len(d.Trend))
	}
	total := 0
	for _, p := range d.Trend {
		total += p.Count
	}
	if total != 2 {
		t.Fatalf("trend total = %d", total)
	}
	if d.Label == "" {
		t.Fatalf("expected a formatted range label")
	}
}

func TestDashboardRequiresPermission(t *testing.T) {
	env := newTestEnv(t, nil)
	stranger := env.addMember(t, rbac.RoleConsultant, "consult@acme.test")
	if _, err := env.Engine.ComputeDashboard(env.Ctx, "this-week", env.Company.ID, stranger.ID); err != nil {
		t.Fatalf("consultant may view dashboards: %v", err)
	}
	_, err := env.Engine.ComputeDashboard(env.Ctx, "not-a-preset", env.Company.ID, env.Master.ID)
	if err == nil {
		t.Fatalf("expected preset parse error")
	}
}

func TestEntityIDsAreUniquePerCall(t *testing.T) {
	env := newTestEnv(t, nil)
	// the engine clock is frozen, so identical inputs created in the same
	// instant must still get distinct identifiers
	first, err := env.Engine.AddMember(env.Ctx, engine.MemberCreateOptions{
		CompanyID: env.Company.ID, FirstName: "Ghost", Role: rbac.RoleExecutor, ActorID: env.Master.ID,
	})
	if err != nil {
		t.Fatalf("first member without email: %v", err)
	}
	second, err := env.Engine.AddMember(env.Ctx, engine.MemberCreateOptions{
		CompanyID: env.Company.ID, FirstName: "Ghost", Role: rbac.RoleExecutor, ActorID: env.Master.ID,
	})
	if err != nil {
		t.Fatalf("second member without email: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("member IDs collided: %s", first.ID)
	}

	a, err := env.Engine.CreateAction(env.Ctx, engine.ActionCreateOptions{
		CompanyID: env.Company.ID, Title: "same title", ActorID: env.Master.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := env.Engine.CreateAction(env.Ctx, engine.ActionCreateOptions{
		CompanyID: env.Company.ID, Title: "same title", ActorID: env.Master.ID,
	})
	if err != nil {
		t.Fatalf("second action with duplicate title: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("action IDs collided: %s", a.ID)
	}
}

func TestLatestEventIDSpansAllCompanies(t *testing.T) {
	env := newTestEnv(t, nil)
	// InitCompany already appended events
	scoped, err := env.Engine.Repo.LatestEventID(env.Ctx, env.Company.ID)
	if err != nil {
		t.Fatalf("scoped latest: %v", err)
	}
	if scoped == 0 {
		t.Fatalf("expected events for the company")
	}
	global, err := env.Engine.Repo.LatestEventID(env.Ctx, "")
	if err != nil {
		t.Fatalf("global latest: %v", err)
	}
	if global != scoped {
		t.Fatalf("global cursor %d, scoped cursor %d", global, scoped)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t, nil)
	a, err := env.Engine.CreateAction(env.Ctx, engine.ActionCreateOptions{
		CompanyID: env.Company.ID, Title: "evented", ActorID: env.Master.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateAction(env.Ctx, engine.ActionUpdateOptions{ID: a.ID, Status: domain.StatusInProgress, ActorID: env.Master.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateAction(env.Ctx, engine.ActionUpdateOptions{ID: a.ID, Status: domain.StatusDone, ActorID: env.Master.ID}); err != nil {
		t.Fatal(err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id=?`, a.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	count := 0
	sawCompleted := false
	for rows.Next() {
		var typ string
		if err := rows.Scan(&typ); err != nil {
			t.Fatal(err)
		}
		if typ == "action.completed" {
			sawCompleted = true
		}
		count++
	}
	if count < 3 {
		t.Fatalf("expected multiple events, got %d", count)
	}
	if !sawCompleted {
		t.Fatalf("expected an action.completed event")
	}
}
