package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tooldo/internal/domain"
	"tooldo/internal/filter"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertCompany(ctx context.Context, tx *sql.Tx, c domain.Company) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO companies(id,name,plan_id,status,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.PlanID), c.Status, c.CreatedAt)
	return err
}

func (r Repo) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	var c domain.Company
	var planID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,plan_id,status,created_at FROM companies WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &planID, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if planID.Valid {
		c.PlanID = planID.String
	}
	return c, err
}

func (r Repo) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(plan_id,''),status,created_at FROM companies ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.PlanID, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateCompany(ctx context.Context, tx *sql.Tx, id string, name, planID, status *string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if planID != nil {
		fields = append(fields, "plan_id=?")
		args = append(args, nullable(*planID))
	}
	if status != nil {
		fields = append(fields, "status=?")
		args = append(args, *status)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE companies SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertTeam(ctx context.Context, tx *sql.Tx, t domain.Team) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO teams(id,company_id,name,created_at) VALUES (?,?,?,?)`,
		t.ID, t.CompanyID, t.Name, t.CreatedAt)
	return err
}

func (r Repo) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	var t domain.Team
	err := r.DB.QueryRowContext(ctx, `SELECT id,company_id,name,created_at FROM teams WHERE id=?`, id).
		Scan(&t.ID, &t.CompanyID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTeams(ctx context.Context, companyID string) ([]domain.Team, error) {
	query := `SELECT id,company_id,name,created_at FROM teams`
	var args []any
	if companyID != "" {
		query += ` WHERE company_id=?`
		args = append(args, companyID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Team
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpsertPlan(ctx context.Context, tx *sql.Tx, p domain.Plan) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO plans(id,name,max_members,max_open_actions) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, max_members=excluded.max_members, max_open_actions=excluded.max_open_actions`,
		p.ID, p.Name, p.MaxMembers, p.MaxOpenActions)
	return err
}

func (r Repo) GetPlan(ctx context.Context, id string) (domain.Plan, error) {
	var p domain.Plan
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,max_members,max_open_actions FROM plans WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.MaxMembers, &p.MaxOpenActions)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,max_members,max_open_actions FROM plans ORDER BY max_members ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Plan
	for rows.Next() {
		var p domain.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.MaxMembers, &p.MaxOpenActions); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

const actionColumns = `id,company_id,team_id,title,description,objective,status,priority,estimated_start,estimated_end,actual_start,actual_end,is_late,is_blocked,blocked_reason,creator_id,responsible_id,kanban_column,kanban_order,created_at,updated_at,completed_at`

func scanAction(scan func(dest ...any) error) (domain.Action, error) {
	var a domain.Action
	var teamID, estStart, estEnd, actStart, actEnd, responsibleID, completedAt sql.NullString
	err := scan(&a.ID, &a.CompanyID, &teamID, &a.Title, &a.Description, &a.Objective, &a.Status, &a.Priority,
		&estStart, &estEnd, &actStart, &actEnd, &a.IsLate, &a.IsBlocked, &a.BlockedReason,
		&a.CreatorID, &responsibleID, &a.KanbanColumn, &a.KanbanOrder, &a.CreatedAt, &a.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if teamID.Valid {
		a.TeamID = &teamID.String
	}
	if estStart.Valid {
		a.EstimatedStart = &estStart.String
	}
	if estEnd.Valid {
		a.EstimatedEnd = &estEnd.String
	}
	if actStart.Valid {
		a.ActualStart = &actStart.String
	}
	if actEnd.Valid {
		a.ActualEnd = &actEnd.String
	}
	if responsibleID.Valid {
		a.ResponsibleID = &responsibleID.String
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.String
	}
	return a, nil
}

func (r Repo) InsertAction(ctx context.Context, tx *sql.Tx, a domain.Action) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO actions(`+actionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.CompanyID, nullableStringPtr(a.TeamID), a.Title, a.Description, a.Objective, a.Status, a.Priority,
		nullableStringPtr(a.EstimatedStart), nullableStringPtr(a.EstimatedEnd), nullableStringPtr(a.ActualStart), nullableStringPtr(a.ActualEnd),
		a.IsLate, a.IsBlocked, a.BlockedReason, a.CreatorID, nullableStringPtr(a.ResponsibleID),
		a.KanbanColumn, a.KanbanOrder, a.CreatedAt, a.UpdatedAt, nullableStringPtr(a.CompletedAt))
	return err
}

func (r Repo) UpdateAction(ctx context.Context, tx *sql.Tx, a domain.Action) error {
	_, err := tx.ExecContext(ctx, `UPDATE actions SET team_id=?, title=?, description=?, objective=?, status=?, priority=?,
estimated_start=?, estimated_end=?, actual_start=?, actual_end=?, is_late=?, is_blocked=?, blocked_reason=?,
responsible_id=?, kanban_column=?, kanban_order=?, updated_at=?, completed_at=? WHERE id=?`,
		nullableStringPtr(a.TeamID), a.Title, a.Description, a.Objective, a.Status, a.Priority,
		nullableStringPtr(a.EstimatedStart), nullableStringPtr(a.EstimatedEnd), nullableStringPtr(a.ActualStart), nullableStringPtr(a.ActualEnd),
		a.IsLate, a.IsBlocked, a.BlockedReason, nullableStringPtr(a.ResponsibleID),
		a.KanbanColumn, a.KanbanOrder, a.UpdatedAt, nullableStringPtr(a.CompletedAt), a.ID)
	return err
}

func (r Repo) GetAction(ctx context.Context, id string) (domain.Action, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id=?`, id)
	return scanAction(row.Scan)
}

func (r Repo) GetActionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Action, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id=?`, id)
	return scanAction(row.Scan)
}

func (r Repo) DeleteAction(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// dateColumns maps the filter date field names to actual columns. Anything
// else falls back to created_at.
var dateColumns = map[string]string{
	"created":         "created_at",
	"updated":         "updated_at",
	"estimated_start": "estimated_start",
	"estimated_end":   "estimated_end",
	"completed":       "completed_at",
}

var sortColumns = map[string]string{
	"created_at":    "created_at",
	"updated_at":    "updated_at",
	"title":         "title",
	"priority":      "priority",
	"estimated_end": "estimated_end",
	"kanban_order":  "kanban_order",
}

// ListActions runs the normalized filter object against storage.
func (r Repo) ListActions(ctx context.Context, f filter.Filters) ([]domain.Action, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if len(f.Statuses) > 0 {
		placeholders := strings.Repeat("?,", len(f.Statuses))
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", placeholders[:len(placeholders)-1]))
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.IsBlocked {
		clauses = append(clauses, "is_blocked=1")
	}
	if f.IsLate {
		clauses = append(clauses, "is_late=1")
	}
	if f.ResponsibleID != "" {
		clauses = append(clauses, "responsible_id=?")
		args = append(args, f.ResponsibleID)
	}
	if f.CreatorID != "" {
		clauses = append(clauses, "creator_id=?")
		args = append(args, f.CreatorID)
	}
	if f.CompanyID != "" {
		clauses = append(clauses, "company_id=?")
		args = append(args, f.CompanyID)
	}
	if f.TeamID != "" {
		clauses = append(clauses, "team_id=?")
		args = append(args, f.TeamID)
	}
	if f.DateFrom != "" || f.DateTo != "" {
		col, ok := dateColumns[f.DateFilterType]
		if !ok {
			col = "created_at"
		}
		if f.DateFrom != "" {
			clauses = append(clauses, col+">=?")
			args = append(args, f.DateFrom)
		}
		if f.DateTo != "" {
			clauses = append(clauses, col+"<=?")
			args = append(args, f.DateTo)
		}
	}
	if f.Query != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		like := "%" + f.Query + "%"
		args = append(args, like, like)
	}
	if f.Objective != "" {
		clauses = append(clauses, "objective LIKE ?")
		args = append(args, "%"+f.Objective+"%")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	sortCol, ok := sortColumns[f.SortKey]
	if !ok {
		sortCol = "created_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM actions %s ORDER BY %s %s, id %s`, actionColumns, where, sortCol, dir, dir)
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		offset := 0
		if f.Page > 1 {
			offset = (f.Page - 1) * f.Limit
		}
		args = append(args, f.Limit, offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Action
	for rows.Next() {
		a, err := scanAction(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ActionsInPeriod returns a company's actions created or completed inside the
// window, the snapshot the dashboard aggregates over.
func (r Repo) ActionsInPeriod(ctx context.Context, companyID, responsibleID, from, to string) ([]domain.Action, error) {
	clauses := []string{"company_id=?", "((created_at>=? AND created_at<=?) OR (completed_at IS NOT NULL AND completed_at>=? AND completed_at<=?))"}
	args := []any{companyID, from, to, from, to}
	if responsibleID != "" {
		clauses = append(clauses, "responsible_id=?")
		args = append(args, responsibleID)
	}
	query := fmt.Sprintf(`SELECT %s FROM actions WHERE %s ORDER BY created_at ASC, id ASC`, actionColumns, strings.Join(clauses, " AND "))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Action{}
	for rows.Next() {
		a, err := scanAction(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountOpenActions counts a company's not-done actions, used for plan limits.
func (r Repo) CountOpenActions(ctx context.Context, tx *sql.Tx, companyID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM actions WHERE company_id=? AND status != ?`, companyID, domain.StatusDone).Scan(&n)
	return n, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
