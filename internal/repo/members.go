package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tooldo/internal/domain"
	"tooldo/internal/rbac"
)

func scanMember(scan func(dest ...any) error) (domain.Member, error) {
	var m domain.Member
	var teamID, email sql.NullString
	var role string
	err := scan(&m.ID, &m.CompanyID, &teamID, &m.FirstName, &m.LastName, &email, &role, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if teamID.Valid {
		m.TeamID = &teamID.String
	}
	if email.Valid {
		m.Email = email.String
	}
	m.Role = rbac.Role(role)
	return m, nil
}

func (r Repo) InsertMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO members(id,company_id,team_id,first_name,last_name,email,role,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.CompanyID, nullableStringPtr(m.TeamID), m.FirstName, m.LastName, nullable(m.Email), string(m.Role), m.CreatedAt)
	return err
}

func (r Repo) GetMember(ctx context.Context, id string) (domain.Member, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,company_id,team_id,first_name,last_name,email,role,created_at FROM members WHERE id=?`, id)
	return scanMember(row.Scan)
}

func (r Repo) GetMemberTx(ctx context.Context, tx *sql.Tx, id string) (domain.Member, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,company_id,team_id,first_name,last_name,email,role,created_at FROM members WHERE id=?`, id)
	return scanMember(row.Scan)
}

func (r Repo) ListMembers(ctx context.Context, companyID, teamID string) ([]domain.Member, error) {
	var clauses []string
	var args []any
	if companyID != "" {
		clauses = append(clauses, "company_id=?")
		args = append(args, companyID)
	}
	if teamID != "" {
		clauses = append(clauses, "team_id=?")
		args = append(args, teamID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,company_id,team_id,first_name,last_name,email,role,created_at FROM members `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		m, err := scanMember(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMember(ctx context.Context, tx *sql.Tx, id string, teamID *string, role *rbac.Role, firstName, lastName, email *string) error {
	var (
		fields []string
		args   []any
	)
	if teamID != nil {
		fields = append(fields, "team_id=?")
		args = append(args, nullable(*teamID))
	}
	if role != nil {
		fields = append(fields, "role=?")
		args = append(args, string(*role))
	}
	if firstName != nil {
		fields = append(fields, "first_name=?")
		args = append(args, *firstName)
	}
	if lastName != nil {
		fields = append(fields, "last_name=?")
		args = append(args, *lastName)
	}
	if email != nil {
		fields = append(fields, "email=?")
		args = append(args, nullable(*email))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE members SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteMember(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountMembers counts a company's members, used for plan limits.
func (r Repo) CountMembers(ctx context.Context, tx *sql.Tx, companyID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM members WHERE company_id=?`, companyID).Scan(&n)
	return n, err
}
