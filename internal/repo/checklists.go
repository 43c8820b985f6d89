package repo

import (
	"context"
	"database/sql"

	"tooldo/internal/domain"
)

func (r Repo) InsertChecklistItem(ctx context.Context, tx *sql.Tx, item domain.ChecklistItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO checklist_items(id,action_id,position,title,done) VALUES (?,?,?,?,?)`,
		item.ID, item.ActionID, item.Position, item.Title, item.Done)
	return err
}

func (r Repo) ListChecklist(ctx context.Context, actionID string) ([]domain.ChecklistItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,action_id,position,title,done FROM checklist_items WHERE action_id=? ORDER BY position ASC`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		var item domain.ChecklistItem
		if err := rows.Scan(&item.ID, &item.ActionID, &item.Position, &item.Title, &item.Done); err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

func (r Repo) ListChecklistTx(ctx context.Context, tx *sql.Tx, actionID string) ([]domain.ChecklistItem, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,action_id,position,title,done FROM checklist_items WHERE action_id=? ORDER BY position ASC`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		var item domain.ChecklistItem
		if err := rows.Scan(&item.ID, &item.ActionID, &item.Position, &item.Title, &item.Done); err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

func (r Repo) SetChecklistItemDone(ctx context.Context, tx *sql.Tx, id string, done bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE checklist_items SET done=? WHERE id=?`, done, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteChecklistItem(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
