package repo

import (
	"context"
	"database/sql"

	"concord/internal/domain"
)

func (r Repo) InsertGoal(ctx context.Context, tx *sql.Tx, g domain.ResolutionGoal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO resolution_goals(id,conflict_id,title,description,priority,status,created_at) VALUES (?,?,?,?,?,?,?)`,
		g.ID, g.ConflictID, g.Title, g.Description, g.Priority, g.Status, g.CreatedAt)
	return err
}

func (r Repo) UpdateGoalStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE resolution_goals SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListGoals(ctx context.Context, conflictID string) ([]domain.ResolutionGoal, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,conflict_id,title,description,priority,status,created_at FROM resolution_goals WHERE conflict_id=? ORDER BY created_at ASC, id ASC`, conflictID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGoals(rows)
}

func (r Repo) ListGoalsTx(ctx context.Context, tx *sql.Tx, conflictID string) ([]domain.ResolutionGoal, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,conflict_id,title,description,priority,status,created_at FROM resolution_goals WHERE conflict_id=? ORDER BY created_at ASC, id ASC`, conflictID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGoals(rows)
}

func collectGoals(rows *sql.Rows) ([]domain.ResolutionGoal, error) {
	var res []domain.ResolutionGoal
	for rows.Next() {
		var g domain.ResolutionGoal
		if err := rows.Scan(&g.ID, &g.ConflictID, &g.Title, &g.Description, &g.Priority, &g.Status, &g.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, nil
}
