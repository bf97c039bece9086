package repo

import (
	"context"
	"database/sql"
	"strings"

	"concord/internal/domain"
)

func (r Repo) InsertConflict(ctx context.Context, tx *sql.Tx, c domain.Conflict) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO conflicts(id,title,description,category,status,intensity,settings_json,dynamics_json,version,created_at,updated_at,resolved_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Title, c.Description, c.Category, c.Status, c.Intensity,
		jsonText(c.Settings, "{}"), jsonText(c.Dynamics, "{}"), c.Version, c.CreatedAt, c.UpdatedAt, nullableStringPtr(c.ResolvedAt))
	return err
}

func scanConflict(scan func(...any) error) (domain.Conflict, error) {
	var c domain.Conflict
	var resolvedAt sql.NullString
	var settingsJSON, dynamicsJSON string
	err := scan(&c.ID, &c.Title, &c.Description, &c.Category, &c.Status, &c.Intensity,
		&settingsJSON, &dynamicsJSON, &c.Version, &c.CreatedAt, &c.UpdatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.String
	}
	c.Settings = fromJSON[domain.Settings](settingsJSON)
	c.Dynamics = fromJSON[domain.GroupDynamics](dynamicsJSON)
	return c, nil
}

const conflictCols = `id,title,description,category,status,intensity,settings_json,dynamics_json,version,created_at,updated_at,resolved_at`

func (r Repo) GetConflict(ctx context.Context, id string) (domain.Conflict, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+conflictCols+` FROM conflicts WHERE id=?`, id)
	return scanConflict(row.Scan)
}

func (r Repo) GetConflictTx(ctx context.Context, tx *sql.Tx, id string) (domain.Conflict, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+conflictCols+` FROM conflicts WHERE id=?`, id)
	return scanConflict(row.Scan)
}

type ConflictFilters struct {
	Status          string
	Category        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListConflicts(ctx context.Context, f ConflictFilters) ([]domain.Conflict, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + conflictCols + ` FROM conflicts ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conflict
	for rows.Next() {
		c, err := scanConflict(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// UpdateConflictTx rewrites the mutable columns guarded by the version
// the caller loaded; a stale version surfaces as ErrConcurrencyConflict.
func (r Repo) UpdateConflictTx(ctx context.Context, tx *sql.Tx, c domain.Conflict) error {
	res, err := tx.ExecContext(ctx, `UPDATE conflicts SET title=?, description=?, category=?, status=?, intensity=?, settings_json=?, dynamics_json=?, version=version+1, updated_at=?, resolved_at=? WHERE id=? AND version=?`,
		c.Title, c.Description, c.Category, c.Status, c.Intensity,
		jsonText(c.Settings, "{}"), jsonText(c.Dynamics, "{}"), c.UpdatedAt, nullableStringPtr(c.ResolvedAt), c.ID, c.Version)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM conflicts WHERE id=?`, c.ID).Scan(&exists); err == sql.ErrNoRows {
			return ErrNotFound
		}
		return domain.ErrConcurrencyConflict
	}
	return nil
}

// LoadConflict assembles the full aggregate: participants, goals,
// agreements with their ballots, the open session and session history.
func (r Repo) LoadConflict(ctx context.Context, id string) (domain.Conflict, error) {
	c, err := r.GetConflict(ctx, id)
	if err != nil {
		return c, err
	}
	if c.Participants, err = r.ListParticipants(ctx, id); err != nil {
		return c, err
	}
	if c.ResolutionGoals, err = r.ListGoals(ctx, id); err != nil {
		return c, err
	}
	if c.Agreements, err = r.ListAgreements(ctx, id); err != nil {
		return c, err
	}
	sessions, err := r.ListSessions(ctx, id)
	if err != nil {
		return c, err
	}
	for i := range sessions {
		if sessions[i].Status == "open" {
			s := sessions[i]
			c.CurrentSession = &s
			continue
		}
		c.SessionHistory = append(c.SessionHistory, sessions[i])
	}
	return c, nil
}
