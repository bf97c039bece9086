package repo

import (
	"context"
	"database/sql"

	"concord/internal/domain"
)

const participantCols = `id,conflict_id,name,role,status,perspective_json,engagement,emotions_json,joined_at,last_active_at`

func (r Repo) InsertParticipant(ctx context.Context, tx *sql.Tx, p domain.Participant) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO participants(`+participantCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ConflictID, p.Name, p.Role, p.Status, jsonText(p.Perspective, "{}"),
		p.Engagement, jsonText(p.CurrentEmotions, "{}"), nullableStringPtr(p.JoinedAt), nullableStringPtr(p.LastActiveAt))
	return err
}

func (r Repo) UpdateParticipantTx(ctx context.Context, tx *sql.Tx, p domain.Participant) error {
	res, err := tx.ExecContext(ctx, `UPDATE participants SET name=?, role=?, status=?, perspective_json=?, engagement=?, emotions_json=?, joined_at=?, last_active_at=? WHERE id=?`,
		p.Name, p.Role, p.Status, jsonText(p.Perspective, "{}"), p.Engagement,
		jsonText(p.CurrentEmotions, "{}"), nullableStringPtr(p.JoinedAt), nullableStringPtr(p.LastActiveAt), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanParticipant(scan func(...any) error) (domain.Participant, error) {
	var p domain.Participant
	var perspectiveJSON, emotionsJSON string
	var joinedAt, lastActiveAt sql.NullString
	err := scan(&p.ID, &p.ConflictID, &p.Name, &p.Role, &p.Status, &perspectiveJSON, &p.Engagement, &emotionsJSON, &joinedAt, &lastActiveAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Perspective = fromJSON[domain.Perspective](perspectiveJSON)
	p.CurrentEmotions = fromJSON[map[string]float64](emotionsJSON)
	if joinedAt.Valid {
		p.JoinedAt = &joinedAt.String
	}
	if lastActiveAt.Valid {
		p.LastActiveAt = &lastActiveAt.String
	}
	return p, nil
}

func (r Repo) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+participantCols+` FROM participants WHERE id=?`, id)
	return scanParticipant(row.Scan)
}

func (r Repo) GetParticipantTx(ctx context.Context, tx *sql.Tx, id string) (domain.Participant, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+participantCols+` FROM participants WHERE id=?`, id)
	return scanParticipant(row.Scan)
}

func (r Repo) ListParticipants(ctx context.Context, conflictID string) ([]domain.Participant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+participantCols+` FROM participants WHERE conflict_id=? ORDER BY joined_at ASC, id ASC`, conflictID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func (r Repo) ListParticipantsTx(ctx context.Context, tx *sql.Tx, conflictID string) ([]domain.Participant, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+participantCols+` FROM participants WHERE conflict_id=? ORDER BY joined_at ASC, id ASC`, conflictID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

// CountPresentTx counts participants whose record still occupies a seat
// (anything but left).
func (r Repo) CountPresentTx(ctx context.Context, tx *sql.Tx, conflictID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM participants WHERE conflict_id=? AND status != 'left'`, conflictID).Scan(&n)
	return n, err
}
