package repo

import (
	"context"
	"database/sql"

	"concord/internal/domain"
)

const messageCols = `id,conflict_id,session_id,sender_id,type,content,mentions_json,emotions_json,ts`

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO messages(`+messageCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ConflictID, m.SessionID, m.SenderID, m.Type, m.Content,
		jsonText(m.Mentions, "[]"), jsonText(m.Emotions, "{}"), m.TS)
	return err
}

// SetMessageEmotions attaches analysis results after the fact; runs
// outside any engine transaction since enrichment is asynchronous.
func (r Repo) SetMessageEmotions(ctx context.Context, id string, emotions map[string]float64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE messages SET emotions_json=? WHERE id=?`, jsonText(emotions, "{}"), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMessage(scan func(...any) error) (domain.Message, error) {
	var m domain.Message
	var mentionsJSON, emotionsJSON string
	err := scan(&m.ID, &m.ConflictID, &m.SessionID, &m.SenderID, &m.Type, &m.Content, &mentionsJSON, &emotionsJSON, &m.TS)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Mentions = fromJSON[[]string](mentionsJSON)
	m.Emotions = fromJSON[map[string]float64](emotionsJSON)
	return m, nil
}

func (r Repo) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+messageCols+` FROM messages WHERE id=?`, id)
	return scanMessage(row.Scan)
}

func (r Repo) ListSessionMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	query := `SELECT ` + messageCols + ` FROM messages WHERE session_id=? ORDER BY ts ASC, id ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

// CountSessionContributions tallies non-system messages per sender.
func (r Repo) CountSessionContributions(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT sender_id, count(*) FROM messages WHERE session_id=? AND type != 'system' GROUP BY sender_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var sender string
		var count int
		if err := rows.Scan(&sender, &count); err != nil {
			return nil, err
		}
		res[sender] = count
	}
	return res, nil
}
