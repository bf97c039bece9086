package repo

import (
	"context"
	"database/sql"

	"concord/internal/domain"
)

const agreementCols = `id,conflict_id,session_id,title,terms_json,status,proposed_by,created_at,finalized_at`

func (r Repo) InsertAgreement(ctx context.Context, tx *sql.Tx, a domain.Agreement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO agreements(`+agreementCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ConflictID, nullableStringPtr(a.SessionID), a.Title, jsonText(a.Terms, "[]"),
		a.Status, a.ProposedBy, a.CreatedAt, nullableStringPtr(a.FinalizedAt))
	return err
}

func (r Repo) UpdateAgreementTx(ctx context.Context, tx *sql.Tx, a domain.Agreement) error {
	res, err := tx.ExecContext(ctx, `UPDATE agreements SET title=?, terms_json=?, status=?, finalized_at=? WHERE id=?`,
		a.Title, jsonText(a.Terms, "[]"), a.Status, nullableStringPtr(a.FinalizedAt), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAgreement(scan func(...any) error) (domain.Agreement, error) {
	var a domain.Agreement
	var sessionID, finalizedAt sql.NullString
	var termsJSON string
	err := scan(&a.ID, &a.ConflictID, &sessionID, &a.Title, &termsJSON, &a.Status, &a.ProposedBy, &a.CreatedAt, &finalizedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if sessionID.Valid {
		a.SessionID = &sessionID.String
	}
	if finalizedAt.Valid {
		a.FinalizedAt = &finalizedAt.String
	}
	a.Terms = fromJSON[[]string](termsJSON)
	return a, nil
}

func (r Repo) GetAgreement(ctx context.Context, id string) (domain.Agreement, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+agreementCols+` FROM agreements WHERE id=?`, id)
	a, err := scanAgreement(row.Scan)
	if err != nil {
		return a, err
	}
	return r.attachVotes(ctx, nil, a)
}

func (r Repo) GetAgreementTx(ctx context.Context, tx *sql.Tx, id string) (domain.Agreement, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+agreementCols+` FROM agreements WHERE id=?`, id)
	a, err := scanAgreement(row.Scan)
	if err != nil {
		return a, err
	}
	return r.attachVotes(ctx, tx, a)
}

func (r Repo) ListAgreements(ctx context.Context, conflictID string) ([]domain.Agreement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+agreementCols+` FROM agreements WHERE conflict_id=? ORDER BY created_at ASC, id ASC`, conflictID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	rows.Close()
	for i := range res {
		if res[i], err = r.attachVotes(ctx, nil, res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) ListAgreementsTx(ctx context.Context, tx *sql.Tx, conflictID string) ([]domain.Agreement, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+agreementCols+` FROM agreements WHERE conflict_id=? ORDER BY created_at ASC, id ASC`, conflictID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	rows.Close()
	for i := range res {
		if res[i], err = r.attachVotes(ctx, tx, res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) attachVotes(ctx context.Context, tx *sql.Tx, a domain.Agreement) (domain.Agreement, error) {
	query := `SELECT participant_id,vote FROM agreement_votes WHERE agreement_id=? ORDER BY ts ASC, participant_id ASC`
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, a.ID)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, a.ID)
	}
	if err != nil {
		return a, err
	}
	defer rows.Close()
	a.AgreedBy, a.ObjectedBy, a.Abstained = nil, nil, nil
	for rows.Next() {
		var pid, vote string
		if err := rows.Scan(&pid, &vote); err != nil {
			return a, err
		}
		switch vote {
		case "agree":
			a.AgreedBy = append(a.AgreedBy, pid)
		case "object":
			a.ObjectedBy = append(a.ObjectedBy, pid)
		case "abstain":
			a.Abstained = append(a.Abstained, pid)
		}
	}
	return a, nil
}

// ReplaceVoteTx records a participant's ballot, superseding any earlier
// vote on the same agreement.
func (r Repo) ReplaceVoteTx(ctx context.Context, tx *sql.Tx, agreementID, participantID, vote, ts string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM agreement_votes WHERE agreement_id=? AND participant_id=?`, agreementID, participantID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO agreement_votes(agreement_id,participant_id,vote,ts) VALUES (?,?,?,?)`,
		agreementID, participantID, vote, ts)
	return err
}

// AgreementStats reports how many agreements a conflict has reached per
// status, used for trust scoring.
func (r Repo) AgreementStats(ctx context.Context, conflictID string) (total, agreed int, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT count(*), COALESCE(SUM(CASE WHEN status IN ('agreed','implemented') THEN 1 ELSE 0 END),0) FROM agreements WHERE conflict_id=?`, conflictID).Scan(&total, &agreed)
	return total, agreed, err
}

func (r Repo) AgreementStatsTx(ctx context.Context, tx *sql.Tx, conflictID string) (total, agreed int, err error) {
	err = tx.QueryRowContext(ctx, `SELECT count(*), COALESCE(SUM(CASE WHEN status IN ('agreed','implemented') THEN 1 ELSE 0 END),0) FROM agreements WHERE conflict_id=?`, conflictID).Scan(&total, &agreed)
	return total, agreed, err
}
