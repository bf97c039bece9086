package repo

import (
	"context"
	"database/sql"

	"concord/internal/domain"
)

const sessionCols = `id,conflict_id,session_number,status,start_time,end_time,planned_duration,actual_duration,facilitator_id,attendees_json,agenda_json,current_phase,phase_results_json,metrics_json,satisfaction_json,effectiveness`

func (r Repo) InsertSession(ctx context.Context, tx *sql.Tx, s domain.Session) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sessions(`+sessionCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ConflictID, s.SessionNumber, s.Status, s.StartTime, nullableStringPtr(s.EndTime),
		s.PlannedDuration, nullableIntPtr(s.ActualDuration), nullableStringPtr(s.FacilitatorID),
		jsonText(s.Attendees, "[]"), jsonText(s.Agenda, "[]"), s.CurrentPhase,
		jsonText(s.PhaseResults, "[]"), jsonText(s.Metrics, "{}"), jsonText(s.Satisfaction, "{}"), s.Effectiveness)
	return err
}

func (r Repo) UpdateSessionTx(ctx context.Context, tx *sql.Tx, s domain.Session) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET status=?, end_time=?, actual_duration=?, current_phase=?, phase_results_json=?, metrics_json=?, satisfaction_json=?, effectiveness=? WHERE id=?`,
		s.Status, nullableStringPtr(s.EndTime), nullableIntPtr(s.ActualDuration), s.CurrentPhase,
		jsonText(s.PhaseResults, "[]"), jsonText(s.Metrics, "{}"), jsonText(s.Satisfaction, "{}"), s.Effectiveness, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSession(scan func(...any) error) (domain.Session, error) {
	var s domain.Session
	var endTime, facilitatorID sql.NullString
	var actualDuration sql.NullInt64
	var attendeesJSON, agendaJSON, resultsJSON, metricsJSON, satisfactionJSON string
	err := scan(&s.ID, &s.ConflictID, &s.SessionNumber, &s.Status, &s.StartTime, &endTime,
		&s.PlannedDuration, &actualDuration, &facilitatorID, &attendeesJSON, &agendaJSON,
		&s.CurrentPhase, &resultsJSON, &metricsJSON, &satisfactionJSON, &s.Effectiveness)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if endTime.Valid {
		s.EndTime = &endTime.String
	}
	if facilitatorID.Valid {
		s.FacilitatorID = &facilitatorID.String
	}
	if actualDuration.Valid {
		d := int(actualDuration.Int64)
		s.ActualDuration = &d
	}
	s.Attendees = fromJSON[[]string](attendeesJSON)
	s.Agenda = fromJSON[[]domain.Phase](agendaJSON)
	s.PhaseResults = fromJSON[[]domain.PhaseResult](resultsJSON)
	s.Metrics = fromJSON[domain.ParticipationMetrics](metricsJSON)
	s.Satisfaction = fromJSON[map[string]int](satisfactionJSON)
	return s, nil
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id=?`, id)
	return scanSession(row.Scan)
}

// OpenSession returns the single open session for a conflict, or
// ErrNotFound when none is open.
func (r Repo) OpenSession(ctx context.Context, conflictID string) (domain.Session, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE conflict_id=? AND status='open'`, conflictID)
	return scanSession(row.Scan)
}

func (r Repo) OpenSessionTx(ctx context.Context, tx *sql.Tx, conflictID string) (domain.Session, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE conflict_id=? AND status='open'`, conflictID)
	return scanSession(row.Scan)
}

func (r Repo) ListSessions(ctx context.Context, conflictID string) ([]domain.Session, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE conflict_id=? ORDER BY session_number ASC`, conflictID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (r Repo) CountSessionsTx(ctx context.Context, tx *sql.Tx, conflictID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM sessions WHERE conflict_id=?`, conflictID).Scan(&n)
	return n, err
}

func (r Repo) AppendJourneyTx(ctx context.Context, tx *sql.Tx, sessionID string, m domain.EmotionalMoment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO session_journey(session_id,ts,participant_id,emotion,intensity) VALUES (?,?,?,?,?)`,
		sessionID, m.TS, m.ParticipantID, m.Emotion, m.Intensity)
	return err
}

func (r Repo) ListJourney(ctx context.Context, sessionID string) ([]domain.EmotionalMoment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT ts,participant_id,emotion,intensity FROM session_journey WHERE session_id=? ORDER BY ts ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJourney(rows)
}

func (r Repo) ListJourneyTx(ctx context.Context, tx *sql.Tx, sessionID string) ([]domain.EmotionalMoment, error) {
	rows, err := tx.QueryContext(ctx, `SELECT ts,participant_id,emotion,intensity FROM session_journey WHERE session_id=? ORDER BY ts ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJourney(rows)
}

func collectJourney(rows *sql.Rows) ([]domain.EmotionalMoment, error) {
	var res []domain.EmotionalMoment
	for rows.Next() {
		var m domain.EmotionalMoment
		if err := rows.Scan(&m.TS, &m.ParticipantID, &m.Emotion, &m.Intensity); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}
