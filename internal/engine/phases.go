package engine

import (
	"context"
	"database/sql"

	"concord/internal/domain"
	"concord/internal/workflow"
)

// phaseSnapshot is the state evaluatePhase reads. Collected under the
// operation's transaction so completion checks see a consistent view.
type phaseSnapshot struct {
	attendees         []domain.Participant
	contributions     map[string]int
	goals             int
	sessionAgreements []domain.Agreement
	dynamics          domain.GroupDynamics
}

// PhaseEvaluation reports how done the current phase is and what the
// facilitator should do about it.
type PhaseEvaluation struct {
	Complete        bool     `json:"complete"`
	Percentage      int      `json:"percentage"`
	Outcomes        []string `json:"outcomes,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// advanceThreshold is the default completion bar for moving on; the
// agreement phase only needs half the room.
const advanceThreshold = 75

func (e Engine) completionSnapshot(ctx context.Context, tx *sql.Tx, c domain.Conflict, s domain.Session) (phaseSnapshot, error) {
	participants, err := e.Repo.ListParticipantsTx(ctx, tx, c.ID)
	if err != nil {
		return phaseSnapshot{}, err
	}
	attendeeSet := map[string]bool{}
	for _, id := range s.Attendees {
		attendeeSet[id] = true
	}
	var attendees []domain.Participant
	for _, p := range participants {
		if attendeeSet[p.ID] {
			attendees = append(attendees, p)
		}
	}
	goals, err := e.Repo.ListGoalsTx(ctx, tx, c.ID)
	if err != nil {
		return phaseSnapshot{}, err
	}
	agreements, err := e.Repo.ListAgreementsTx(ctx, tx, c.ID)
	if err != nil {
		return phaseSnapshot{}, err
	}
	var inSession []domain.Agreement
	for _, a := range agreements {
		if a.SessionID != nil && *a.SessionID == s.ID {
			inSession = append(inSession, a)
		}
	}
	return phaseSnapshot{
		attendees:         attendees,
		contributions:     s.Metrics.ContributionCount,
		goals:             len(goals),
		sessionAgreements: inSession,
		dynamics:          c.Dynamics,
	}, nil
}

// evaluatePhase applies the per-type completion criterion.
func evaluatePhase(phase domain.Phase, snap phaseSnapshot) PhaseEvaluation {
	pct := 0
	var outcomes []string
	threshold := advanceThreshold

	switch phase.Type {
	case "opening":
		contributed := 0
		for _, p := range snap.attendees {
			if snap.contributions[p.ID] > 0 {
				contributed++
			}
		}
		if len(snap.attendees) > 0 {
			pct = contributed * 100 / len(snap.attendees)
		}
	case "perspective_sharing":
		shared := 0
		for _, p := range snap.attendees {
			if p.Perspective.Summary != "" {
				shared++
			}
		}
		if len(snap.attendees) > 0 {
			pct = shared * 100 / len(snap.attendees)
		}
		if shared == len(snap.attendees) && shared > 0 {
			pct = 100
		}
	case "issue_identification":
		pct = snap.goals * 25
		if pct > 100 {
			pct = 100
		}
	case "solution_generation":
		pct = len(snap.sessionAgreements) * 10
		if pct > 100 {
			pct = 100
		}
		for _, a := range snap.sessionAgreements {
			outcomes = append(outcomes, a.Title)
		}
	case "agreement":
		threshold = 50
		agreed := 0
		for _, a := range snap.sessionAgreements {
			if a.Status == "agreed" {
				agreed++
				outcomes = append(outcomes, a.Title)
			}
		}
		if len(snap.sessionAgreements) > 0 {
			pct = agreed * 100 / len(snap.sessionAgreements)
		}
	default:
		// negotiation, closing and inserted break phases have no hard
		// criterion; they are as done as the facilitator says they are.
		pct = advanceThreshold
	}

	var quiet []string
	quietSet := map[string]bool{}
	for _, id := range snap.dynamics.QuietParticipants {
		quietSet[id] = true
	}
	for _, p := range snap.attendees {
		if quietSet[p.ID] {
			quiet = append(quiet, p.Name)
		}
	}
	return PhaseEvaluation{
		Complete:        pct >= threshold,
		Percentage:      pct,
		Outcomes:        outcomes,
		Recommendations: workflow.Guidance(phase, snap.dynamics, quiet),
	}
}

// EvaluateCurrentPhase reports completion for the open session's current
// phase without advancing anything.
func (e Engine) EvaluateCurrentPhase(ctx context.Context, conflictID string) (domain.Phase, PhaseEvaluation, error) {
	unlock := e.lockConflict(conflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Phase{}, PhaseEvaluation{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetConflictTx(ctx, tx, conflictID)
	if err != nil {
		return domain.Phase{}, PhaseEvaluation{}, err
	}
	s, err := e.Repo.OpenSessionTx(ctx, tx, conflictID)
	if err != nil {
		return domain.Phase{}, PhaseEvaluation{}, err
	}
	if s.CurrentPhase >= len(s.Agenda) {
		return domain.Phase{}, PhaseEvaluation{}, domain.ErrInvalidStateTransition
	}
	phase := s.Agenda[s.CurrentPhase]
	snap, err := e.completionSnapshot(ctx, tx, c, s)
	if err != nil {
		return domain.Phase{}, PhaseEvaluation{}, err
	}
	return phase, evaluatePhase(phase, snap), nil
}
