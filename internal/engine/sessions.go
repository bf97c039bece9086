package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"concord/internal/domain"
	"concord/internal/dynamics"
	"concord/internal/events"
	"concord/internal/workflow"
)

// OpenSession opens the single active session for a conflict. The agenda
// is selected and adapted here, once, and frozen for the session's life.
func (e Engine) OpenSession(ctx context.Context, conflictID, facilitatorID, actorID string) (domain.Session, error) {
	unlock := e.lockConflict(conflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetConflictTx(ctx, tx, conflictID)
	if err != nil {
		return domain.Session{}, err
	}
	if c.Status == "resolved" || c.Status == "escalated" {
		return domain.Session{}, fmt.Errorf("%w: conflict is %s", domain.ErrInvalidStateTransition, c.Status)
	}
	if _, err := e.Repo.OpenSessionTx(ctx, tx, conflictID); err == nil {
		return domain.Session{}, fmt.Errorf("%w: a session is already open", domain.ErrInvalidStateTransition)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Session{}, err
	}

	participants, err := e.Repo.ListParticipantsTx(ctx, tx, conflictID)
	if err != nil {
		return domain.Session{}, err
	}
	var attendees []domain.Participant
	for _, p := range participants {
		if p.Status == "joined" || p.Status == "active" {
			attendees = append(attendees, p)
		}
	}
	if len(attendees) < 2 {
		return domain.Session{}, fmt.Errorf("%w: need at least 2, have %d", domain.ErrInsufficientParticipants, len(attendees))
	}

	template := workflow.Select(workflow.Catalog(), c.Category, c.Intensity, len(attendees))
	avgEngagement := 0.0
	for _, p := range attendees {
		avgEngagement += float64(p.Engagement)
	}
	avgEngagement /= float64(len(attendees))
	agenda := workflow.Adapt(template, c.Dynamics, avgEngagement)

	planned := 0
	for _, p := range agenda {
		planned += p.Duration
	}
	if c.Settings.MaxSessionDuration > 0 && planned > c.Settings.MaxSessionDuration {
		planned = c.Settings.MaxSessionDuration
	}

	ids := make([]string, len(attendees))
	metrics := domain.ParticipationMetrics{
		ContributionCount: map[string]int{},
		EngagementScore:   map[string]int{},
	}
	for i, p := range attendees {
		ids[i] = p.ID
		metrics.ContributionCount[p.ID] = 0
		metrics.EngagementScore[p.ID] = p.Engagement
	}
	facilitator := facilitatorID
	if facilitator == "" {
		for _, p := range attendees {
			if p.Role == "facilitator" {
				facilitator = p.ID
				break
			}
		}
	}

	count, err := e.Repo.CountSessionsTx(ctx, tx, conflictID)
	if err != nil {
		return domain.Session{}, err
	}
	s := domain.Session{
		ID:              uuid.NewString(),
		ConflictID:      conflictID,
		SessionNumber:   count + 1,
		Status:          "open",
		StartTime:       e.timestamp(),
		PlannedDuration: planned,
		Attendees:       ids,
		Agenda:          agenda,
		CurrentPhase:    0,
		Metrics:         metrics,
	}
	if facilitator != "" {
		s.FacilitatorID = &facilitator
	}
	if err := e.Repo.InsertSession(ctx, tx, s); err != nil {
		return domain.Session{}, err
	}
	if c.Status != "active" {
		c.Status = "active"
		c.UpdatedAt = s.StartTime
		if err := e.Repo.UpdateConflictTx(ctx, tx, c); err != nil {
			return domain.Session{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "session_opened", conflictID, "session", s.ID, actorID, events.EventPayload{
		"session_number": s.SessionNumber,
		"template":       template.ID,
		"phases":         len(agenda),
	}); err != nil {
		return domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// CurrentSession returns the open session with its journey feed.
func (e Engine) CurrentSession(ctx context.Context, conflictID string) (domain.Session, error) {
	if _, err := e.Repo.GetConflict(ctx, conflictID); err != nil {
		return domain.Session{}, err
	}
	s, err := e.Repo.OpenSession(ctx, conflictID)
	if err != nil {
		return s, err
	}
	s.Journey, err = e.Repo.ListJourney(ctx, s.ID)
	return s, err
}

// AdvancePhase records a PhaseResult for the current phase and moves the
// session forward. Advancing past the final phase closes the session in
// the same transaction.
func (e Engine) AdvancePhase(ctx context.Context, conflictID, actorID string) (domain.Session, domain.PhaseResult, error) {
	unlock := e.lockConflict(conflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, domain.PhaseResult{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetConflictTx(ctx, tx, conflictID)
	if err != nil {
		return domain.Session{}, domain.PhaseResult{}, err
	}
	s, err := e.Repo.OpenSessionTx(ctx, tx, conflictID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Session{}, domain.PhaseResult{}, fmt.Errorf("%w: no open session", domain.ErrNotFound)
		}
		return domain.Session{}, domain.PhaseResult{}, err
	}
	if s.CurrentPhase >= len(s.Agenda) {
		return domain.Session{}, domain.PhaseResult{}, fmt.Errorf("%w: agenda exhausted", domain.ErrInvalidStateTransition)
	}

	phase := s.Agenda[s.CurrentPhase]
	snap, err := e.completionSnapshot(ctx, tx, c, s)
	if err != nil {
		return domain.Session{}, domain.PhaseResult{}, err
	}
	eval := evaluatePhase(phase, snap)

	start := s.StartTime
	if n := len(s.PhaseResults); n > 0 {
		start = s.PhaseResults[n-1].EndTime
	}
	status := "partial"
	if eval.Complete {
		status = "completed"
	}
	result := domain.PhaseResult{
		PhaseID:          phase.ID,
		StartTime:        start,
		EndTime:          e.timestamp(),
		CompletionStatus: status,
		Completion:       eval.Percentage,
		Outcomes:         eval.Outcomes,
	}
	s.PhaseResults = append(s.PhaseResults, result)
	s.CurrentPhase++

	if err := e.Events.Append(ctx, tx, "phase_advanced", conflictID, "session", s.ID, actorID, events.EventPayload{
		"phase":      phase.ID,
		"completion": eval.Percentage,
		"status":     status,
	}); err != nil {
		return domain.Session{}, domain.PhaseResult{}, err
	}

	if s.CurrentPhase >= len(s.Agenda) {
		if err := e.closeSessionTx(ctx, tx, &c, &s, nil, actorID); err != nil {
			return domain.Session{}, domain.PhaseResult{}, err
		}
	} else if err := e.Repo.UpdateSessionTx(ctx, tx, s); err != nil {
		return domain.Session{}, domain.PhaseResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, domain.PhaseResult{}, err
	}
	return s, result, nil
}

// CloseSession ends the open session explicitly.
func (e Engine) CloseSession(ctx context.Context, conflictID string, satisfaction map[string]int, actorID string) (domain.Session, error) {
	unlock := e.lockConflict(conflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetConflictTx(ctx, tx, conflictID)
	if err != nil {
		return domain.Session{}, err
	}
	s, err := e.Repo.OpenSessionTx(ctx, tx, conflictID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := e.closeSessionTx(ctx, tx, &c, &s, satisfaction, actorID); err != nil {
		return domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// closeSessionTx stamps the end, scores effectiveness and refreshes the
// dynamics snapshot. Runs inside the caller's transaction and lock.
func (e Engine) closeSessionTx(ctx context.Context, tx *sql.Tx, c *domain.Conflict, s *domain.Session, satisfaction map[string]int, actorID string) error {
	now := e.now().UTC()
	end := now.Format(time.RFC3339)
	s.Status = "closed"
	s.EndTime = &end
	if start, err := time.Parse(time.RFC3339, s.StartTime); err == nil {
		minutes := int(now.Sub(start).Minutes())
		if minutes < 0 {
			minutes = 0
		}
		s.ActualDuration = &minutes
	}
	if satisfaction != nil {
		s.Satisfaction = satisfaction
	}

	agreements, err := e.Repo.ListAgreementsTx(ctx, tx, c.ID)
	if err != nil {
		return err
	}
	agreedInSession := 0
	for _, a := range agreements {
		if a.SessionID != nil && *a.SessionID == s.ID && a.Status == "agreed" {
			agreedInSession++
		}
	}
	s.Effectiveness = e.effectiveness(agreedInSession, s.Metrics.EngagementScore, s.Satisfaction)

	if err := e.Repo.UpdateSessionTx(ctx, tx, *s); err != nil {
		return err
	}

	d, err := e.recomputeDynamicsTx(ctx, tx, *c, *s)
	if err != nil {
		return err
	}
	c.Dynamics = d
	c.UpdatedAt = end
	if err := e.Repo.UpdateConflictTx(ctx, tx, *c); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "session_closed", c.ID, "session", s.ID, actorID, events.EventPayload{
		"effectiveness":   s.Effectiveness,
		"actual_duration": s.ActualDuration,
	})
}

// effectiveness scores a closing session with the configured weights:
// base, a capped bonus per agreed agreement, and deviations of average
// engagement and satisfaction from their midpoints. Clamped to [0,100].
func (e Engine) effectiveness(agreed int, engagement map[string]int, satisfaction map[string]int) int {
	sc := e.Config.Scoring
	score := sc.Base

	bonus := float64(agreed) * sc.PerAgreement
	if bonus > 30 {
		bonus = 30
	}
	score += bonus

	if len(engagement) > 0 {
		sum := 0.0
		for _, v := range engagement {
			sum += float64(v)
		}
		avg := sum / float64(len(engagement))
		score += sc.EngagementWeight * (avg - 50)
	}
	if len(satisfaction) > 0 {
		sum := 0.0
		for _, v := range satisfaction {
			sum += float64(v)
		}
		avg := sum / float64(len(satisfaction))
		score += sc.SatisfactionWeight * (avg - 5)
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(score)
}

func (e Engine) recomputeDynamicsTx(ctx context.Context, tx *sql.Tx, c domain.Conflict, s domain.Session) (domain.GroupDynamics, error) {
	participants, err := e.Repo.ListParticipantsTx(ctx, tx, c.ID)
	if err != nil {
		return domain.GroupDynamics{}, err
	}
	journey, err := e.Repo.ListJourneyTx(ctx, tx, s.ID)
	if err != nil {
		return domain.GroupDynamics{}, err
	}
	total, agreed, err := e.Repo.AgreementStatsTx(ctx, tx, c.ID)
	if err != nil {
		return domain.GroupDynamics{}, err
	}
	goals, err := e.Repo.ListGoalsTx(ctx, tx, c.ID)
	if err != nil {
		return domain.GroupDynamics{}, err
	}
	achieved := 0
	for _, g := range goals {
		if g.Status == "achieved" {
			achieved++
		}
	}
	completed := 0
	for _, r := range s.PhaseResults {
		if r.CompletionStatus == "completed" {
			completed++
		}
	}
	return dynamics.Analyze(dynamics.Input{
		Participants:    participants,
		Contributions:   s.Metrics.ContributionCount,
		Journey:         journey,
		AgreementsTotal: total,
		AgreementsDone:  agreed,
		GoalsAchieved:   achieved,
		PhasesCompleted: completed,
	}), nil
}
