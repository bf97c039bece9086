package workflow

import "concord/internal/domain"

// Adapt tailors a template's agenda to the group's current state. The
// four adjustments apply in a fixed order so the result is deterministic
// for a given snapshot:
//
//  1. low trust inserts a trust-building phase after the opening
//  2. poor communication stretches sharing and issue work by 30%
//  3. high volatility inserts a regulation break after perspective sharing
//  4. average engagement below 40 compresses everything by 20%, floor 5
//
// The agenda is adapted once, at session open; it never changes after.
func Adapt(t Template, d domain.GroupDynamics, avgEngagement float64) []domain.Phase {
	agenda := make([]domain.Phase, len(t.Phases))
	copy(agenda, t.Phases)

	if d.TrustLevel == "low" {
		agenda = insertAfterType(agenda, "opening", domain.Phase{
			ID:       "trust_building",
			Name:     "Trust building",
			Type:     "perspective_sharing",
			Duration: 15,
			Activities: []string{
				"shared-interest round",
				"appreciation exchange",
			},
			FacilitationNotes: []string{"Keep this light; no grievances yet"},
		})
	}

	if d.CommunicationQuality == "poor" {
		for i := range agenda {
			if agenda[i].Type == "perspective_sharing" || agenda[i].Type == "issue_identification" {
				agenda[i].Duration = int(float64(agenda[i].Duration) * 1.3)
				agenda[i].FacilitationNotes = append(agenda[i].FacilitationNotes,
					"Allow extra time; use structured turn-taking to rebuild communication")
			}
		}
	}

	if d.EmotionalVolatility == "high" {
		agenda = insertAfterType(agenda, "perspective_sharing", domain.Phase{
			ID:       "regulation_break",
			Name:     "Regulation break",
			Type:     "closing",
			Duration: 10,
			Activities: []string{
				"guided breathing",
				"individual reflection",
			},
		})
	}

	if avgEngagement < 40 {
		for i := range agenda {
			agenda[i].Duration = int(float64(agenda[i].Duration) * 0.8)
			if agenda[i].Duration < 5 {
				agenda[i].Duration = 5
			}
		}
	}

	return agenda
}

// insertAfterType inserts the phase after the last phase of the given
// type, or appends when none exists.
func insertAfterType(agenda []domain.Phase, phaseType string, phase domain.Phase) []domain.Phase {
	idx := -1
	for i, p := range agenda {
		if p.Type == phaseType {
			idx = i
		}
	}
	if idx < 0 {
		return append(agenda, phase)
	}
	out := make([]domain.Phase, 0, len(agenda)+1)
	out = append(out, agenda[:idx+1]...)
	out = append(out, phase)
	out = append(out, agenda[idx+1:]...)
	return out
}

// Guidance produces facilitator prompts for the phase about to run,
// tuned to whatever the dynamics snapshot is flagging.
func Guidance(phase domain.Phase, d domain.GroupDynamics, quietNames []string) []string {
	var notes []string
	notes = append(notes, phase.FacilitationNotes...)
	if len(d.DominantParticipants) > 0 {
		notes = append(notes, "Some voices are dominating; use round-robin turn taking")
	}
	for _, name := range quietNames {
		notes = append(notes, "Invite "+name+" to contribute directly")
	}
	if d.OverallMood == "tense" || d.OverallMood == "hostile" {
		notes = append(notes, "Restate ground rules and slow the pace before continuing")
	}
	if d.ProgressMomentum == "stalled" && phase.Type == "solution_generation" {
		notes = append(notes, "Seed the brainstorm with one small, safe option to break the stall")
	}
	return notes
}
