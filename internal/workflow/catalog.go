// Package workflow holds the mediation session templates and the rules
// that tailor them to a specific group before a session opens.
package workflow

import "concord/internal/domain"

// Template is a reusable session blueprint. Phase IDs are stable slugs
// so two sessions opened from the same inputs carry the same agenda.
type Template struct {
	ID              string
	Name            string
	Description     string
	Category        string
	Tags            []string
	MaxParticipants int
	Phases          []domain.Phase
}

// TotalDuration sums the phase durations in minutes.
func (t Template) TotalDuration() int {
	total := 0
	for _, p := range t.Phases {
		total += p.Duration
	}
	return total
}

func (t Template) hasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}

// Catalog returns the built-in templates in selection order.
func Catalog() []Template {
	return []Template{
		{
			ID:              "standard_mediation",
			Name:            "Standard mediation",
			Description:     "General-purpose multi-party mediation flow",
			Category:        "other",
			MaxParticipants: 6,
			Phases: []domain.Phase{
				{ID: "opening", Name: "Opening and ground rules", Type: "opening", Duration: 10,
					Activities: []string{"introductions", "ground rules", "process overview"}},
				{ID: "perspective_sharing", Name: "Perspective sharing", Type: "perspective_sharing", Duration: 25,
					Activities: []string{"uninterrupted statements", "active listening"}},
				{ID: "issue_identification", Name: "Issue identification", Type: "issue_identification", Duration: 20,
					Activities: []string{"list issues", "prioritize issues"}},
				{ID: "solution_generation", Name: "Solution generation", Type: "solution_generation", Duration: 25,
					Activities: []string{"brainstorming", "option building"}},
				{ID: "negotiation", Name: "Negotiation", Type: "negotiation", Duration: 25,
					Activities: []string{"trade-offs", "reality testing"}},
				{ID: "agreement", Name: "Agreement drafting", Type: "agreement", Duration: 10,
					Activities: []string{"draft terms", "confirm commitments"}},
				{ID: "closing", Name: "Closing", Type: "closing", Duration: 5,
					Activities: []string{"next steps", "session feedback"}},
			},
		},
		{
			ID:              "family_mediation",
			Name:            "Family mediation",
			Description:     "Shorter flow with room for emotional processing",
			Category:        "family",
			MaxParticipants: 4,
			Phases: []domain.Phase{
				{ID: "opening", Name: "Opening", Type: "opening", Duration: 10,
					Activities: []string{"check-in", "ground rules"}},
				{ID: "perspective_sharing", Name: "Sharing perspectives", Type: "perspective_sharing", Duration: 25,
					Activities: []string{"each member speaks", "reflective listening"},
					FacilitationNotes: []string{"Watch for long-standing grievances resurfacing"}},
				{ID: "issue_identification", Name: "Naming the issues", Type: "issue_identification", Duration: 15,
					Activities: []string{"separate people from problems"}},
				{ID: "solution_generation", Name: "Finding a way forward", Type: "solution_generation", Duration: 20,
					Activities: []string{"family agreements brainstorm"}},
				{ID: "agreement", Name: "Agreement", Type: "agreement", Duration: 15,
					Activities: []string{"household agreement drafting"}},
				{ID: "closing", Name: "Closing", Type: "closing", Duration: 5},
			},
		},
		{
			ID:              "workplace_mediation",
			Name:            "Workplace mediation",
			Description:     "Structured flow for professional disputes",
			Category:        "workplace",
			MaxParticipants: 6,
			Phases: []domain.Phase{
				{ID: "opening", Name: "Opening", Type: "opening", Duration: 10,
					Activities: []string{"confidentiality reminder", "ground rules"}},
				{ID: "perspective_sharing", Name: "Positions and interests", Type: "perspective_sharing", Duration: 20,
					Activities: []string{"role-focused statements"}},
				{ID: "issue_identification", Name: "Issue mapping", Type: "issue_identification", Duration: 15,
					Activities: []string{"impact on work", "process vs people issues"}},
				{ID: "solution_generation", Name: "Options", Type: "solution_generation", Duration: 20,
					Activities: []string{"workable arrangements"}},
				{ID: "negotiation", Name: "Negotiation", Type: "negotiation", Duration: 15},
				{ID: "agreement", Name: "Working agreement", Type: "agreement", Duration: 10},
			},
		},
		{
			ID:              "large_group_mediation",
			Name:            "Large group mediation",
			Description:     "Extended flow with heavier facilitation for many parties",
			Category:        "neighbor",
			MaxParticipants: 12,
			Phases: []domain.Phase{
				{ID: "opening", Name: "Opening plenary", Type: "opening", Duration: 15,
					Activities: []string{"introductions", "process agreement"}},
				{ID: "perspective_sharing", Name: "Structured rounds", Type: "perspective_sharing", Duration: 40,
					Activities: []string{"timed statements", "clarifying questions"},
					FacilitationNotes: []string{"Enforce speaking order strictly with this many voices"}},
				{ID: "issue_identification", Name: "Issue clustering", Type: "issue_identification", Duration: 30,
					Activities: []string{"theme clustering", "priority voting"}},
				{ID: "solution_generation", Name: "Breakout options", Type: "solution_generation", Duration: 40,
					Activities: []string{"small group brainstorm", "report back"}},
				{ID: "negotiation", Name: "Plenary negotiation", Type: "negotiation", Duration: 30},
				{ID: "agreement", Name: "Agreement", Type: "agreement", Duration: 15},
				{ID: "closing", Name: "Closing", Type: "closing", Duration: 10},
			},
		},
		{
			ID:              "de_escalation",
			Name:            "De-escalation session",
			Description:     "Safety-first flow for high intensity conflicts",
			Category:        "other",
			Tags:            []string{"de-escalation"},
			MaxParticipants: 6,
			Phases: []domain.Phase{
				{ID: "opening", Name: "Safety and ground rules", Type: "opening", Duration: 15,
					Activities:        []string{"strict ground rules", "emotional temperature check"},
					FacilitationNotes: []string{"Name the tension openly before any substantive work"}},
				{ID: "perspective_sharing", Name: "Controlled sharing", Type: "perspective_sharing", Duration: 30,
					Activities:        []string{"timed uninterrupted statements", "facilitator paraphrasing"},
					FacilitationNotes: []string{"No direct cross-talk until intensity drops"}},
				{ID: "issue_identification", Name: "Core issue only", Type: "issue_identification", Duration: 15,
					Activities: []string{"single most pressing issue"}},
				{ID: "negotiation", Name: "Immediate steps", Type: "negotiation", Duration: 20,
					Activities: []string{"short-term commitments only"}},
				{ID: "closing", Name: "Cool-down close", Type: "closing", Duration: 10,
					Activities: []string{"individual check-out"}},
			},
		},
	}
}

// Select picks the template for a conflict. High intensity takes the
// de-escalation flow; otherwise the first category match that can seat
// the group wins, then any template with enough capacity (which routes
// oversized groups to the large-group flow), then the roomiest one.
func Select(catalog []Template, category, intensity string, participants int) Template {
	if intensity == "high" || intensity == "severe" {
		for _, t := range catalog {
			if t.hasTag("de-escalation") {
				return t
			}
		}
	}
	roomiest := -1
	for i, t := range catalog {
		if t.hasTag("de-escalation") {
			continue
		}
		if roomiest < 0 || t.MaxParticipants > catalog[roomiest].MaxParticipants {
			roomiest = i
		}
		if t.Category == category && t.MaxParticipants >= participants {
			return t
		}
	}
	for _, t := range catalog {
		if !t.hasTag("de-escalation") && t.MaxParticipants >= participants {
			return t
		}
	}
	if roomiest >= 0 {
		return catalog[roomiest]
	}
	return catalog[0]
}
