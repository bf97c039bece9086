// Package dynamics derives group-level climate signals from raw
// participation and emotion data. Everything here is pure; the engine
// feeds it a snapshot and persists whatever comes back.
package dynamics

import (
	"math"
	"sort"

	"concord/internal/domain"
)

// volatilityWindow bounds how far back the journey scan reaches.
const volatilityWindow = 10

// minVolatilitySamples is the floor below which we refuse to call the
// group anything but stable.
const minVolatilitySamples = 5

var positiveEmotions = map[string]bool{
	"joy": true, "satisfaction": true, "hope": true, "relief": true, "calm": true,
}

var negativeEmotions = map[string]bool{
	"anger": true, "frustration": true, "sadness": true, "anxiety": true,
	"fear": true, "contempt": true,
}

// Input is the snapshot the analyzer works from.
type Input struct {
	Participants    []domain.Participant
	Contributions   map[string]int
	Journey         []domain.EmotionalMoment
	AgreementsTotal int
	AgreementsDone  int
	GoalsAchieved   int
	PhasesCompleted int
}

// Initial returns the dynamics snapshot a fresh conflict starts with.
func Initial() domain.GroupDynamics {
	return domain.GroupDynamics{
		CohesionLevel:        "low",
		TrustLevel:           "low",
		CommunicationQuality: "fair",
		OverallMood:          "neutral",
		EmotionalVolatility:  "stable",
		ProgressMomentum:     "slow",
	}
}

// Analyze recomputes the full dynamics snapshot.
func Analyze(in Input) domain.GroupDynamics {
	d := domain.GroupDynamics{
		TrustLevel:          Trust(in.AgreementsTotal, in.AgreementsDone),
		OverallMood:         Mood(in.Participants, in.Journey),
		EmotionalVolatility: Volatility(in.Journey),
		ProgressMomentum:    momentum(in),
	}
	d.DominantParticipants, d.QuietParticipants = ParticipationSplit(in.Participants, in.Contributions)
	d.CommunicationQuality = CommunicationQuality(in.Participants, in.Contributions)
	d.CohesionLevel = cohesion(d.TrustLevel, d.OverallMood)
	return d
}

// Trust scores the group's trust from its agreement track record.
func Trust(total, agreed int) string {
	if total == 0 {
		return "low"
	}
	ratio := float64(agreed) / float64(total)
	switch {
	case ratio >= 0.7:
		return "high"
	case ratio >= 0.3:
		return "medium"
	default:
		return "low"
	}
}

// Volatility measures the spread of recent emotional intensity. Fewer
// than minVolatilitySamples data points always reads as stable.
func Volatility(journey []domain.EmotionalMoment) string {
	if len(journey) > volatilityWindow {
		journey = journey[len(journey)-volatilityWindow:]
	}
	if len(journey) < minVolatilitySamples {
		return "stable"
	}
	var sum float64
	for _, m := range journey {
		sum += m.Intensity
	}
	mean := sum / float64(len(journey))
	var variance float64
	for _, m := range journey {
		variance += (m.Intensity - mean) * (m.Intensity - mean)
	}
	sd := math.Sqrt(variance / float64(len(journey)))
	switch {
	case sd > 30:
		return "high"
	case sd > 15:
		return "moderate"
	default:
		return "stable"
	}
}

// Mood aggregates current participant emotions plus the recent journey
// into one group reading. Positive outweighing negative 1.5:1 reads
// cooperative, the reverse tense; a 3:1 negative skew reads hostile and
// a 3:1 positive skew reads positive.
func Mood(participants []domain.Participant, journey []domain.EmotionalMoment) string {
	var pos, neg float64
	for _, p := range participants {
		for emotion, score := range p.CurrentEmotions {
			switch {
			case positiveEmotions[emotion]:
				pos += score
			case negativeEmotions[emotion]:
				neg += score
			}
		}
	}
	if len(journey) > volatilityWindow {
		journey = journey[len(journey)-volatilityWindow:]
	}
	for _, m := range journey {
		switch {
		case positiveEmotions[m.Emotion]:
			pos += m.Intensity
		case negativeEmotions[m.Emotion]:
			neg += m.Intensity
		}
	}
	switch {
	case pos == 0 && neg == 0:
		return "neutral"
	case neg > pos*3:
		return "hostile"
	case neg > pos*1.5:
		return "tense"
	case pos > neg*3:
		return "positive"
	case pos > neg*1.5:
		return "cooperative"
	default:
		return "neutral"
	}
}

// ParticipationSplit flags participants far above or below their fair
// share of contributions. Participants who left are ignored.
func ParticipationSplit(participants []domain.Participant, contributions map[string]int) (dominant, quiet []string) {
	var present []domain.Participant
	total := 0
	for _, p := range participants {
		if p.Status == "left" {
			continue
		}
		present = append(present, p)
		total += contributions[p.ID]
	}
	if len(present) == 0 || total == 0 {
		return nil, nil
	}
	fair := float64(total) / float64(len(present))
	for _, p := range present {
		count := float64(contributions[p.ID])
		if count >= fair*2 && count > 0 {
			dominant = append(dominant, p.ID)
		} else if count <= fair*0.5 {
			quiet = append(quiet, p.ID)
		}
	}
	sort.Strings(dominant)
	sort.Strings(quiet)
	return dominant, quiet
}

// CommunicationQuality rates how evenly the floor is shared: the ratio
// of the quietest to the loudest present participant.
func CommunicationQuality(participants []domain.Participant, contributions map[string]int) string {
	minCount, maxCount := math.MaxInt, 0
	present := 0
	for _, p := range participants {
		if p.Status == "left" {
			continue
		}
		present++
		c := contributions[p.ID]
		if c < minCount {
			minCount = c
		}
		if c > maxCount {
			maxCount = c
		}
	}
	if present == 0 || maxCount == 0 {
		return "fair"
	}
	balance := float64(minCount) / float64(maxCount)
	switch {
	case balance >= 0.7:
		return "excellent"
	case balance >= 0.4:
		return "good"
	case balance >= 0.2:
		return "fair"
	default:
		return "poor"
	}
}

func cohesion(trust, mood string) string {
	goodMood := mood == "cooperative" || mood == "positive"
	switch {
	case trust == "high" && goodMood:
		return "high"
	case trust == "low" && (mood == "tense" || mood == "hostile"):
		return "low"
	default:
		return "medium"
	}
}

func momentum(in Input) string {
	switch {
	case in.AgreementsDone > 0 && in.PhasesCompleted > 0:
		return "accelerating"
	case in.AgreementsDone > 0 || in.GoalsAchieved > 0:
		return "steady"
	case in.PhasesCompleted > 0 || len(in.Contributions) > 0:
		return "slow"
	default:
		return "stalled"
	}
}
