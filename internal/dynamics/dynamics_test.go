package dynamics_test

import (
	"reflect"
	"testing"

	"concord/internal/domain"
	"concord/internal/dynamics"
)

func journey(emotion string, intensities ...float64) []domain.EmotionalMoment {
	out := make([]domain.EmotionalMoment, 0, len(intensities))
	for _, v := range intensities {
		out = append(out, domain.EmotionalMoment{Emotion: emotion, Intensity: v})
	}
	return out
}

func TestTrust(t *testing.T) {
	cases := []struct {
		total, agreed int
		want          string
	}{
		{0, 0, "low"},
		{10, 1, "low"},
		{10, 3, "medium"},
		{10, 7, "high"},
		{1, 1, "high"},
	}
	for _, tc := range cases {
		if got := dynamics.Trust(tc.total, tc.agreed); got != tc.want {
			t.Errorf("Trust(%d, %d) = %s, want %s", tc.total, tc.agreed, got, tc.want)
		}
	}
}

func TestVolatility(t *testing.T) {
	if got := dynamics.Volatility(journey("anger", 10, 90, 10, 90)); got != "stable" {
		t.Errorf("four samples = %s, want stable regardless of spread", got)
	}
	if got := dynamics.Volatility(journey("anger", 20, 25, 80, 15, 90)); got != "high" {
		t.Errorf("wild swings = %s, want high", got)
	}
	if got := dynamics.Volatility(journey("anger", 40, 50, 60, 45, 55, 70)); got != "stable" {
		t.Errorf("tight band = %s, want stable", got)
	}
	if got := dynamics.Volatility(journey("anger", 30, 50, 70, 30, 70, 50)); got != "moderate" {
		t.Errorf("medium spread = %s, want moderate", got)
	}
	// only the last ten points count
	old := journey("anger", 0, 100, 0, 100, 0, 100, 0, 100)
	calm := append(old, journey("calm", 50, 50, 50, 50, 50, 50, 50, 50, 50, 50)...)
	if got := dynamics.Volatility(calm); got != "stable" {
		t.Errorf("settled tail = %s, want stable", got)
	}
}

func TestMood(t *testing.T) {
	if got := dynamics.Mood(nil, nil); got != "neutral" {
		t.Errorf("no signal = %s, want neutral", got)
	}
	if got := dynamics.Mood(nil, journey("frustration", 40, 40, 40)); got != "hostile" {
		t.Errorf("pure negative = %s, want hostile", got)
	}
	mixed := append(journey("joy", 20), journey("anger", 40)...)
	if got := dynamics.Mood(nil, mixed); got != "tense" {
		t.Errorf("2:1 negative = %s, want tense", got)
	}
	upbeat := append(journey("satisfaction", 70), journey("anxiety", 20)...)
	if got := dynamics.Mood(nil, upbeat); got != "positive" {
		t.Errorf("3.5:1 positive = %s, want positive", got)
	}
	participants := []domain.Participant{
		{ID: "a", CurrentEmotions: map[string]float64{"hope": 50}},
		{ID: "b", CurrentEmotions: map[string]float64{"fear": 30}},
	}
	if got := dynamics.Mood(participants, nil); got != "cooperative" {
		t.Errorf("participant emotions = %s, want cooperative", got)
	}
	// unknown labels carry no weight
	if got := dynamics.Mood(nil, journey("curiosity", 90, 90)); got != "neutral" {
		t.Errorf("unscored emotion = %s, want neutral", got)
	}
}

func TestParticipationSplit(t *testing.T) {
	participants := []domain.Participant{
		{ID: "a", Status: "joined"},
		{ID: "b", Status: "joined"},
		{ID: "c", Status: "joined"},
		{ID: "d", Status: "left"},
	}
	contributions := map[string]int{"a": 12, "b": 5, "c": 1, "d": 40}
	dominant, quiet := dynamics.ParticipationSplit(participants, contributions)
	if !reflect.DeepEqual(dominant, []string{"a"}) {
		t.Errorf("dominant = %v, want [a]", dominant)
	}
	if !reflect.DeepEqual(quiet, []string{"c"}) {
		t.Errorf("quiet = %v, want [c]", quiet)
	}

	dominant, quiet = dynamics.ParticipationSplit(participants, nil)
	if dominant != nil || quiet != nil {
		t.Errorf("silent group = %v/%v, want nil/nil", dominant, quiet)
	}
}

func TestCommunicationQuality(t *testing.T) {
	participants := []domain.Participant{
		{ID: "a", Status: "joined"},
		{ID: "b", Status: "joined"},
	}
	cases := []struct {
		contributions map[string]int
		want          string
	}{
		{nil, "fair"},
		{map[string]int{"a": 8, "b": 7}, "excellent"},
		{map[string]int{"a": 10, "b": 5}, "good"},
		{map[string]int{"a": 10, "b": 3}, "fair"},
		{map[string]int{"a": 10, "b": 1}, "poor"},
	}
	for _, tc := range cases {
		if got := dynamics.CommunicationQuality(participants, tc.contributions); got != tc.want {
			t.Errorf("CommunicationQuality(%v) = %s, want %s", tc.contributions, got, tc.want)
		}
	}
	withLeft := append(participants, domain.Participant{ID: "gone", Status: "left"})
	if got := dynamics.CommunicationQuality(withLeft, map[string]int{"a": 8, "b": 7}); got != "excellent" {
		t.Errorf("left participant should not drag the floor, got %s", got)
	}
}

func TestAnalyzeComposite(t *testing.T) {
	in := dynamics.Input{
		Participants: []domain.Participant{
			{ID: "a", Status: "joined"},
			{ID: "b", Status: "joined"},
		},
		Contributions:   map[string]int{"a": 6, "b": 5},
		Journey:         journey("satisfaction", 60, 60, 60, 60, 60),
		AgreementsTotal: 2,
		AgreementsDone:  2,
		GoalsAchieved:   1,
		PhasesCompleted: 3,
	}
	d := dynamics.Analyze(in)
	if d.TrustLevel != "high" {
		t.Errorf("trust = %s", d.TrustLevel)
	}
	if d.OverallMood != "positive" {
		t.Errorf("mood = %s", d.OverallMood)
	}
	if d.CohesionLevel != "high" {
		t.Errorf("cohesion = %s", d.CohesionLevel)
	}
	if d.ProgressMomentum != "accelerating" {
		t.Errorf("momentum = %s", d.ProgressMomentum)
	}
	if d.CommunicationQuality != "excellent" {
		t.Errorf("communication = %s", d.CommunicationQuality)
	}
	if d.EmotionalVolatility != "stable" {
		t.Errorf("volatility = %s", d.EmotionalVolatility)
	}
}

func TestMomentumLadder(t *testing.T) {
	if got := dynamics.Analyze(dynamics.Input{}).ProgressMomentum; got != "stalled" {
		t.Errorf("empty = %s, want stalled", got)
	}
	if got := dynamics.Analyze(dynamics.Input{GoalsAchieved: 1}).ProgressMomentum; got != "steady" {
		t.Errorf("goal only = %s, want steady", got)
	}
	if got := dynamics.Analyze(dynamics.Input{PhasesCompleted: 2}).ProgressMomentum; got != "slow" {
		t.Errorf("phases only = %s, want slow", got)
	}
}
