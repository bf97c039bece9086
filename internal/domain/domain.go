package domain

// Conflict is the top-level aggregate for one multi-party dispute. It owns
// its participants, agreements and session history; CurrentSession is
// non-nil only while a session is open.
type Conflict struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Category        string           `json:"category"`
	Status          string           `json:"status" enum:"setup,active,paused,resolved,escalated"`
	Intensity       string           `json:"intensity" enum:"low,medium,high,severe"`
	Participants    []Participant    `json:"participants,omitempty"`
	CurrentSession  *Session         `json:"current_session,omitempty"`
	SessionHistory  []Session        `json:"session_history,omitempty"`
	ResolutionGoals []ResolutionGoal `json:"resolution_goals,omitempty"`
	Agreements      []Agreement      `json:"agreements,omitempty"`
	Dynamics        GroupDynamics    `json:"dynamics"`
	Settings        Settings         `json:"settings"`
	Version         int64            `json:"version"`
	CreatedAt       string           `json:"created_at" format:"date-time"`
	UpdatedAt       string           `json:"updated_at" format:"date-time"`
	ResolvedAt      *string          `json:"resolved_at,omitempty" format:"date-time"`
}

// Settings bound per-conflict behavior; defaults come from config.
type Settings struct {
	MaxParticipants    int    `json:"max_participants"`
	MaxSessionDuration int    `json:"max_session_duration"`
	SpeakingTimeLimit  int    `json:"speaking_time_limit,omitempty"`
	ModerationLevel    string `json:"moderation_level" enum:"minimal,moderate,active"`
	EmotionMonitoring  bool   `json:"emotion_monitoring"`
}

type Participant struct {
	ID           string      `json:"id"`
	ConflictID   string      `json:"conflict_id"`
	Name         string      `json:"name"`
	Role         string      `json:"role" enum:"primary,secondary,observer,facilitator"`
	Status       string      `json:"status" enum:"invited,joined,active,inactive,left"`
	Perspective  Perspective `json:"perspective"`
	Engagement   int         `json:"engagement"`
	JoinedAt     *string     `json:"joined_at,omitempty" format:"date-time"`
	LastActiveAt *string     `json:"last_active_at,omitempty" format:"date-time"`
	// CurrentEmotions holds the latest emotion scores (0-100) for the
	// participant, keyed by emotion name.
	CurrentEmotions map[string]float64 `json:"current_emotions,omitempty"`
}

type Perspective struct {
	Summary                 string `json:"summary,omitempty"`
	EmotionalState          string `json:"emotional_state,omitempty"`
	DesiredOutcome          string `json:"desired_outcome,omitempty"`
	WillingnessToCompromise string `json:"willingness_to_compromise,omitempty" enum:",low,medium,high"`
}

// Session is one mediation meeting. The agenda is frozen at open time;
// only CurrentPhase, PhaseResults and the metrics/journey feeds move.
type Session struct {
	ID              string               `json:"id"`
	ConflictID      string               `json:"conflict_id"`
	SessionNumber   int                  `json:"session_number"`
	Status          string               `json:"status" enum:"open,closed"`
	StartTime       string               `json:"start_time" format:"date-time"`
	EndTime         *string              `json:"end_time,omitempty" format:"date-time"`
	PlannedDuration int                  `json:"planned_duration"`
	ActualDuration  *int                 `json:"actual_duration,omitempty"`
	FacilitatorID   *string              `json:"facilitator_id,omitempty"`
	Attendees       []string             `json:"attendees"`
	Agenda          []Phase              `json:"agenda"`
	CurrentPhase    int                  `json:"current_phase"`
	PhaseResults    []PhaseResult        `json:"phase_results,omitempty"`
	Metrics         ParticipationMetrics `json:"metrics"`
	Journey         []EmotionalMoment    `json:"journey,omitempty"`
	Satisfaction    map[string]int       `json:"satisfaction,omitempty"`
	Effectiveness   int                  `json:"effectiveness"`
}

type Phase struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Type              string   `json:"type" enum:"opening,perspective_sharing,issue_identification,solution_generation,negotiation,agreement,closing"`
	Description       string   `json:"description,omitempty"`
	Duration          int      `json:"duration"`
	Activities        []string `json:"activities,omitempty"`
	FacilitationNotes []string `json:"facilitation_notes,omitempty"`
}

// PhaseResult is appended when the engine advances past a phase and is
// never mutated afterward.
type PhaseResult struct {
	PhaseID          string   `json:"phase_id"`
	StartTime        string   `json:"start_time" format:"date-time"`
	EndTime          string   `json:"end_time" format:"date-time"`
	CompletionStatus string   `json:"completion_status" enum:"completed,partial,skipped"`
	Completion       int      `json:"completion"`
	Outcomes         []string `json:"outcomes,omitempty"`
}

type Agreement struct {
	ID          string   `json:"id"`
	ConflictID  string   `json:"conflict_id"`
	SessionID   *string  `json:"session_id,omitempty"`
	Title       string   `json:"title"`
	Terms       []string `json:"terms"`
	Status      string   `json:"status" enum:"proposed,negotiating,agreed,implemented,violated,modified"`
	ProposedBy  string   `json:"proposed_by"`
	AgreedBy    []string `json:"agreed_by,omitempty"`
	ObjectedBy  []string `json:"objected_by,omitempty"`
	Abstained   []string `json:"abstained,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	FinalizedAt *string  `json:"finalized_at,omitempty" format:"date-time"`
}

type ResolutionGoal struct {
	ID          string `json:"id"`
	ConflictID  string `json:"conflict_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority" enum:"low,medium,high,critical"`
	Status      string `json:"status" enum:"proposed,accepted,in_progress,achieved,abandoned"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// GroupDynamics is derived state recomputed after messages and session
// close; only the latest snapshot is kept per conflict.
type GroupDynamics struct {
	CohesionLevel        string   `json:"cohesion_level" enum:"low,medium,high"`
	TrustLevel           string   `json:"trust_level" enum:"low,medium,high"`
	CommunicationQuality string   `json:"communication_quality" enum:"poor,fair,good,excellent"`
	DominantParticipants []string `json:"dominant_participants,omitempty"`
	QuietParticipants    []string `json:"quiet_participants,omitempty"`
	OverallMood          string   `json:"overall_mood" enum:"hostile,tense,neutral,cooperative,positive"`
	EmotionalVolatility  string   `json:"emotional_volatility" enum:"stable,moderate,high"`
	ProgressMomentum     string   `json:"progress_momentum" enum:"stalled,slow,steady,accelerating"`
}

type ParticipationMetrics struct {
	ContributionCount map[string]int `json:"contribution_count,omitempty"`
	EngagementScore   map[string]int `json:"engagement_score,omitempty"`
}

// EmotionalMoment is one entry in a session's emotional-journey feed,
// intensity on a 0-100 scale.
type EmotionalMoment struct {
	TS            string  `json:"ts" format:"date-time"`
	ParticipantID string  `json:"participant_id"`
	Emotion       string  `json:"emotion"`
	Intensity     float64 `json:"intensity"`
}

type Message struct {
	ID         string             `json:"id"`
	ConflictID string             `json:"conflict_id"`
	SessionID  string             `json:"session_id"`
	SenderID   string             `json:"sender_id"`
	Type       string             `json:"type" enum:"text,voice,system,facilitation"`
	Content    string             `json:"content"`
	Mentions   []string           `json:"mentions,omitempty"`
	Emotions   map[string]float64 `json:"emotions,omitempty"`
	TS         string             `json:"ts" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ConflictID string `json:"conflict_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
