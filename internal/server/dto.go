package server

import (
	"encoding/json"

	"concord/internal/domain"
)

// Request payloads

type CreateConflictRequest struct {
	Title       string           `json:"title" example:"Apartment noise dispute"`
	Description *string          `json:"description,omitempty"`
	Category    string           `json:"category,omitempty" enum:",interpersonal,family,workplace,neighbor,other"`
	Intensity   string           `json:"intensity,omitempty" enum:",low,medium,high,severe"`
	CreatorName string           `json:"creator_name" example:"Alice"`
	CreatorID   *string          `json:"creator_id,omitempty"`
	Settings    *SettingsRequest `json:"settings,omitempty"`
}

type SettingsRequest struct {
	MaxParticipants    int    `json:"max_participants,omitempty"`
	MaxSessionDuration int    `json:"max_session_duration,omitempty"`
	SpeakingTimeLimit  int    `json:"speaking_time_limit,omitempty"`
	ModerationLevel    string `json:"moderation_level,omitempty" enum:",minimal,moderate,active"`
	EmotionMonitoring  *bool  `json:"emotion_monitoring,omitempty"`
}

type UpdateConflictStatusRequest struct {
	Status  string  `json:"status" enum:"setup,active,paused,resolved,escalated"`
	ActorID *string `json:"actor_id,omitempty"`
}

type AddParticipantRequest struct {
	ID          *string             `json:"id,omitempty"`
	Name        string              `json:"name" example:"Bob"`
	Role        string              `json:"role,omitempty" enum:",primary,secondary,observer,facilitator"`
	Perspective *PerspectiveRequest `json:"perspective,omitempty"`
}

type PerspectiveRequest struct {
	Summary                 string `json:"summary,omitempty"`
	EmotionalState          string `json:"emotional_state,omitempty"`
	DesiredOutcome          string `json:"desired_outcome,omitempty"`
	WillingnessToCompromise string `json:"willingness_to_compromise,omitempty" enum:",low,medium,high"`
}

type AddGoalRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Priority    string  `json:"priority,omitempty" enum:",low,medium,high,critical"`
}

type OpenSessionRequest struct {
	FacilitatorID *string `json:"facilitator_id,omitempty"`
}

type CloseSessionRequest struct {
	Satisfaction map[string]int `json:"satisfaction,omitempty"`
}

type PostMessageRequest struct {
	SenderID string               `json:"sender_id"`
	Type     string               `json:"type,omitempty" enum:",text,voice,system,facilitation"`
	Content  string               `json:"content"`
	Emotion  *EmotionPointRequest `json:"emotion,omitempty"`
}

type EmotionPointRequest struct {
	Emotion   string  `json:"emotion" example:"frustration"`
	Intensity float64 `json:"intensity" minimum:"0" maximum:"100"`
}

type ProposeAgreementRequest struct {
	Title      string   `json:"title"`
	Terms      []string `json:"terms,omitempty"`
	ProposedBy string   `json:"proposed_by"`
}

type CastVoteRequest struct {
	ParticipantID string `json:"participant_id"`
	Choice        string `json:"choice" enum:"agree,disagree,abstain"`
}

type MarkAgreementRequest struct {
	Status  string  `json:"status" enum:"implemented,violated,modified"`
	ActorID *string `json:"actor_id,omitempty"`
}

// Response payloads

type PhaseCompletionResponse struct {
	Phase           domain.Phase `json:"phase"`
	Complete        bool         `json:"complete"`
	Percentage      int          `json:"percentage"`
	Outcomes        []string     `json:"outcomes,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
}

type AdvancePhaseResponse struct {
	Session domain.Session     `json:"session"`
	Result  domain.PhaseResult `json:"result"`
	Closed  bool               `json:"closed"`
}

type paginatedConflicts struct {
	Items      []domain.Conflict `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ConflictID string         `json:"conflict_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func eventResponse(e domain.Event) EventResponse {
	res := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ConflictID: e.ConflictID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
	}
	if e.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(e.Payload), &payload); err == nil {
			res.Payload = payload
		}
	}
	return res
}

func settingsFromRequest(req *SettingsRequest) *domain.Settings {
	if req == nil {
		return nil
	}
	s := domain.Settings{
		MaxParticipants:    req.MaxParticipants,
		MaxSessionDuration: req.MaxSessionDuration,
		SpeakingTimeLimit:  req.SpeakingTimeLimit,
		ModerationLevel:    req.ModerationLevel,
		EmotionMonitoring:  true,
	}
	if req.EmotionMonitoring != nil {
		s.EmotionMonitoring = *req.EmotionMonitoring
	}
	return &s
}

func perspectiveFromRequest(req *PerspectiveRequest) domain.Perspective {
	if req == nil {
		return domain.Perspective{}
	}
	return domain.Perspective{
		Summary:                 req.Summary,
		EmotionalState:          req.EmotionalState,
		DesiredOutcome:          req.DesiredOutcome,
		WillingnessToCompromise: req.WillingnessToCompromise,
	}
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
