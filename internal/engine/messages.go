package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"concord/internal/domain"
	"concord/internal/events"
)

var mentionPattern = regexp.MustCompile(`@([\p{L}\p{N}_-]+)`)

// EmotionPoint is an optional emotional reading attached to a message.
type EmotionPoint struct {
	Emotion   string  `json:"emotion"`
	Intensity float64 `json:"intensity" minimum:"0" maximum:"100"`
}

// MessageOptions are parameters for posting a message.
type MessageOptions struct {
	ConflictID string
	SenderID   string
	Type       string
	Content    string
	Emotion    *EmotionPoint
}

// PostMessage commits the message synchronously; emotion enrichment and
// the dynamics recompute run in the background and never fail the call.
func (e Engine) PostMessage(ctx context.Context, opts MessageOptions) (domain.Message, error) {
	if strings.TrimSpace(opts.Content) == "" {
		return domain.Message{}, errors.New("content is required")
	}
	if opts.Type == "" {
		opts.Type = "text"
	}
	unlock := e.lockConflict(opts.ConflictID)

	m, settings, err := e.postMessageLocked(ctx, opts)
	unlock()
	if err != nil {
		return domain.Message{}, err
	}

	go e.enrichAndRecompute(m, settings)
	return m, nil
}

func (e Engine) postMessageLocked(ctx context.Context, opts MessageOptions) (domain.Message, domain.Settings, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, domain.Settings{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetConflictTx(ctx, tx, opts.ConflictID)
	if err != nil {
		return domain.Message{}, domain.Settings{}, err
	}
	s, err := e.Repo.OpenSessionTx(ctx, tx, opts.ConflictID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Message{}, domain.Settings{}, fmt.Errorf("%w: no open session", domain.ErrInvalidStateTransition)
		}
		return domain.Message{}, domain.Settings{}, err
	}
	sender, err := e.Repo.GetParticipantTx(ctx, tx, opts.SenderID)
	if err != nil {
		return domain.Message{}, domain.Settings{}, fmt.Errorf("sender: %w", err)
	}
	if sender.ConflictID != opts.ConflictID {
		return domain.Message{}, domain.Settings{}, fmt.Errorf("sender: %w", domain.ErrNotFound)
	}
	if sender.Status == "left" || sender.Status == "invited" {
		return domain.Message{}, domain.Settings{}, fmt.Errorf("%w: sender is %s", domain.ErrInvalidStateTransition, sender.Status)
	}

	participants, err := e.Repo.ListParticipantsTx(ctx, tx, opts.ConflictID)
	if err != nil {
		return domain.Message{}, domain.Settings{}, err
	}
	now := e.timestamp()
	m := domain.Message{
		ID:         uuid.NewString(),
		ConflictID: opts.ConflictID,
		SessionID:  s.ID,
		SenderID:   opts.SenderID,
		Type:       opts.Type,
		Content:    opts.Content,
		Mentions:   extractMentions(opts.Content, participants),
		TS:         now,
	}
	if err := e.Repo.InsertMessage(ctx, tx, m); err != nil {
		return domain.Message{}, domain.Settings{}, err
	}

	if s.Metrics.ContributionCount == nil {
		s.Metrics.ContributionCount = map[string]int{}
	}
	if s.Metrics.EngagementScore == nil {
		s.Metrics.EngagementScore = map[string]int{}
	}
	s.Metrics.ContributionCount[opts.SenderID]++
	score := s.Metrics.EngagementScore[opts.SenderID]
	if score == 0 {
		score = sender.Engagement
	}
	score += 2
	if score > 100 {
		score = 100
	}
	s.Metrics.EngagementScore[opts.SenderID] = score
	if err := e.Repo.UpdateSessionTx(ctx, tx, s); err != nil {
		return domain.Message{}, domain.Settings{}, err
	}

	sender.LastActiveAt = &now
	sender.Engagement = score
	if opts.Emotion != nil {
		if err := e.Repo.AppendJourneyTx(ctx, tx, s.ID, domain.EmotionalMoment{
			TS:            now,
			ParticipantID: opts.SenderID,
			Emotion:       opts.Emotion.Emotion,
			Intensity:     opts.Emotion.Intensity,
		}); err != nil {
			return domain.Message{}, domain.Settings{}, err
		}
		if sender.CurrentEmotions == nil {
			sender.CurrentEmotions = map[string]float64{}
		}
		sender.CurrentEmotions[opts.Emotion.Emotion] = opts.Emotion.Intensity
	}
	if err := e.Repo.UpdateParticipantTx(ctx, tx, sender); err != nil {
		return domain.Message{}, domain.Settings{}, err
	}
	if err := e.Events.Append(ctx, tx, "message_posted", c.ID, "message", m.ID, opts.SenderID, events.EventPayload{
		"session_id": s.ID, "type": m.Type,
	}); err != nil {
		return domain.Message{}, domain.Settings{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, domain.Settings{}, err
	}
	return m, c.Settings, nil
}

// enrichAndRecompute runs after the message committed: best-effort
// emotion scoring, then a fresh dynamics snapshot. Failures are logged
// and dropped; the message already stands.
func (e Engine) enrichAndRecompute(m domain.Message, settings domain.Settings) {
	ctx := context.Background()
	if e.Emotion != nil && settings.EmotionMonitoring && m.Type != "system" {
		if emotions, err := e.Emotion.Analyze(ctx, m.Content); err != nil {
			log.Printf("emotion: analyze message %s failed: %v", m.ID, err)
		} else if len(emotions) > 0 {
			if err := e.Repo.SetMessageEmotions(ctx, m.ID, emotions); err != nil {
				log.Printf("emotion: store message %s failed: %v", m.ID, err)
			}
		}
	}
	if err := e.RefreshDynamics(ctx, m.ConflictID); err != nil {
		log.Printf("dynamics: recompute for conflict %s failed: %v", m.ConflictID, err)
	}
}

// RefreshDynamics recomputes and persists the conflict's dynamics
// snapshot from the latest session's data.
func (e Engine) RefreshDynamics(ctx context.Context, conflictID string) error {
	unlock := e.lockConflict(conflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetConflictTx(ctx, tx, conflictID)
	if err != nil {
		return err
	}
	s, err := e.Repo.OpenSessionTx(ctx, tx, conflictID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	d, err := e.recomputeDynamicsTx(ctx, tx, c, s)
	if err != nil {
		return err
	}
	c.Dynamics = d
	c.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateConflictTx(ctx, tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

// extractMentions resolves @name tokens against participant names.
func extractMentions(content string, participants []domain.Participant) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	byName := map[string]string{}
	for _, p := range participants {
		byName[strings.ToLower(p.Name)] = p.ID
	}
	var mentions []string
	seen := map[string]bool{}
	for _, m := range matches {
		if id, ok := byName[strings.ToLower(m[1])]; ok && !seen[id] {
			mentions = append(mentions, id)
			seen[id] = true
		}
	}
	return mentions
}
