package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"concord/internal/config"
	"concord/internal/domain"
	"concord/internal/dynamics"
	"concord/internal/emotion"
	"concord/internal/events"
	"concord/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Emotion emotion.Provider
	Now     func() time.Time

	locks *lockTable
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		locks:  newLockTable(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// lockConflict serializes mutating operations per conflict id. The
// returned func releases the lock.
func (e Engine) lockConflict(id string) func() {
	l := e.locks.forConflict(id)
	l.Lock()
	return l.Unlock
}

// ConflictCreateOptions are parameters for creating a conflict.
type ConflictCreateOptions struct {
	Title       string
	Description string
	Category    string
	Intensity   string
	CreatorName string
	CreatorID   string
	Settings    *domain.Settings
}

// CreateConflict registers a new conflict in setup state; the creator
// joins immediately as the primary participant.
func (e Engine) CreateConflict(ctx context.Context, opts ConflictCreateOptions) (domain.Conflict, error) {
	if e.Config == nil {
		return domain.Conflict{}, errors.New("config not loaded")
	}
	if opts.Title == "" {
		return domain.Conflict{}, errors.New("title is required")
	}
	if opts.CreatorName == "" {
		return domain.Conflict{}, errors.New("creator name is required")
	}
	if opts.Category == "" {
		opts.Category = "other"
	}
	if opts.Intensity == "" {
		opts.Intensity = "medium"
	}
	now := e.timestamp()
	settings := e.defaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
		if settings.MaxParticipants == 0 {
			settings.MaxParticipants = e.Config.Defaults.MaxParticipants
		}
		if settings.MaxSessionDuration == 0 {
			settings.MaxSessionDuration = e.Config.Defaults.MaxSessionDuration
		}
		if settings.ModerationLevel == "" {
			settings.ModerationLevel = e.Config.Defaults.ModerationLevel
		}
	}
	c := domain.Conflict{
		ID:          uuid.NewString(),
		Title:       opts.Title,
		Description: opts.Description,
		Category:    opts.Category,
		Status:      "setup",
		Intensity:   opts.Intensity,
		Dynamics:    dynamics.Initial(),
		Settings:    settings,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	creatorID := opts.CreatorID
	if creatorID == "" {
		creatorID = uuid.NewString()
	}
	joined := now
	creator := domain.Participant{
		ID:           creatorID,
		ConflictID:   c.ID,
		Name:         opts.CreatorName,
		Role:         "primary",
		Status:       "joined",
		Engagement:   50,
		JoinedAt:     &joined,
		LastActiveAt: &joined,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Conflict{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertConflict(ctx, tx, c); err != nil {
		return domain.Conflict{}, fmt.Errorf("insert conflict: %w", err)
	}
	if err := e.Repo.InsertParticipant(ctx, tx, creator); err != nil {
		return domain.Conflict{}, fmt.Errorf("insert creator: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "conflict_created", c.ID, "conflict", c.ID, creator.ID, events.EventPayload{
		"title": c.Title, "category": c.Category, "intensity": c.Intensity,
	}); err != nil {
		return domain.Conflict{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Conflict{}, err
	}
	c.Participants = []domain.Participant{creator}
	return c, nil
}

func (e Engine) defaultSettings() domain.Settings {
	return domain.Settings{
		MaxParticipants:    e.Config.Defaults.MaxParticipants,
		MaxSessionDuration: e.Config.Defaults.MaxSessionDuration,
		SpeakingTimeLimit:  e.Config.Defaults.SpeakingTimeLimit,
		ModerationLevel:    e.Config.Defaults.ModerationLevel,
		EmotionMonitoring:  e.Config.Defaults.EmotionMonitoring,
	}
}

// GetConflict loads the full aggregate, journey included for the open
// session.
func (e Engine) GetConflict(ctx context.Context, id string) (domain.Conflict, error) {
	c, err := e.Repo.LoadConflict(ctx, id)
	if err != nil {
		return c, err
	}
	if c.CurrentSession != nil {
		journey, err := e.Repo.ListJourney(ctx, c.CurrentSession.ID)
		if err != nil {
			return c, err
		}
		c.CurrentSession.Journey = journey
	}
	return c, nil
}

// UpdateConflictStatus moves a conflict through its lifecycle.
func (e Engine) UpdateConflictStatus(ctx context.Context, conflictID, status, actorID string) (domain.Conflict, error) {
	unlock := e.lockConflict(conflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Conflict{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetConflictTx(ctx, tx, conflictID)
	if err != nil {
		return domain.Conflict{}, err
	}
	if err := ensureConflictTransition(c.Status, status); err != nil {
		return domain.Conflict{}, err
	}
	if status != "active" {
		if _, err := e.Repo.OpenSessionTx(ctx, tx, conflictID); err == nil {
			return domain.Conflict{}, fmt.Errorf("%w: close the open session first", domain.ErrInvalidStateTransition)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return domain.Conflict{}, err
		}
	}
	c.Status = status
	c.UpdatedAt = e.timestamp()
	if status == "resolved" {
		ts := c.UpdatedAt
		c.ResolvedAt = &ts
	}
	if err := e.Repo.UpdateConflictTx(ctx, tx, c); err != nil {
		return domain.Conflict{}, err
	}
	if err := e.Events.Append(ctx, tx, "conflict_status_changed", c.ID, "conflict", c.ID, actorID, events.EventPayload{"status": status}); err != nil {
		return domain.Conflict{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Conflict{}, err
	}
	c.Version++
	return c, nil
}

func ensureConflictTransition(old, new string) error {
	if old == new {
		return nil
	}
	allowed := map[string][]string{
		"setup":     {"active", "escalated"},
		"active":    {"paused", "resolved", "escalated"},
		"paused":    {"active", "resolved", "escalated"},
		"escalated": {"active", "resolved"},
		"resolved":  {},
	}
	for _, s := range allowed[old] {
		if s == new {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, old, new)
}

// AddGoal records a resolution goal on the conflict.
func (e Engine) AddGoal(ctx context.Context, conflictID, title, description, priority, actorID string) (domain.ResolutionGoal, error) {
	unlock := e.lockConflict(conflictID)
	defer unlock()

	if title == "" {
		return domain.ResolutionGoal{}, errors.New("title is required")
	}
	if priority == "" {
		priority = "medium"
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ResolutionGoal{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetConflictTx(ctx, tx, conflictID); err != nil {
		return domain.ResolutionGoal{}, err
	}
	g := domain.ResolutionGoal{
		ID:          uuid.NewString(),
		ConflictID:  conflictID,
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      "proposed",
		CreatedAt:   e.timestamp(),
	}
	if err := e.Repo.InsertGoal(ctx, tx, g); err != nil {
		return domain.ResolutionGoal{}, err
	}
	if err := e.Events.Append(ctx, tx, "goal_added", conflictID, "goal", g.ID, actorID, events.EventPayload{"title": g.Title}); err != nil {
		return domain.ResolutionGoal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ResolutionGoal{}, err
	}
	return g, nil
}
