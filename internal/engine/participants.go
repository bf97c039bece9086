package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"concord/internal/domain"
	"concord/internal/events"
)

// ParticipantAddOptions are parameters for adding a participant.
type ParticipantAddOptions struct {
	ConflictID  string
	ID          string
	Name        string
	Role        string
	Perspective domain.Perspective
	ActorID     string
}

// AddParticipant registers a new invited participant, holding the
// capacity and uniqueness invariants.
func (e Engine) AddParticipant(ctx context.Context, opts ParticipantAddOptions) (domain.Participant, error) {
	if opts.Name == "" {
		return domain.Participant{}, errors.New("name is required")
	}
	if opts.Role == "" {
		opts.Role = "primary"
	}
	unlock := e.lockConflict(opts.ConflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Participant{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetConflictTx(ctx, tx, opts.ConflictID)
	if err != nil {
		return domain.Participant{}, err
	}
	existing, err := e.Repo.ListParticipantsTx(ctx, tx, c.ID)
	if err != nil {
		return domain.Participant{}, err
	}
	if len(existing) >= c.Settings.MaxParticipants {
		return domain.Participant{}, fmt.Errorf("%w: limit %d", domain.ErrCapacityExceeded, c.Settings.MaxParticipants)
	}
	for _, p := range existing {
		if p.ID == opts.ID || strings.EqualFold(p.Name, opts.Name) {
			return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrDuplicateParticipant, opts.Name)
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	p := domain.Participant{
		ID:          id,
		ConflictID:  c.ID,
		Name:        opts.Name,
		Role:        opts.Role,
		Status:      "invited",
		Perspective: opts.Perspective,
		Engagement:  50,
	}
	if err := e.Repo.InsertParticipant(ctx, tx, p); err != nil {
		return domain.Participant{}, err
	}
	if err := e.Events.Append(ctx, tx, "participant_added", c.ID, "participant", p.ID, opts.ActorID, events.EventPayload{
		"name": p.Name, "role": p.Role,
	}); err != nil {
		return domain.Participant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

// ActivateParticipant moves an invited participant to joined; calling it
// again is a no-op beyond refreshing last activity.
func (e Engine) ActivateParticipant(ctx context.Context, conflictID, participantID, actorID string) (domain.Participant, error) {
	unlock := e.lockConflict(conflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Participant{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetParticipantTx(ctx, tx, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	if p.ConflictID != conflictID {
		return domain.Participant{}, domain.ErrNotFound
	}
	now := e.timestamp()
	joined := false
	switch p.Status {
	case "invited":
		p.Status = "joined"
		p.JoinedAt = &now
		joined = true
	case "inactive":
		p.Status = "active"
	case "joined", "active":
		// already in; refresh activity below
	case "left":
		return domain.Participant{}, fmt.Errorf("%w: participant has left", domain.ErrInvalidStateTransition)
	}
	p.LastActiveAt = &now
	if err := e.Repo.UpdateParticipantTx(ctx, tx, p); err != nil {
		return domain.Participant{}, err
	}
	if joined {
		if err := e.Events.Append(ctx, tx, "participant_joined", conflictID, "participant", p.ID, actorID, events.EventPayload{
			"name": p.Name,
		}); err != nil {
			return domain.Participant{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

// RemoveParticipant marks the participant left. The record stays so
// history remains attributable.
func (e Engine) RemoveParticipant(ctx context.Context, conflictID, participantID, actorID string) (domain.Participant, error) {
	unlock := e.lockConflict(conflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Participant{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetParticipantTx(ctx, tx, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	if p.ConflictID != conflictID {
		return domain.Participant{}, domain.ErrNotFound
	}
	if p.Status == "left" {
		if err := tx.Commit(); err != nil {
			return domain.Participant{}, err
		}
		return p, nil
	}
	p.Status = "left"
	now := e.timestamp()
	p.LastActiveAt = &now
	if err := e.Repo.UpdateParticipantTx(ctx, tx, p); err != nil {
		return domain.Participant{}, err
	}
	if err := e.Events.Append(ctx, tx, "participant_left", conflictID, "participant", p.ID, actorID, events.EventPayload{
		"name": p.Name,
	}); err != nil {
		return domain.Participant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

// UpdatePerspective replaces a participant's stated perspective.
func (e Engine) UpdatePerspective(ctx context.Context, conflictID, participantID string, perspective domain.Perspective, actorID string) (domain.Participant, error) {
	unlock := e.lockConflict(conflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Participant{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetParticipantTx(ctx, tx, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	if p.ConflictID != conflictID {
		return domain.Participant{}, domain.ErrNotFound
	}
	if p.Status == "left" {
		return domain.Participant{}, fmt.Errorf("%w: participant has left", domain.ErrInvalidStateTransition)
	}
	p.Perspective = perspective
	now := e.timestamp()
	p.LastActiveAt = &now
	if err := e.Repo.UpdateParticipantTx(ctx, tx, p); err != nil {
		return domain.Participant{}, err
	}
	if err := e.Events.Append(ctx, tx, "perspective_updated", conflictID, "participant", p.ID, actorID, nil); err != nil {
		return domain.Participant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

func countEligible(participants []domain.Participant) int {
	n := 0
	for _, p := range participants {
		if p.Status == "joined" || p.Status == "active" {
			n++
		}
	}
	return n
}
