package engine

import (
	"context"
	"errors"
	"fmt"

	"database/sql"

	"github.com/google/uuid"

	"concord/internal/domain"
	"concord/internal/events"
)

// AgreementProposeOptions are parameters for proposing an agreement.
type AgreementProposeOptions struct {
	ConflictID string
	Title      string
	Terms      []string
	ProposedBy string
}

// ProposeAgreement records a new agreement; the proposer's agree vote is
// cast implicitly.
func (e Engine) ProposeAgreement(ctx context.Context, opts AgreementProposeOptions) (domain.Agreement, error) {
	if opts.Title == "" {
		return domain.Agreement{}, errors.New("title is required")
	}
	unlock := e.lockConflict(opts.ConflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agreement{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetConflictTx(ctx, tx, opts.ConflictID); err != nil {
		return domain.Agreement{}, err
	}
	proposer, err := e.Repo.GetParticipantTx(ctx, tx, opts.ProposedBy)
	if err != nil {
		return domain.Agreement{}, fmt.Errorf("proposer: %w", err)
	}
	if proposer.ConflictID != opts.ConflictID {
		return domain.Agreement{}, fmt.Errorf("proposer: %w", domain.ErrNotFound)
	}
	if proposer.Status != "joined" && proposer.Status != "active" {
		return domain.Agreement{}, fmt.Errorf("%w: proposer is %s", domain.ErrInvalidStateTransition, proposer.Status)
	}

	now := e.timestamp()
	a := domain.Agreement{
		ID:         uuid.NewString(),
		ConflictID: opts.ConflictID,
		Title:      opts.Title,
		Terms:      opts.Terms,
		Status:     "proposed",
		ProposedBy: opts.ProposedBy,
		CreatedAt:  now,
	}
	if s, err := e.Repo.OpenSessionTx(ctx, tx, opts.ConflictID); err == nil {
		a.SessionID = &s.ID
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Agreement{}, err
	}

	if err := e.Repo.InsertAgreement(ctx, tx, a); err != nil {
		return domain.Agreement{}, err
	}
	if err := e.Repo.ReplaceVoteTx(ctx, tx, a.ID, opts.ProposedBy, "agree", now); err != nil {
		return domain.Agreement{}, err
	}
	a, err = e.evaluateConsensusTx(ctx, tx, a.ID, opts.ConflictID)
	if err != nil {
		return domain.Agreement{}, err
	}
	if err := e.Events.Append(ctx, tx, "agreement_proposed", opts.ConflictID, "agreement", a.ID, opts.ProposedBy, events.EventPayload{
		"title": a.Title,
	}); err != nil {
		return domain.Agreement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Agreement{}, err
	}
	return a, nil
}

// CastVote replaces the participant's ballot and re-evaluates consensus
// in the same transaction.
func (e Engine) CastVote(ctx context.Context, conflictID, agreementID, participantID, choice string) (domain.Agreement, error) {
	vote := ""
	switch choice {
	case "agree":
		vote = "agree"
	case "disagree", "object":
		vote = "object"
	case "abstain":
		vote = "abstain"
	default:
		return domain.Agreement{}, fmt.Errorf("invalid choice %q", choice)
	}
	unlock := e.lockConflict(conflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agreement{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAgreementTx(ctx, tx, agreementID)
	if err != nil {
		return domain.Agreement{}, err
	}
	if a.ConflictID != conflictID {
		return domain.Agreement{}, domain.ErrNotFound
	}
	if a.Status == "agreed" || a.Status == "implemented" {
		return domain.Agreement{}, domain.ErrAgreementFinalized
	}
	voter, err := e.Repo.GetParticipantTx(ctx, tx, participantID)
	if err != nil {
		return domain.Agreement{}, fmt.Errorf("voter: %w", err)
	}
	if voter.ConflictID != conflictID {
		return domain.Agreement{}, fmt.Errorf("voter: %w", domain.ErrNotFound)
	}
	if voter.Status != "joined" && voter.Status != "active" {
		return domain.Agreement{}, fmt.Errorf("%w: voter is %s", domain.ErrInvalidStateTransition, voter.Status)
	}

	if err := e.Repo.ReplaceVoteTx(ctx, tx, agreementID, participantID, vote, e.timestamp()); err != nil {
		return domain.Agreement{}, err
	}
	a, err = e.evaluateConsensusTx(ctx, tx, agreementID, conflictID)
	if err != nil {
		return domain.Agreement{}, err
	}
	if err := e.Events.Append(ctx, tx, "vote_cast", conflictID, "agreement", agreementID, participantID, events.EventPayload{
		"choice": choice, "status": a.Status,
	}); err != nil {
		return domain.Agreement{}, err
	}
	if a.Status == "agreed" {
		if err := e.Events.Append(ctx, tx, "agreement_agreed", conflictID, "agreement", agreementID, participantID, events.EventPayload{
			"title": a.Title,
		}); err != nil {
			return domain.Agreement{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Agreement{}, err
	}
	return a, nil
}

// evaluateConsensusTx applies the consensus rule: once every joined or
// active participant has voted, any objection keeps the agreement in
// negotiation; a clean sheet with at least one agree finalizes it.
func (e Engine) evaluateConsensusTx(ctx context.Context, tx *sql.Tx, agreementID, conflictID string) (domain.Agreement, error) {
	a, err := e.Repo.GetAgreementTx(ctx, tx, agreementID)
	if err != nil {
		return a, err
	}
	participants, err := e.Repo.ListParticipantsTx(ctx, tx, conflictID)
	if err != nil {
		return a, err
	}
	total := countEligible(participants)
	voted := len(a.AgreedBy) + len(a.ObjectedBy) + len(a.Abstained)
	if total == 0 || voted < total {
		return a, nil
	}
	switch {
	case len(a.ObjectedBy) == 0 && len(a.AgreedBy) > 0:
		a.Status = "agreed"
		ts := e.timestamp()
		a.FinalizedAt = &ts
	case len(a.ObjectedBy) > 0:
		a.Status = "negotiating"
	default:
		return a, nil
	}
	if err := e.Repo.UpdateAgreementTx(ctx, tx, a); err != nil {
		return a, err
	}
	return a, nil
}

// MarkAgreement moves a finalized agreement through its afterlife
// (implemented, violated, modified).
func (e Engine) MarkAgreement(ctx context.Context, conflictID, agreementID, status, actorID string) (domain.Agreement, error) {
	allowed := map[string][]string{
		"agreed":   {"implemented", "violated", "modified"},
		"violated": {"modified"},
		"modified": {"implemented", "violated"},
	}
	unlock := e.lockConflict(conflictID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agreement{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAgreementTx(ctx, tx, agreementID)
	if err != nil {
		return domain.Agreement{}, err
	}
	if a.ConflictID != conflictID {
		return domain.Agreement{}, domain.ErrNotFound
	}
	ok := false
	for _, s := range allowed[a.Status] {
		if s == status {
			ok = true
			break
		}
	}
	if !ok {
		return domain.Agreement{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, a.Status, status)
	}
	a.Status = status
	if err := e.Repo.UpdateAgreementTx(ctx, tx, a); err != nil {
		return domain.Agreement{}, err
	}
	if err := e.Events.Append(ctx, tx, "agreement_status_changed", conflictID, "agreement", a.ID, actorID, events.EventPayload{
		"status": status,
	}); err != nil {
		return domain.Agreement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Agreement{}, err
	}
	return a, nil
}
