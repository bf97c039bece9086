package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"concord/internal/config"
	"concord/internal/db"
	"concord/internal/domain"
	"concord/internal/engine"
	"concord/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) createConflict(t *testing.T, opts engine.ConflictCreateOptions) domain.Conflict {
	t.Helper()
	if opts.Title == "" {
		opts.Title = "Noise dispute"
	}
	if opts.CreatorName == "" {
		opts.CreatorName = "Alice"
	}
	if opts.CreatorID == "" {
		opts.CreatorID = "alice"
	}
	c, err := env.Engine.CreateConflict(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}
	return c
}

func (env testEnv) addJoined(t *testing.T, conflictID, id, name string) domain.Participant {
	t.Helper()
	p, err := env.Engine.AddParticipant(env.Ctx, engine.ParticipantAddOptions{
		ConflictID: conflictID, ID: id, Name: name,
	})
	if err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	p, err = env.Engine.ActivateParticipant(env.Ctx, conflictID, p.ID, p.ID)
	if err != nil {
		t.Fatalf("activate %s: %v", name, err)
	}
	return p
}

func TestCreateConflictSeedsCreator(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	if c.Status != "setup" {
		t.Fatalf("status = %s, want setup", c.Status)
	}
	if c.Category != "other" || c.Intensity != "medium" {
		t.Fatalf("defaults not applied: %s/%s", c.Category, c.Intensity)
	}
	if c.Settings.MaxParticipants != 8 {
		t.Fatalf("max participants = %d, want config default 8", c.Settings.MaxParticipants)
	}
	if c.Dynamics.TrustLevel != "low" || c.Dynamics.EmotionalVolatility != "stable" {
		t.Fatalf("unexpected initial dynamics: %+v", c.Dynamics)
	}
	if len(c.Participants) != 1 {
		t.Fatalf("participants = %d, want 1", len(c.Participants))
	}
	creator := c.Participants[0]
	if creator.Role != "primary" || creator.Status != "joined" || creator.JoinedAt == nil {
		t.Fatalf("creator not joined primary: %+v", creator)
	}
}

func TestParticipantCapacityCountsEveryRecord(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{
		Settings: &domain.Settings{MaxParticipants: 3},
	})
	env.addJoined(t, c.ID, "bob", "Bob")
	if _, err := env.Engine.AddParticipant(env.Ctx, engine.ParticipantAddOptions{
		ConflictID: c.ID, ID: "carol", Name: "Carol",
	}); err != nil {
		t.Fatalf("third participant should fit: %v", err)
	}
	_, err := env.Engine.AddParticipant(env.Ctx, engine.ParticipantAddOptions{
		ConflictID: c.ID, ID: "dave", Name: "Dave",
	})
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}

	// a removed participant keeps occupying a slot
	if _, err := env.Engine.RemoveParticipant(env.Ctx, c.ID, "carol", "carol"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, err = env.Engine.AddParticipant(env.Ctx, engine.ParticipantAddOptions{
		ConflictID: c.ID, ID: "dave", Name: "Dave",
	})
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("after removal err = %v, want ErrCapacityExceeded", err)
	}
}

func TestDuplicateParticipant(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	_, err := env.Engine.AddParticipant(env.Ctx, engine.ParticipantAddOptions{
		ConflictID: c.ID, Name: "ALICE",
	})
	if !errors.Is(err, domain.ErrDuplicateParticipant) {
		t.Fatalf("case-insensitive name err = %v, want ErrDuplicateParticipant", err)
	}
	_, err = env.Engine.AddParticipant(env.Ctx, engine.ParticipantAddOptions{
		ConflictID: c.ID, ID: "alice", Name: "Someone Else",
	})
	if !errors.Is(err, domain.ErrDuplicateParticipant) {
		t.Fatalf("same id err = %v, want ErrDuplicateParticipant", err)
	}
}

func TestActivateParticipant(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	p, err := env.Engine.AddParticipant(env.Ctx, engine.ParticipantAddOptions{
		ConflictID: c.ID, ID: "bob", Name: "Bob",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != "invited" {
		t.Fatalf("status = %s, want invited", p.Status)
	}
	p, err = env.Engine.ActivateParticipant(env.Ctx, c.ID, "bob", "bob")
	if err != nil || p.Status != "joined" || p.JoinedAt == nil {
		t.Fatalf("activate: %v, %+v", err, p)
	}
	// idempotent
	p, err = env.Engine.ActivateParticipant(env.Ctx, c.ID, "bob", "bob")
	if err != nil || p.Status != "joined" {
		t.Fatalf("re-activate: %v, status %s", err, p.Status)
	}
	if _, err := env.Engine.RemoveParticipant(env.Ctx, c.ID, "bob", "bob"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.ActivateParticipant(env.Ctx, c.ID, "bob", "bob")
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("activate after leave err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestRemoveParticipantKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	env.addJoined(t, c.ID, "bob", "Bob")
	p, err := env.Engine.RemoveParticipant(env.Ctx, c.ID, "bob", "bob")
	if err != nil || p.Status != "left" {
		t.Fatalf("remove: %v, status %s", err, p.Status)
	}
	got, err := env.Engine.Repo.GetParticipant(env.Ctx, "bob")
	if err != nil {
		t.Fatalf("record should survive removal: %v", err)
	}
	if got.Status != "left" {
		t.Fatalf("status = %s, want left", got.Status)
	}
}

func TestOpenSessionGuards(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})

	_, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice")
	if !errors.Is(err, domain.ErrInsufficientParticipants) {
		t.Fatalf("solo open err = %v, want ErrInsufficientParticipants", err)
	}

	env.addJoined(t, c.ID, "bob", "Bob")
	s, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.SessionNumber != 1 || s.Status != "open" || s.CurrentPhase != 0 {
		t.Fatalf("unexpected session: %+v", s)
	}
	if len(s.Attendees) != 2 {
		t.Fatalf("attendees = %d, want 2", len(s.Attendees))
	}

	// low initial trust inserts a trust-building phase after the opening
	if len(s.Agenda) < 2 || s.Agenda[1].ID != "trust_building" {
		t.Fatalf("agenda missing trust building: %+v", s.Agenda)
	}

	got, err := env.Engine.Repo.GetConflict(env.Ctx, c.ID)
	if err != nil || got.Status != "active" {
		t.Fatalf("conflict should be active after open: %v, %s", err, got.Status)
	}

	_, err = env.Engine.OpenSession(env.Ctx, c.ID, "", "alice")
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("second open err = %v, want ErrInvalidStateTransition", err)
	}

	if _, err := env.Engine.CloseSession(env.Ctx, c.ID, nil, "alice"); err != nil {
		t.Fatalf("close: %v", err)
	}
	s2, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice")
	if err != nil || s2.SessionNumber != 2 {
		t.Fatalf("reopen: %v, number %d", err, s2.SessionNumber)
	}
}

func TestEmptyDescriptionsPersist(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	got, err := env.Engine.Repo.GetConflict(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("get conflict: %v", err)
	}
	if got.Description != "" {
		t.Fatalf("description = %q, want empty", got.Description)
	}
	if _, err := env.Engine.AddGoal(env.Ctx, c.ID, "Name the core issue", "", "medium", "alice"); err != nil {
		t.Fatalf("goal without description: %v", err)
	}
	goals, err := env.Engine.Repo.ListGoals(env.Ctx, c.ID)
	if err != nil || len(goals) != 1 {
		t.Fatalf("goals: %v, %d", err, len(goals))
	}
	if goals[0].Description != "" {
		t.Fatalf("goal description = %q, want empty", goals[0].Description)
	}
}

func TestOpenSessionPicksLargeGroupFlow(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	for i := 0; i < 7; i++ {
		env.addJoined(t, c.ID, fmt.Sprintf("p%d", i), fmt.Sprintf("Person %d", i))
	}
	s, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(s.Attendees) != 8 {
		t.Fatalf("attendees = %d, want 8", len(s.Attendees))
	}
	if s.Agenda[0].Name != "Opening plenary" {
		t.Fatalf("agenda[0] = %q, want the large-group opening", s.Agenda[0].Name)
	}
}

func TestAdvancePhaseClosesAtAgendaEnd(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	env.addJoined(t, c.ID, "bob", "Bob")
	s, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice")
	if err != nil {
		t.Fatal(err)
	}

	phases := len(s.Agenda)
	var last domain.Session
	for i := 0; i < phases; i++ {
		cur, result, err := env.Engine.AdvancePhase(env.Ctx, c.ID, "alice")
		if err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		if result.PhaseID != s.Agenda[i].ID {
			t.Fatalf("advance %d recorded %s, want %s", i, result.PhaseID, s.Agenda[i].ID)
		}
		if cur.CurrentPhase != i+1 {
			t.Fatalf("advance %d current = %d", i, cur.CurrentPhase)
		}
		last = cur
	}
	if last.Status != "closed" {
		t.Fatalf("session should auto-close, status = %s", last.Status)
	}
	if len(last.PhaseResults) != phases {
		t.Fatalf("results = %d, want %d", len(last.PhaseResults), phases)
	}
	// no agreements, seeded engagement 50, no satisfaction: base score
	if last.Effectiveness != 50 {
		t.Fatalf("effectiveness = %d, want 50", last.Effectiveness)
	}

	_, _, err = env.Engine.AdvancePhase(env.Ctx, c.ID, "alice")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("advance after close err = %v, want ErrNotFound", err)
	}
}

func TestCloseSessionSatisfactionRaisesScore(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	env.addJoined(t, c.ID, "bob", "Bob")
	if _, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice"); err != nil {
		t.Fatal(err)
	}
	s, err := env.Engine.CloseSession(env.Ctx, c.ID, map[string]int{"alice": 9, "bob": 9}, "alice")
	if err != nil {
		t.Fatal(err)
	}
	// 50 base + 5 * (9 - 5) satisfaction lift
	if s.Effectiveness != 70 {
		t.Fatalf("effectiveness = %d, want 70", s.Effectiveness)
	}
	if s.EndTime == nil || s.ActualDuration == nil {
		t.Fatalf("close should stamp end: %+v", s)
	}
}

func TestConsensusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	env.addJoined(t, c.ID, "bob", "Bob")
	env.addJoined(t, c.ID, "carol", "Carol")

	a, err := env.Engine.ProposeAgreement(env.Ctx, engine.AgreementProposeOptions{
		ConflictID: c.ID, Title: "Quiet hours after 22:00", ProposedBy: "alice",
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != "proposed" {
		t.Fatalf("status = %s, want proposed while votes are missing", a.Status)
	}
	if len(a.AgreedBy) != 1 || a.AgreedBy[0] != "alice" {
		t.Fatalf("proposer vote missing: %+v", a.AgreedBy)
	}

	if _, err := env.Engine.CastVote(env.Ctx, c.ID, a.ID, "bob", "agree"); err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.CastVote(env.Ctx, c.ID, a.ID, "carol", "disagree")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != "negotiating" {
		t.Fatalf("status = %s, want negotiating with an objection standing", a.Status)
	}
	if len(a.ObjectedBy) != 1 || a.ObjectedBy[0] != "carol" {
		t.Fatalf("objection not recorded: %+v", a.ObjectedBy)
	}

	// a changed mind replaces the earlier ballot
	a, err = env.Engine.CastVote(env.Ctx, c.ID, a.ID, "carol", "agree")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != "agreed" || a.FinalizedAt == nil {
		t.Fatalf("status = %s finalized=%v, want agreed", a.Status, a.FinalizedAt)
	}
	if len(a.ObjectedBy) != 0 || len(a.AgreedBy) != 3 {
		t.Fatalf("votes not replaced: agreed=%v objected=%v", a.AgreedBy, a.ObjectedBy)
	}

	_, err = env.Engine.CastVote(env.Ctx, c.ID, a.ID, "bob", "disagree")
	if !errors.Is(err, domain.ErrAgreementFinalized) {
		t.Fatalf("vote after finalize err = %v, want ErrAgreementFinalized", err)
	}

	a, err = env.Engine.MarkAgreement(env.Ctx, c.ID, a.ID, "implemented", "alice")
	if err != nil || a.Status != "implemented" {
		t.Fatalf("mark implemented: %v, %s", err, a.Status)
	}
	_, err = env.Engine.MarkAgreement(env.Ctx, c.ID, a.ID, "agreed", "alice")
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("mark back err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestAbstentionsDoNotBlock(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	env.addJoined(t, c.ID, "bob", "Bob")
	env.addJoined(t, c.ID, "carol", "Carol")

	a, err := env.Engine.ProposeAgreement(env.Ctx, engine.AgreementProposeOptions{
		ConflictID: c.ID, Title: "Shared cleaning rota", ProposedBy: "alice",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CastVote(env.Ctx, c.ID, a.ID, "bob", "abstain"); err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.CastVote(env.Ctx, c.ID, a.ID, "carol", "abstain")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != "agreed" {
		t.Fatalf("status = %s, want agreed when nobody objects", a.Status)
	}
	if len(a.Abstained) != 2 {
		t.Fatalf("abstained = %v", a.Abstained)
	}
}

func TestProposerMustBePresent(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	p, err := env.Engine.AddParticipant(env.Ctx, engine.ParticipantAddOptions{
		ConflictID: c.ID, ID: "bob", Name: "Bob",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.ProposeAgreement(env.Ctx, engine.AgreementProposeOptions{
		ConflictID: c.ID, Title: "x", ProposedBy: p.ID,
	})
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("invited proposer err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestPostMessageUpdatesMetrics(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	env.addJoined(t, c.ID, "bob", "Bob")

	_, err := env.Engine.PostMessage(env.Ctx, engine.MessageOptions{
		ConflictID: c.ID, SenderID: "bob", Content: "hello",
	})
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("message without session err = %v, want ErrInvalidStateTransition", err)
	}

	if _, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice"); err != nil {
		t.Fatal(err)
	}
	m, err := env.Engine.PostMessage(env.Ctx, engine.MessageOptions{
		ConflictID: c.ID, SenderID: "bob", Content: "I hear you @Alice",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Mentions) != 1 || m.Mentions[0] != "alice" {
		t.Fatalf("mentions = %v, want [alice]", m.Mentions)
	}
	s, err := env.Engine.CurrentSession(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Metrics.ContributionCount["bob"] != 1 {
		t.Fatalf("contributions = %d, want 1", s.Metrics.ContributionCount["bob"])
	}
	if s.Metrics.EngagementScore["bob"] != 52 {
		t.Fatalf("engagement = %d, want 52", s.Metrics.EngagementScore["bob"])
	}

	p, err := env.Engine.AddParticipant(env.Ctx, engine.ParticipantAddOptions{
		ConflictID: c.ID, ID: "dave", Name: "Dave",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.PostMessage(env.Ctx, engine.MessageOptions{
		ConflictID: c.ID, SenderID: p.ID, Content: "can I talk",
	})
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("invited sender err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestEmotionJourneyDrivesVolatility(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	env.addJoined(t, c.ID, "bob", "Bob")
	if _, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice"); err != nil {
		t.Fatal(err)
	}
	intensities := []float64{20, 25, 80, 15, 90}
	for i, v := range intensities {
		_, err := env.Engine.PostMessage(env.Ctx, engine.MessageOptions{
			ConflictID: c.ID, SenderID: "bob", Content: fmt.Sprintf("msg %d", i),
			Emotion: &engine.EmotionPoint{Emotion: "frustration", Intensity: v},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := env.Engine.RefreshDynamics(env.Ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Repo.GetConflict(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Dynamics.EmotionalVolatility != "high" {
		t.Fatalf("volatility = %s, want high", got.Dynamics.EmotionalVolatility)
	}
	if got.Dynamics.OverallMood != "hostile" {
		t.Fatalf("mood = %s, want hostile from pure negative intensity", got.Dynamics.OverallMood)
	}
}

func TestConflictStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	env.addJoined(t, c.ID, "bob", "Bob")

	c2, err := env.Engine.UpdateConflictStatus(env.Ctx, c.ID, "active", "alice")
	if err != nil || c2.Status != "active" {
		t.Fatalf("to active: %v", err)
	}
	if _, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.UpdateConflictStatus(env.Ctx, c.ID, "paused", "alice")
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("pause with open session err = %v, want ErrInvalidStateTransition", err)
	}
	if _, err := env.Engine.CloseSession(env.Ctx, c.ID, nil, "alice"); err != nil {
		t.Fatal(err)
	}
	c2, err = env.Engine.UpdateConflictStatus(env.Ctx, c.ID, "resolved", "alice")
	if err != nil || c2.Status != "resolved" || c2.ResolvedAt == nil {
		t.Fatalf("to resolved: %v, %+v", err, c2)
	}
	_, err = env.Engine.UpdateConflictStatus(env.Ctx, c.ID, "active", "alice")
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("resolved is terminal, err = %v", err)
	}
	_, err = env.Engine.OpenSession(env.Ctx, c.ID, "", "alice")
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("open on resolved err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestAgreementsLiftTrust(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	env.addJoined(t, c.ID, "bob", "Bob")
	if _, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice"); err != nil {
		t.Fatal(err)
	}
	a, err := env.Engine.ProposeAgreement(env.Ctx, engine.AgreementProposeOptions{
		ConflictID: c.ID, Title: "Take turns with the kitchen", ProposedBy: "alice",
	})
	if err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.CastVote(env.Ctx, c.ID, a.ID, "bob", "agree")
	if err != nil || a.Status != "agreed" {
		t.Fatalf("finalize: %v, %s", err, a.Status)
	}
	s, err := env.Engine.CloseSession(env.Ctx, c.ID, nil, "alice")
	if err != nil {
		t.Fatal(err)
	}
	// 50 base + 10 for the one agreement reached in session
	if s.Effectiveness != 60 {
		t.Fatalf("effectiveness = %d, want 60", s.Effectiveness)
	}
	got, err := env.Engine.Repo.GetConflict(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	// 1/1 agreements finalized reads as high trust
	if got.Dynamics.TrustLevel != "high" {
		t.Fatalf("trust = %s, want high", got.Dynamics.TrustLevel)
	}
}

func TestGetConflictAssemblesAggregate(t *testing.T) {
	env := newTestEnv(t)
	c := env.createConflict(t, engine.ConflictCreateOptions{})
	env.addJoined(t, c.ID, "bob", "Bob")
	if _, err := env.Engine.AddGoal(env.Ctx, c.ID, "Agree on quiet hours", "", "high", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CloseSession(env.Ctx, c.ID, nil, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.OpenSession(env.Ctx, c.ID, "", "alice"); err != nil {
		t.Fatal(err)
	}

	got, err := env.Engine.GetConflict(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Participants) != 2 {
		t.Fatalf("participants = %d", len(got.Participants))
	}
	if len(got.ResolutionGoals) != 1 {
		t.Fatalf("goals = %d", len(got.ResolutionGoals))
	}
	if got.CurrentSession == nil || got.CurrentSession.SessionNumber != 2 {
		t.Fatalf("current session: %+v", got.CurrentSession)
	}
	if len(got.SessionHistory) != 1 {
		t.Fatalf("history = %d", len(got.SessionHistory))
	}
}
