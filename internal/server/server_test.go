package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"concord/internal/config"
	"concord/internal/db"
	"concord/internal/domain"
	"concord/internal/engine"
	"concord/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v1"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func createConflict(t *testing.T, srv *testServer) domain.Conflict {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/conflicts", map[string]any{
		"title":        "Noise dispute",
		"creator_name": "Alice",
		"creator_id":   "alice",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create conflict: %d %s", res.StatusCode, string(data))
	}
	var c domain.Conflict
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatalf("unmarshal conflict: %v", err)
	}
	return c
}

func addJoined(t *testing.T, srv *testServer, conflictID, id, name string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/conflicts/"+conflictID+"/participants", map[string]any{
		"id":   id,
		"name": name,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add participant: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/conflicts/"+conflictID+"/participants/"+id+"/activate", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("activate participant: %d %s", res.StatusCode, string(data))
	}
}

func TestMediationFlowEndToEnd(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	c := createConflict(t, srv)
	addJoined(t, srv, c.ID, "bob", "Bob")

	openRes, openBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/sessions", map[string]any{}, nil)
	if openRes.StatusCode != http.StatusCreated {
		t.Fatalf("open session: %d %s", openRes.StatusCode, string(openBody))
	}
	var session domain.Session
	if err := json.Unmarshal(openBody, &session); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if session.SessionNumber != 1 || len(session.Agenda) == 0 {
		t.Fatalf("unexpected session: %+v", session)
	}

	msgRes, msgBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/sessions/current/messages", map[string]any{
		"sender_id": "bob",
		"content":   "I would like quiet after ten",
	}, nil)
	if msgRes.StatusCode != http.StatusCreated {
		t.Fatalf("post message: %d %s", msgRes.StatusCode, string(msgBody))
	}

	propRes, propBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/agreements", map[string]any{
		"title":       "Quiet hours after 22:00",
		"proposed_by": "alice",
	}, nil)
	if propRes.StatusCode != http.StatusCreated {
		t.Fatalf("propose agreement: %d %s", propRes.StatusCode, string(propBody))
	}
	var agreement domain.Agreement
	_ = json.Unmarshal(propBody, &agreement)

	voteRes, voteBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/agreements/"+agreement.ID+"/votes", map[string]any{
		"participant_id": "bob",
		"choice":         "agree",
	}, nil)
	if voteRes.StatusCode != http.StatusOK {
		t.Fatalf("vote: %d %s", voteRes.StatusCode, string(voteBody))
	}
	var voted domain.Agreement
	if err := json.Unmarshal(voteBody, &voted); err != nil {
		t.Fatalf("unmarshal agreement: %v", err)
	}
	if voted.Status != "agreed" {
		t.Fatalf("agreement status = %s, want agreed", voted.Status)
	}

	var advance AdvancePhaseResponse
	for i := 0; i < len(session.Agenda); i++ {
		advRes, advBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/sessions/current/advance", nil, map[string]string{"X-Actor-Id": "alice"})
		if advRes.StatusCode != http.StatusOK {
			t.Fatalf("advance %d: %d %s", i, advRes.StatusCode, string(advBody))
		}
		if err := json.Unmarshal(advBody, &advance); err != nil {
			t.Fatalf("unmarshal advance: %v", err)
		}
	}
	if !advance.Closed {
		t.Fatalf("session should close after the last phase: %+v", advance)
	}
	if advance.Session.Effectiveness == 0 {
		t.Fatalf("effectiveness not computed: %+v", advance.Session)
	}

	getRes, getBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/conflicts/"+c.ID, nil, nil)
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get conflict: %d %s", getRes.StatusCode, string(getBody))
	}
	var full domain.Conflict
	_ = json.Unmarshal(getBody, &full)
	if full.Status != "active" || len(full.SessionHistory) != 1 {
		t.Fatalf("conflict after session: status=%s history=%d", full.Status, len(full.SessionHistory))
	}

	evRes, evBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/conflicts/"+c.ID+"/events?limit=100", nil, nil)
	if evRes.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", evRes.StatusCode, string(evBody))
	}
	var events paginatedEvents
	if err := json.Unmarshal(evBody, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	seen := map[string]bool{}
	for _, evt := range events.Items {
		seen[evt.Type] = true
	}
	for _, want := range []string{"conflict_created", "session_opened", "agreement_agreed", "session_closed"} {
		if !seen[want] {
			t.Fatalf("missing event %s in %v", want, seen)
		}
	}
}

func TestErrorEnvelopes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/conflicts/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("unknown conflict: %d %s", res.StatusCode, string(data))
	}

	c := createConflict(t, srv)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/sessions", map[string]any{}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity || errorCode(t, data) != "insufficient_participants" {
		t.Fatalf("solo session: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/participants", map[string]any{
		"name": "ALICE",
	}, nil)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "duplicate_participant" {
		t.Fatalf("duplicate: %d %s", res.StatusCode, string(data))
	}

	addJoined(t, srv, c.ID, "bob", "Bob")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/sessions", map[string]any{}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("open: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/sessions", map[string]any{}, nil)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "invalid_state_transition" {
		t.Fatalf("second open: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/agreements", map[string]any{
		"title":       "done deal",
		"proposed_by": "alice",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("propose: %d %s", res.StatusCode, string(data))
	}
	var agreement domain.Agreement
	_ = json.Unmarshal(data, &agreement)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/agreements/"+agreement.ID+"/votes", map[string]any{
		"participant_id": "bob",
		"choice":         "agree",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("vote: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/agreements/"+agreement.ID+"/votes", map[string]any{
		"participant_id": "alice",
		"choice":         "disagree",
	}, nil)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "agreement_finalized" {
		t.Fatalf("vote after finalize: %d %s", res.StatusCode, string(data))
	}
}

func TestCapacityAndListFilters(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts", map[string]any{
		"title":        "Tight room",
		"creator_name": "Alice",
		"category":     "workplace",
		"settings":     map[string]any{"max_participants": 2},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var c domain.Conflict
	_ = json.Unmarshal(data, &c)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/participants", map[string]any{
		"name": "Bob",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("second: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/participants", map[string]any{
		"name": "Carol",
	}, nil)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "capacity_exceeded" {
		t.Fatalf("over capacity: %d %s", res.StatusCode, string(data))
	}

	// a second conflict in another category for the filter check
	createConflict(t, srv)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/conflicts?category=workplace", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var page paginatedConflicts
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != c.ID {
		t.Fatalf("filtered list = %+v", page.Items)
	}
}

func TestPhaseCompletionEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	c := createConflict(t, srv)
	addJoined(t, srv, c.ID, "bob", "Bob")
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/sessions", map[string]any{}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("open: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/conflicts/"+c.ID+"/sessions/current/completion", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("completion: %d %s", res.StatusCode, string(data))
	}
	var completion PhaseCompletionResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		t.Fatalf("unmarshal completion: %v", err)
	}
	if completion.Phase.Type != "opening" {
		t.Fatalf("phase = %+v, want the opening", completion.Phase)
	}
	if completion.Complete {
		t.Fatalf("opening complete with no contributions: %+v", completion)
	}

	// both attendees speak, opening reaches 100%
	for _, sender := range []string{"alice", "bob"} {
		msgRes, msgBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/conflicts/"+c.ID+"/sessions/current/messages", map[string]any{
			"sender_id": sender,
			"content":   fmt.Sprintf("%s checking in", sender),
		}, nil)
		if msgRes.StatusCode != http.StatusCreated {
			t.Fatalf("message: %d %s", msgRes.StatusCode, string(msgBody))
		}
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/conflicts/"+c.ID+"/sessions/current/completion", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("completion: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &completion); err != nil {
		t.Fatalf("unmarshal completion: %v", err)
	}
	if !completion.Complete || completion.Percentage != 100 {
		t.Fatalf("completion = %+v, want complete", completion)
	}
}
