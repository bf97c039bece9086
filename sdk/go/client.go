package concordsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Concord HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Conflict represents the API conflict model (partial).
type Conflict struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Status    string `json:"status"`
	Intensity string `json:"intensity"`
}

// Participant represents a conflict member.
type Participant struct {
	ID         string `json:"id"`
	ConflictID string `json:"conflict_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	Engagement int    `json:"engagement"`
}

// Session represents a mediation sitting (partial).
type Session struct {
	ID            string `json:"id"`
	ConflictID    string `json:"conflict_id"`
	SessionNumber int    `json:"session_number"`
	Status        string `json:"status"`
	CurrentPhase  int    `json:"current_phase"`
	Effectiveness int    `json:"effectiveness"`
}

// Agreement represents a proposal and its votes.
type Agreement struct {
	ID         string   `json:"id"`
	ConflictID string   `json:"conflict_id"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	AgreedBy   []string `json:"agreed_by"`
	ObjectedBy []string `json:"objected_by"`
}

// Message represents a session message.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	SenderID  string `json:"sender_id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	TS        string `json:"ts"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ConflictID string         `json:"conflict_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateConflict creates a conflict; the creator is enrolled as its first
// participant.
func (c *Client) CreateConflict(ctx context.Context, title, category, creatorName string) (Conflict, error) {
	body := map[string]any{
		"title":        title,
		"category":     category,
		"creator_name": creatorName,
	}
	var resp Conflict
	err := c.do(ctx, http.MethodPost, "v1/conflicts", body, &resp)
	return resp, err
}

// AddParticipant invites a participant to a conflict.
func (c *Client) AddParticipant(ctx context.Context, conflictID, name, role string) (Participant, error) {
	body := map[string]any{
		"name": name,
		"role": role,
	}
	var resp Participant
	err := c.do(ctx, http.MethodPost, c.conflictPath(conflictID, "participants"), body, &resp)
	return resp, err
}

// ActivateParticipant marks an invited participant as joined.
func (c *Client) ActivateParticipant(ctx context.Context, conflictID, participantID string) (Participant, error) {
	var resp Participant
	endpoint := c.conflictPath(conflictID, fmt.Sprintf("participants/%s/activate", url.PathEscape(participantID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// OpenSession opens a mediation session.
func (c *Client) OpenSession(ctx context.Context, conflictID string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, c.conflictPath(conflictID, "sessions"), map[string]any{}, &resp)
	return resp, err
}

// PostMessage posts a message in the open session.
func (c *Client) PostMessage(ctx context.Context, conflictID, senderID, content string) (Message, error) {
	body := map[string]any{
		"sender_id": senderID,
		"content":   content,
	}
	var resp Message
	err := c.do(ctx, http.MethodPost, c.conflictPath(conflictID, "sessions/current/messages"), body, &resp)
	return resp, err
}

// ProposeAgreement proposes an agreement.
func (c *Client) ProposeAgreement(ctx context.Context, conflictID, title, proposedBy string, terms []string) (Agreement, error) {
	body := map[string]any{
		"title":       title,
		"terms":       terms,
		"proposed_by": proposedBy,
	}
	var resp Agreement
	err := c.do(ctx, http.MethodPost, c.conflictPath(conflictID, "agreements"), body, &resp)
	return resp, err
}

// CastVote votes on an agreement.
func (c *Client) CastVote(ctx context.Context, conflictID, agreementID, participantID, choice string) (Agreement, error) {
	body := map[string]any{
		"participant_id": participantID,
		"choice":         choice,
	}
	var resp Agreement
	endpoint := c.conflictPath(conflictID, fmt.Sprintf("agreements/%s/votes", url.PathEscape(agreementID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Events returns recent events for a conflict.
func (c *Client) Events(ctx context.Context, conflictID string, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, conflictID, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, conflictID string, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.conflictPath(conflictID, "events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) conflictPath(conflictID, p string) string {
	return fmt.Sprintf("v1/conflicts/%s/%s", url.PathEscape(conflictID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
