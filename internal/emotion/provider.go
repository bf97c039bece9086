// Package emotion integrates the external emotion analysis service.
// Enrichment is best effort: any failure means the message simply
// carries no emotion data.
package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"concord/internal/config"
)

// Provider scores a piece of text per emotion on a 0-100 scale.
type Provider interface {
	Analyze(ctx context.Context, text string) (map[string]float64, error)
}

// HTTPProvider posts text to a scoring endpoint.
type HTTPProvider struct {
	URL    string
	Client *http.Client
}

// NewFromConfig returns nil when no endpoint is configured, which
// callers treat as enrichment disabled.
func NewFromConfig(cfg config.EmotionConfig) *HTTPProvider {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	timeout := 5 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &HTTPProvider{
		URL:    cfg.URL,
		Client: &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Emotions map[string]float64 `json:"emotions"`
}

func (p *HTTPProvider) Analyze(ctx context.Context, text string) (map[string]float64, error) {
	data, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("emotion service status %d", res.StatusCode)
	}
	var out analyzeResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Emotions, nil
}
