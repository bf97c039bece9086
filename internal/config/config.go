package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models concord.yml.
type Config struct {
	Defaults struct {
		MaxParticipants    int    `yaml:"max_participants"`
		MaxSessionDuration int    `yaml:"max_session_duration"`
		SpeakingTimeLimit  int    `yaml:"speaking_time_limit"`
		ModerationLevel    string `yaml:"moderation_level"`
		EmotionMonitoring  bool   `yaml:"emotion_monitoring"`
	} `yaml:"defaults"`
	Scoring  ScoringConfig   `yaml:"scoring"`
	Emotion  EmotionConfig   `yaml:"emotion"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// ScoringConfig holds the session effectiveness coefficients.
type ScoringConfig struct {
	Base               float64 `yaml:"base"`
	PerAgreement       float64 `yaml:"per_agreement"`
	EngagementWeight   float64 `yaml:"engagement_weight"`
	SatisfactionWeight float64 `yaml:"satisfaction_weight"`
}

// EmotionConfig points at the external emotion analysis service. An empty
// URL disables enrichment.
type EmotionConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

var moderationLevels = map[string]bool{"minimal": true, "moderate": true, "active": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Defaults.MaxParticipants < 2 {
		return fmt.Errorf("config.defaults.max_participants must be at least 2")
	}
	if c.Defaults.MaxSessionDuration <= 0 {
		return fmt.Errorf("config.defaults.max_session_duration must be positive")
	}
	if !moderationLevels[c.Defaults.ModerationLevel] {
		return fmt.Errorf("config.defaults.moderation_level must be minimal, moderate or active")
	}
	if c.Scoring.Base < 0 || c.Scoring.Base > 100 {
		return fmt.Errorf("config.scoring.base must be within [0,100]")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "concord.yml")
}

// Load reads and validates config from workspace, falling back to
// defaults when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Scoring
// coefficients left unset fall back to defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `defaults:
  max_participants: 8
  max_session_duration: 120
  speaking_time_limit: 5
  moderation_level: moderate
  emotion_monitoring: true

scoring:
  base: 50
  per_agreement: 10
  engagement_weight: 0.5
  satisfaction_weight: 5

emotion:
  url: ""
  timeout_seconds: 5

webhooks: []
`
