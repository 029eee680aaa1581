// Package config loads and validates the quill configuration: model and
// threshold selection, context-manager tuning, the summarization fallback
// chain, and user-defined command signatures. Files are YAML or JSON5 with
// $include merging and environment-variable expansion.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/quill/internal/models"
)

// Config is the root configuration.
type Config struct {
	// Model is the active model id.
	Model string `yaml:"model"`

	// Profile selects the threshold profile: conservative, balanced,
	// aggressive. Empty resolves per model.
	Profile string `yaml:"profile,omitempty"`

	// Prefixes are the accepted command prefixes (default "/").
	Prefixes []string `yaml:"prefixes,omitempty"`

	// Context tunes the context manager.
	Context ContextConfig `yaml:"context,omitempty"`

	// Summarize configures the fallback chain.
	Summarize SummarizeConfig `yaml:"summarize,omitempty"`

	// Commands are user-defined command signatures.
	Commands []UserCommand `yaml:"commands,omitempty"`

	// Debug enables verbose logging and stack traces in event streams.
	Debug bool `yaml:"debug,omitempty"`
}

// ContextConfig tunes the context manager.
type ContextConfig struct {
	// RecentCount protects the trailing N messages (default 3).
	RecentCount int `yaml:"recent_count,omitempty"`

	// MaxOutputChars caps tool outputs before trimming (default 10000).
	MaxOutputChars int `yaml:"max_output_chars,omitempty"`

	// ProtectedTools are never trimmed.
	ProtectedTools []string `yaml:"protected_tools,omitempty"`

	// MinSummaryWindow is the smallest range worth summarizing (default 6).
	MinSummaryWindow int `yaml:"min_summary_window,omitempty"`

	// MaxSummaryRatio rejects summaries above original*ratio (default 1.0).
	MaxSummaryRatio float64 `yaml:"max_summary_ratio,omitempty"`

	// CheckpointCapacity bounds the checkpoint store (default 5).
	CheckpointCapacity int `yaml:"checkpoint_capacity,omitempty"`

	// AggressiveTruncation allows dropping tool pairs during overflow.
	AggressiveTruncation bool `yaml:"aggressive_truncation,omitempty"`
}

// SummarizeConfig configures the fallback chain.
type SummarizeConfig struct {
	// Chain is tried in order. Empty falls back to the active model.
	Chain []ChainStepConfig `yaml:"chain,omitempty"`

	// RequestsPerSecond paces summarization attempts (default 2).
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// ChainStepConfig is one fallback chain entry.
type ChainStepConfig struct {
	Model        string `yaml:"model"`
	TimeoutMs    int    `yaml:"timeout_ms,omitempty"`
	MaxRetries   int    `yaml:"max_retries,omitempty"`
	RetryDelayMs int    `yaml:"retry_delay_ms,omitempty"`
}

// UserCommand declares a config-defined command. It renders its template with
// the validated arguments and returns the result as a prompt for the session.
type UserCommand struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Category    string    `yaml:"category,omitempty" json:"category,omitempty"`
	Aliases     []string  `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Positional  []UserArg `yaml:"positional,omitempty" json:"positional,omitempty"`
	Named       []UserArg `yaml:"named,omitempty" json:"named,omitempty"`
	Template    string    `yaml:"template" json:"template"`
}

// UserArg declares one argument of a user-defined command.
type UserArg struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:    "claude-3-5-sonnet-latest",
		Prefixes: []string{"/"},
		Summarize: SummarizeConfig{
			RequestsPerSecond: 2,
		},
	}
}

// Load reads, merges and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if strings.TrimSpace(c.Model) == "" {
		c.Model = defaults.Model
	}
	if len(c.Prefixes) == 0 {
		c.Prefixes = defaults.Prefixes
	}
	if c.Summarize.RequestsPerSecond <= 0 {
		c.Summarize.RequestsPerSecond = defaults.Summarize.RequestsPerSecond
	}
}

// Validate checks semantic constraints and every user command definition.
func (c *Config) Validate() error {
	var issues []string

	switch strings.ToLower(c.Profile) {
	case "", "conservative", "balanced", "aggressive":
	default:
		issues = append(issues, fmt.Sprintf("unknown profile %q", c.Profile))
	}
	if c.Context.MaxSummaryRatio < 0 {
		issues = append(issues, "context.max_summary_ratio must not be negative")
	}
	for i, step := range c.Summarize.Chain {
		if strings.TrimSpace(step.Model) == "" {
			issues = append(issues, fmt.Sprintf("summarize.chain[%d]: model is required", i))
		}
	}
	for i := range c.Commands {
		if err := ValidateUserCommand(&c.Commands[i]); err != nil {
			issues = append(issues, err.Error())
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// ValidationError aggregates config issues.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Issues, "; "))
}

// Chain converts the configured fallback chain into normalized steps,
// defaulting to the active model when empty.
func (c *Config) Chain() []models.ChainStep {
	if len(c.Summarize.Chain) == 0 {
		return models.BuildChain(c.Model)
	}
	steps := make([]models.ChainStep, 0, len(c.Summarize.Chain))
	for _, step := range c.Summarize.Chain {
		steps = append(steps, models.NormalizeStep(models.ChainStep{
			Model:      step.Model,
			Timeout:    time.Duration(step.TimeoutMs) * time.Millisecond,
			MaxRetries: step.MaxRetries,
			RetryDelay: time.Duration(step.RetryDelayMs) * time.Millisecond,
		}))
	}
	return steps
}
