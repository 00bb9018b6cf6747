// Package classifier provides tier-2 category classifiers backed by hosted
// language models.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/reflectra/internal/categorize"
)

// Request parameters shared by every backend.
const (
	Temperature float32 = 0.3
	MaxTokens           = 50

	DefaultTimeout        = 10 * time.Second
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
)

// Provider names.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Completion is one free-text request to a backend. Zero fields select the
// classifier parameters.
type Completion struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

func (c Completion) withDefaults(timeout time.Duration) Completion {
	if c.Temperature == 0 {
		c.Temperature = Temperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = MaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = timeout
	}
	return c
}

// Backend is a hosted model usable both as a tier-2 classifier and for
// free-text completions.
type Backend interface {
	categorize.Classifier
	Complete(ctx context.Context, req Completion) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// New returns the configured backend, or nil when the provider is disabled or
// no API key is available.
func New(cfg Config) (Backend, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == ProviderNone {
		return nil, nil
	}
	if cfg.APIKey == "" {
		log.Warn().Str("provider", provider).Msg("Classifier API key not set, tier-2 classification disabled")
		return nil, nil
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Timeout), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}
