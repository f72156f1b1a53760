package completion

import (
	"fmt"
	"time"

	"github.com/harun/docchat/internal/config"
	"github.com/rs/zerolog"
)

// NewBackend creates the backend selected by cfg.Provider
func NewBackend(cfg config.CompletionConfig) (Backend, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIBackend(OpenAIOptions{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Referer: cfg.Referer,
			Title:   cfg.Title,
			Timeout: timeout,
		}), nil
	case "anthropic":
		return NewAnthropicBackend(AnthropicOptions{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", cfg.Provider)
	}
}

// NewClientFromConfig builds a backend and wraps it in a Client
func NewClientFromConfig(cfg config.CompletionConfig, logger zerolog.Logger) (*Client, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}

	opts := DefaultOptions()
	if cfg.Model != "" {
		opts.Model = cfg.Model
	}
	opts.Temperature = cfg.Temperature
	if cfg.MaxTokens > 0 {
		opts.MaxTokens = cfg.MaxTokens
	}
	if cfg.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.Language != "" {
		opts.Language = cfg.Language
	}

	return NewClient(backend, opts, logger), nil
}
