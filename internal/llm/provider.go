package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/babelcloud/voicepilot/config"
)

// ErrUnavailable is returned when no credential is configured for the provider.
var ErrUnavailable = errors.New("llm provider unavailable")

// Request is one single-turn completion.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	// JSON asks the provider for a JSON-only reply where it supports that.
	JSON bool
}

// Provider completes prompts against a hosted language model.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// New builds the provider named in cfg, rate limited as configured.
func New(cfg config.LLMConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "claude", "anthropic", "":
		p, err = NewClaudeProvider(cfg.AnthropicAPIKey, cfg.Model, cfg.MaxTokens)
	case "openai", "gpt":
		p, err = NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.Model, cfg.MaxTokens)
	case "gemini", "google":
		p, err = NewGeminiProvider(context.Background(), cfg.GeminiAPIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: claude, openai, gemini)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond > 0 {
		p = NewRateLimited(p, cfg.RequestsPerSecond, cfg.Burst)
	}
	return p, nil
}

func maxTokensOr(req Request, def int) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if def > 0 {
		return def
	}
	return 1024
}
