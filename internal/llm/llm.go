// Package llm provides the optional language-model backends used to
// interpret chat messages the rule-based parser is unsure about.
package llm

import (
	"context"
	"fmt"

	"github.com/nhle/chattask/internal/model"
)

// Completer sends a single system+user prompt and returns the model's raw
// text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// New builds the Completer selected by cfg.Provider. It returns nil, nil
// when no provider is configured.
func New(ctx context.Context, cfg model.LLMConfig, apiKey string) (Completer, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "anthropic":
		return NewAnthropic(apiKey, cfg.Model, cfg.MaxTokens), nil
	case "gemini":
		g, err := NewGemini(ctx, apiKey, cfg.Model, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
