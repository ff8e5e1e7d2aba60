package llm

import (
	"context"
	"fmt"

	"github.com/NielsdaWheelz/wasmverify/internal/config"
	"github.com/NielsdaWheelz/wasmverify/internal/plan"
)

// New returns the completer selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (plan.Completer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "gemini":
		g, err := NewGemini(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model, nil)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
