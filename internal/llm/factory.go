package llm

import (
	"context"
	"fmt"

	"missionflow/internal/config"
	"missionflow/internal/logging"
)

// NewFromConfig builds the Generator selected by cfg.LLM.Provider.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Generator, error) {
	cc := ClientConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.GetLLMTimeout(),
	}

	logging.BootDebug("Creating generation client: provider=%s model=%s", cfg.LLM.Provider, cc.Model)

	switch cfg.LLM.Provider {
	case "anthropic":
		return NewAnthropicClient(cc), nil
	case "openai":
		return NewOpenAIClient(cc), nil
	case "openrouter":
		return NewOpenRouterClient(cc), nil
	case "xai":
		return NewXAIClient(cc), nil
	case "gemini":
		return NewGeminiClient(ctx, cc)
	case "stub":
		return NewStubClient(cc.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %q", cfg.LLM.Provider)
	}
}
