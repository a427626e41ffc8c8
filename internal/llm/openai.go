package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"missionflow/internal/logging"
)

// Base URLs of the OpenAI-compatible chat completion APIs.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	XAIBaseURL        = "https://api.x.ai/v1"
)

// OpenAIClient calls an OpenAI-compatible /chat/completions endpoint.
// OpenAI, OpenRouter and xAI differ only in base URL and default model.
type OpenAIClient struct {
	name       string
	cfg        ClientConfig
	httpClient *http.Client
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a client for api.openai.com.
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	return newOpenAICompatible("openai", cfg.withDefaults(OpenAIBaseURL, "gpt-4o"))
}

// NewOpenRouterClient creates a client for OpenRouter.
func NewOpenRouterClient(cfg ClientConfig) *OpenAIClient {
	return newOpenAICompatible("openrouter", cfg.withDefaults(OpenRouterBaseURL, "anthropic/claude-sonnet-4.5"))
}

// NewXAIClient creates a client for xAI.
func NewXAIClient(cfg ClientConfig) *OpenAIClient {
	return newOpenAICompatible("xai", cfg.withDefaults(XAIBaseURL, "grok-4"))
}

func newOpenAICompatible(name string, cfg ClientConfig) *OpenAIClient {
	return &OpenAIClient{
		name:       name,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Generate implements Generator.
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message) (*Completion, error) {
	if c.cfg.APIKey == "" {
		return nil, Permanent(ErrNoAPIKey)
	}
	ctx, cancel := withDeadline(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	logging.APIDebug("[%s] Generate: model=%s messages=%d", c.name, c.cfg.Model, len(messages))

	reqBody := openAIRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var resp openAIResponse
	if err := postJSON(ctx, c.httpClient, c.name, c.cfg.BaseURL+"/chat/completions", headers, reqBody, &resp); err != nil {
		logging.APIWarn("[%s] Generate: failed after %v: %v", c.name, time.Since(start), err)
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s API error: %s", c.name, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: no completion returned", c.name)
	}

	out := &Completion{
		Text:  strings.TrimSpace(resp.Choices[0].Message.Content),
		Model: resp.Model,
		Usage: Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens},
	}
	logging.API("[%s] Generate: completed in %v response_len=%d", c.name, time.Since(start), len(out.Text))
	return out, nil
}
