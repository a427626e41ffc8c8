package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"missionflow/internal/logging"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicModel   = "claude-sonnet-4-5-20250514"
	anthropicVersion = "2023-06-01"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	cfg        ClientConfig
	httpClient *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicClient creates an Anthropic client.
func NewAnthropicClient(cfg ClientConfig) *AnthropicClient {
	cfg = cfg.withDefaults(anthropicBaseURL, anthropicModel)
	return &AnthropicClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Generate implements Generator.
func (c *AnthropicClient) Generate(ctx context.Context, messages []Message) (*Completion, error) {
	if c.cfg.APIKey == "" {
		return nil, Permanent(ErrNoAPIKey)
	}
	ctx, cancel := withDeadline(ctx, c.cfg.Timeout)
	defer cancel()

	system, user := SplitMessages(messages)
	start := time.Now()
	logging.APIDebug("[Anthropic] Generate: model=%s system_len=%d user_len=%d", c.cfg.Model, len(system), len(user))

	reqBody := anthropicRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		System:      system,
		Messages:    []anthropicMessage{{Role: RoleUser, Content: user}},
		Temperature: c.cfg.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := postJSON(ctx, c.httpClient, "anthropic", c.cfg.BaseURL+"/messages", headers, reqBody, &resp); err != nil {
		logging.APIWarn("[Anthropic] Generate: failed after %v: %v", time.Since(start), err)
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("anthropic API error: %s", resp.Error.Message)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	out := &Completion{
		Text:  strings.TrimSpace(text.String()),
		Model: resp.Model,
		Usage: Usage{PromptTokens: resp.Usage.InputTokens, CompletionTokens: resp.Usage.OutputTokens},
	}
	logging.API("[Anthropic] Generate: completed in %v response_len=%d", time.Since(start), len(out.Text))
	return out, nil
}
