package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"missionflow/internal/logging"
)

const geminiModel = "gemini-2.5-flash"

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	cfg    ClientConfig
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, cfg ClientConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = geminiModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, cfg: cfg}, nil
}

// Generate implements Generator.
func (c *GeminiClient) Generate(ctx context.Context, messages []Message) (*Completion, error) {
	ctx, cancel := withDeadline(ctx, c.cfg.Timeout)
	defer cancel()

	system, user := SplitMessages(messages)
	start := time.Now()
	logging.APIDebug("[Gemini] Generate: model=%s system_len=%d user_len=%d", c.cfg.Model, len(system), len(user))

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(c.cfg.Temperature)),
		MaxOutputTokens: int32(c.cfg.MaxTokens),
	}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, gc)
	if err != nil {
		err = fmt.Errorf("GenAI generate failed: %w", err)
		if geminiPermanent(err) {
			err = Permanent(err)
		}
		logging.APIWarn("[Gemini] Generate: failed after %v: %v", time.Since(start), err)
		return nil, err
	}

	out := &Completion{
		Text:  strings.TrimSpace(resp.Text()),
		Model: c.cfg.Model,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	logging.API("[Gemini] Generate: completed in %v response_len=%d", time.Since(start), len(out.Text))
	return out, nil
}

var geminiPermanentMarkers = []string{
	"Error 400",
	"Error 401",
	"Error 403",
	"Error 404",
	"INVALID_ARGUMENT",
	"PERMISSION_DENIED",
	"UNAUTHENTICATED",
	"API key not valid",
}

// geminiPermanent classifies SDK errors by their rendered message.
func geminiPermanent(err error) bool {
	msg := err.Error()
	for _, m := range geminiPermanentMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
