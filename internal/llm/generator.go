// Package llm defines the generation client the pipeline depends on and the
// provider implementations behind it.
package llm

import (
	"context"
	"strings"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one entry of a generation request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Completion is the result of a successful generation call.
type Completion struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Usage Usage  `json:"usage"`
}

// Generator produces text from a message list. Errors are treated as
// transient by callers unless wrapped with Permanent.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (*Completion, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, messages []Message) (*Completion, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, messages []Message) (*Completion, error) {
	return f(ctx, messages)
}

// SplitMessages joins system messages and user messages into the two prompts
// most provider APIs expect.
func SplitMessages(messages []Message) (system, user string) {
	var sys, usr []string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			sys = append(sys, m.Content)
		default:
			usr = append(usr, m.Content)
		}
	}
	return strings.Join(sys, "\n\n"), strings.Join(usr, "\n\n")
}
