package llm

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// StubClient answers without any network access. It lets the CLI run a
// whole pipeline offline.
type StubClient struct {
	model string
	calls atomic.Int64
}

// NewStubClient creates a stub generator.
func NewStubClient(model string) *StubClient {
	if model == "" {
		model = "stub"
	}
	return &StubClient{model: model}
}

// Calls returns the number of Generate calls served.
func (s *StubClient) Calls() int64 { return s.calls.Load() }

// Generate implements Generator.
func (s *StubClient) Generate(ctx context.Context, messages []Message) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := s.calls.Add(1)
	system, user := SplitMessages(messages)

	text := fmt.Sprintf("Draft #%d from %s.\n\nInstructions received: %d characters.\nWorking from: %s",
		n, s.model, len(system), excerpt(user, 160))
	return &Completion{
		Text:  text,
		Model: s.model,
		Usage: Usage{PromptTokens: len(system) / 4, CompletionTokens: len(text) / 4},
	}, nil
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
