package llm

import (
	"context"
	"time"

	"github.com/google/uuid"

	"missionflow/internal/logging"
)

// Trace captures one generation attempt for audit.
type Trace struct {
	ID           string `json:"id"`
	RunID        string `json:"run_id"`
	StepPosition int    `json:"step_position"`
	RoleID       string `json:"role_id"`
	Attempt      int    `json:"attempt"`

	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	Response     string `json:"response"`

	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	DurationMs       int64  `json:"duration_ms"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// TraceSink receives traces.
type TraceSink interface {
	StoreTrace(ctx context.Context, trace *Trace) error
}

// TraceContext attributes a generation call to a pipeline step.
type TraceContext struct {
	RunID        string
	StepPosition int
	RoleID       string
	Attempt      int
}

type traceContextKey struct{}

// WithTraceContext returns ctx carrying attribution for traces.
func WithTraceContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// TraceContextFrom returns the attribution stored in ctx, if any.
func TraceContextFrom(ctx context.Context) (TraceContext, bool) {
	tc, ok := ctx.Value(traceContextKey{}).(TraceContext)
	return tc, ok
}

// TracingGenerator wraps a Generator and records every call.
type TracingGenerator struct {
	underlying Generator
	sink       TraceSink
	now        func() time.Time
}

// NewTracingGenerator wraps underlying. A nil sink disables recording.
func NewTracingGenerator(underlying Generator, sink TraceSink) *TracingGenerator {
	return &TracingGenerator{underlying: underlying, sink: sink, now: time.Now}
}

// Underlying returns the wrapped generator.
func (t *TracingGenerator) Underlying() Generator { return t.underlying }

// Generate implements Generator with tracing.
func (t *TracingGenerator) Generate(ctx context.Context, messages []Message) (*Completion, error) {
	tc, _ := TraceContextFrom(ctx)
	start := t.now()
	logging.APIDebug("LLM call started: run=%s step=%d role=%s attempt=%d", tc.RunID, tc.StepPosition, tc.RoleID, tc.Attempt)

	out, err := t.underlying.Generate(ctx, messages)
	duration := t.now().Sub(start)
	if err == nil && out == nil {
		// Treated as an empty answer; callers validate length.
		out = &Completion{}
	}

	switch {
	case err != nil && IsPermanent(err):
		logging.APIError("LLM call rejected: run=%s step=%d duration=%v error=%s", tc.RunID, tc.StepPosition, duration, err.Error())
	case err != nil:
		logging.API("LLM call failed: run=%s step=%d duration=%v error=%s", tc.RunID, tc.StepPosition, duration, err.Error())
	default:
		logging.API("LLM call completed: run=%s step=%d duration=%v response_len=%d", tc.RunID, tc.StepPosition, duration, len(out.Text))
	}

	if t.sink == nil {
		return out, err
	}

	system, user := SplitMessages(messages)
	trace := &Trace{
		ID:           uuid.NewString(),
		RunID:        tc.RunID,
		StepPosition: tc.StepPosition,
		RoleID:       tc.RoleID,
		Attempt:      tc.Attempt,
		SystemPrompt: system,
		UserPrompt:   user,
		DurationMs:   duration.Milliseconds(),
		Success:      err == nil,
		Timestamp:    start,
	}
	if err != nil {
		trace.ErrorMessage = err.Error()
	} else {
		trace.Response = out.Text
		trace.Model = out.Model
		trace.PromptTokens = out.Usage.PromptTokens
		trace.CompletionTokens = out.Usage.CompletionTokens
	}

	// The attempt context may already be cancelled or timed out; the trace
	// is still worth keeping.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if storeErr := t.sink.StoreTrace(storeCtx, trace); storeErr != nil {
		logging.APIDebug("Failed to store generation trace: %v", storeErr)
	}

	return out, err
}
