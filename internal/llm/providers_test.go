package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMessages = []Message{
	{Role: RoleSystem, Content: "## YOUR ROLE\nFind leads."},
	{Role: RoleUser, Content: "Begin your work."},
}

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "## YOUR ROLE\nFind leads.", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "Begin your work.", req.Messages[0].Content)

		io.WriteString(w, `{"model":"claude-test","content":[{"type":"text","text":"  Lead list ready  "}],"usage":{"input_tokens":12,"output_tokens":4}}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	out, err := c.Generate(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "Lead list ready", out.Text)
	assert.Equal(t, "claude-test", out.Model)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 4}, out.Usage)
}

func TestAnthropicStatusErrors(t *testing.T) {
	for code, permanent := range map[int]bool{401: true, 429: false, 500: false} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			io.WriteString(w, `{"error":{"message":"nope"}}`)
		}))
		c := NewAnthropicClient(ClientConfig{APIKey: "k", BaseURL: srv.URL})
		_, err := c.Generate(context.Background(), testMessages)
		srv.Close()

		require.Error(t, err)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, code, se.StatusCode)
		assert.Equal(t, permanent, IsPermanent(err), "status %d", code)
	}
}

func TestMissingAPIKeyIsPermanent(t *testing.T) {
	_, err := NewAnthropicClient(ClientConfig{}).Generate(context.Background(), testMessages)
	assert.ErrorIs(t, err, ErrNoAPIKey)
	assert.True(t, IsPermanent(err))

	_, err = NewOpenAIClient(ClientConfig{}).Generate(context.Background(), testMessages)
	assert.True(t, IsPermanent(err))

	_, err = NewGeminiClient(context.Background(), ClientConfig{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestOpenAICompatibleGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testMessages, req.Messages)

		io.WriteString(w, `{"model":"m","choices":[{"message":{"content":"Three leads found."}}],"usage":{"prompt_tokens":7,"completion_tokens":3}}`)
	}))
	defer srv.Close()

	c := NewOpenRouterClient(ClientConfig{APIKey: "or-key", BaseURL: srv.URL})
	out, err := c.Generate(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "Three leads found.", out.Text)
	assert.Equal(t, 7, out.Usage.PromptTokens)
}

func TestOpenAINoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewXAIClient(ClientConfig{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), testMessages)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestGenerateHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOpenAIClient(ClientConfig{APIKey: "k", BaseURL: srv.URL}).Generate(ctx, testMessages)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitMessages(t *testing.T) {
	sys, usr := SplitMessages([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleSystem, Content: "c"},
	})
	assert.Equal(t, "a\n\nc", sys)
	assert.Equal(t, "b", usr)
}

func TestStubClient(t *testing.T) {
	s := NewStubClient("")
	out, err := s.Generate(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Begin your work.")
	assert.GreaterOrEqual(t, len([]rune(out.Text)), 10)
	assert.EqualValues(t, 1, s.Calls())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Generate(ctx, testMessages)
	assert.ErrorIs(t, err, context.Canceled)
}
