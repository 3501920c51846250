package biz

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/component/ollama"
	ollamaopts "github.com/kart-io/docqa/pkg/options/ollama"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// newStreamServer serves fixed NDJSON lines on /api/generate and hands
// back a generator wired to it.
func newStreamServer(t *testing.T, lines ...string) (*Generator, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}))
	t.Cleanup(srv.Close)

	opts := ollamaopts.NewOptions()
	opts.BaseURL = srv.URL
	opts.Timeout = 5 * time.Second
	return NewGenerator(ollama.New(opts), nil), srv
}

func TestGenerateStreamsTokens(t *testing.T) {
	gen, _ := newStreamServer(t,
		`{"response":"Hello"}`,
		`{"response":" world"}`,
		`{"done":true,"context":[1,2,3],"prompt_eval_count":10,"eval_count":2}`,
	)

	sink := NewCollectorSink()
	result := gen.Generate(context.Background(), GenerateParams{
		Prompt: "question",
		Sink:   sink,
	})

	require.NoError(t, result.Err)
	assert.Equal(t, "Hello world", result.Text)
	assert.Equal(t, []int{1, 2, 3}, result.State)
	assert.Equal(t, 10, result.PromptTokens)
	assert.Equal(t, 2, result.CompletionTokens)
	assert.False(t, result.Cancelled)
	assert.Equal(t, []string{"Hello", " world"}, sink.Tokens())
}

func TestGenerateSkipsMalformedLines(t *testing.T) {
	gen, _ := newStreamServer(t,
		`{"response":"first"}`,
		`this is not json`,
		`{"response":" second"}`,
		`{"done":true}`,
	)

	result := gen.Generate(context.Background(), GenerateParams{Prompt: "q"})
	require.NoError(t, result.Err)
	assert.Equal(t, "first second", result.Text)
}

func TestGenerateEmptyStreamReturnsPlaceholder(t *testing.T) {
	gen, _ := newStreamServer(t)

	result := gen.Generate(context.Background(), GenerateParams{Prompt: "q"})
	require.NoError(t, result.Err)
	assert.Equal(t, noResponseText, result.Text)
	assert.Nil(t, result.State)
}

func TestGenerateConnectionFailureReturnsErrorText(t *testing.T) {
	gen, srv := newStreamServer(t)
	srv.Close()

	result := gen.Generate(context.Background(), GenerateParams{Prompt: "q"})
	require.Error(t, result.Err)
	assert.True(t, strings.HasPrefix(result.Text, "[Error generating response:"), result.Text)
	assert.Nil(t, result.State)
	assert.False(t, result.Cancelled)
}

func TestGenerateCancellationKeepsPartialText(t *testing.T) {
	gen, _ := newStreamServer(t,
		`{"response":"partial"}`,
		`{"response":" tail"}`,
		`{"done":true,"context":[9]}`,
	)

	polls := 0
	result := gen.Generate(context.Background(), GenerateParams{
		Prompt:    "q",
		Cancelled: func() bool { polls++; return polls > 1 },
	})

	require.NoError(t, result.Err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, "partial", result.Text)
	// A stopped exchange never advances conversation state.
	assert.Nil(t, result.State)
}

func TestGenerateSendsConversationState(t *testing.T) {
	var got ollama.GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprintln(w, `{"response":"ok"}`)
		fmt.Fprintln(w, `{"done":true}`)
	}))
	t.Cleanup(srv.Close)

	opts := ollamaopts.NewOptions()
	opts.BaseURL = srv.URL
	gen := NewGenerator(ollama.New(opts), &GeneratorConfig{Model: "test-model", ContextTokens: 2048})

	result := gen.Generate(context.Background(), GenerateParams{
		Prompt: "follow-up",
		State:  []int{7, 8},
	})

	require.NoError(t, result.Err)
	assert.Equal(t, "test-model", got.Model)
	assert.True(t, got.Stream)
	assert.Equal(t, []int{7, 8}, got.Context)
	require.NotNil(t, got.Options)
	assert.Equal(t, 2048, got.Options.NumCtx)
}

func TestGenerateWarnsNearContextWindow(t *testing.T) {
	gen, _ := newStreamServer(t,
		`{"response":"ok"}`,
		`{"done":true}`,
	)

	sink := NewCollectorSink()
	result := gen.Generate(context.Background(), GenerateParams{
		// ~100 estimated tokens against a 100-token window.
		Prompt:        strings.Repeat("x", 400),
		ContextTokens: 100,
		Sink:          sink,
		Debug:         newDebugSink(sink, 1),
	})

	require.NoError(t, result.Err)
	found := false
	for _, line := range sink.DebugLines() {
		if strings.Contains(line, "nears context window") {
			found = true
		}
	}
	assert.True(t, found, "expected a context window warning, got %v", sink.DebugLines())
}

func TestBuildPrompt(t *testing.T) {
	gen := NewGenerator(nil, nil)

	prompt := gen.BuildPrompt("What is up?", []string{"chunk one", "chunk two"})
	assert.Contains(t, prompt, "chunk one\n\nchunk two")
	assert.Contains(t, prompt, "Question: What is up?")
	assert.NotContains(t, prompt, "{{context}}")
	assert.NotContains(t, prompt, "{{question}}")
}
