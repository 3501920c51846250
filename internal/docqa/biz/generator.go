package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/pkg/docqa/textutil"
	"github.com/kart-io/docqa/pkg/component/ollama"
)

// defaultPromptTemplate instructs the model to stay inside the retrieved
// context. {{context}} and {{question}} are substituted per call.
const defaultPromptTemplate = `You are a helpful assistant who answers strictly from the provided context.

Context:
"""
{{context}}
"""

Question: {{question}}
Answer:`

// noResponseText stands in for an answer when the stream ends without
// producing any token content.
const noResponseText = "(no response)"

// GeneratorConfig configures prompt construction and generation.
type GeneratorConfig struct {
	// Model is the generation model identifier.
	Model string
	// PromptTemplate wraps the context block and the question.
	PromptTemplate string
	// ContextTokens is the default model context window size.
	ContextTokens int
}

// DefaultGeneratorConfig returns the default generation configuration.
func DefaultGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{
		Model:          "cas/mistral-7b-instruct-v0.3",
		PromptTemplate: defaultPromptTemplate,
		ContextTokens:  8192,
	}
}

// GenerateParams carries one streaming generation call.
type GenerateParams struct {
	// Prompt is the fully rendered prompt text.
	Prompt string
	// State is the prior conversation state, nil for a fresh exchange.
	State []int
	// ContextTokens overrides the configured context window when positive.
	ContextTokens int
	// Cancelled, when non-nil, is polled between stream records. Once it
	// reports true the stream closes and the text so far is returned.
	Cancelled func() bool
	// Sink, when non-nil, receives each token fragment as it arrives.
	Sink Sink
	// Debug, when non-nil, receives generation diagnostics.
	Debug *debugSink
}

// GenerateResult is the outcome of a streaming generation.
type GenerateResult struct {
	// Text is the answer text. On stream failure it carries a
	// descriptive error string instead.
	Text string
	// State is the updated conversation state. Nil when the stream did
	// not complete a full exchange, callers keep their prior state then.
	State []int
	// Cancelled reports that the caller stopped the stream.
	Cancelled bool
	// Err is the underlying failure when Text is an error string.
	Err error

	// Token usage from the final stream record, zero when unreported.
	PromptTokens     int
	CompletionTokens int
}

// Generator drives streaming answer generation through the Ollama
// component.
type Generator struct {
	client *ollama.Client
	config *GeneratorConfig
}

// NewGenerator creates a generator. A nil config gets defaults.
func NewGenerator(client *ollama.Client, config *GeneratorConfig) *Generator {
	if config == nil {
		config = DefaultGeneratorConfig()
	}
	if config.PromptTemplate == "" {
		config.PromptTemplate = defaultPromptTemplate
	}
	if config.ContextTokens <= 0 {
		config.ContextTokens = 8192
	}
	return &Generator{
		client: client,
		config: config,
	}
}

// Model returns the configured generation model identifier.
func (g *Generator) Model() string {
	return g.config.Model
}

// BuildPrompt renders the prompt template over the context chunks and
// the question. Chunks are joined by blank lines.
func (g *Generator) BuildPrompt(question string, contextChunks []string) string {
	prompt := strings.ReplaceAll(g.config.PromptTemplate, "{{context}}", strings.Join(contextChunks, "\n\n"))
	return strings.ReplaceAll(prompt, "{{question}}", question)
}

// Generate streams one answer. Failures never surface as errors to the
// conversation: the result text carries a descriptive error string and
// the nil state tells the caller to keep its prior one. Cancellation is
// polled between records; text accumulated before the stop is returned
// as a valid partial answer.
func (g *Generator) Generate(ctx context.Context, params GenerateParams) GenerateResult {
	contextTokens := params.ContextTokens
	if contextTokens <= 0 {
		contextTokens = g.config.ContextTokens
	}

	// Advisory only. The backend truncates on its own terms.
	estimate := textutil.EstimateTokens(params.Prompt)
	if estimate*10 > contextTokens*9 {
		params.Debug.emit(1, "prompt estimate %d tokens nears context window %d", estimate, contextTokens)
	}

	params.Debug.emit(2, "Model: %s", g.config.Model)
	params.Debug.emit(2, "Prompt length: %d characters", len(params.Prompt))
	params.Debug.emit(2, "Context provided: %t", params.State != nil)

	req := &ollama.GenerateRequest{
		Model:   g.config.Model,
		Prompt:  params.Prompt,
		Options: &ollama.GenerateOptions{NumCtx: contextTokens},
		Context: params.State,
	}

	var (
		text      strings.Builder
		result    GenerateResult
		records   int
		cancelled bool
	)

	err := g.client.GenerateStream(ctx, req, func(record *ollama.StreamRecord) bool {
		if params.Cancelled != nil && params.Cancelled() {
			cancelled = true
			return false
		}
		records++

		if t := record.Text(); t != "" {
			text.WriteString(t)
			if params.Sink != nil {
				params.Sink.Token(t)
			}
		}

		if record.Done {
			params.Debug.emit(2, "Received 'done' flag")
			if record.Context != nil {
				result.State = record.Context
			}
			result.PromptTokens = record.PromptEvalCount
			result.CompletionTokens = record.EvalCount
		}
		return true
	})
	params.Debug.emit(2, "Processed %d stream records", records)

	if err != nil {
		// A cancellation can surface as a dead connection before the
		// next poll. Resolve it as a stop, not a failure.
		if params.Cancelled != nil && params.Cancelled() {
			cancelled = true
		} else {
			logger.Warnw("generation stream failed", "model", g.config.Model, "error", err.Error())
			params.Debug.emit(2, "Generation request failed: %v", err)
			return GenerateResult{
				Text: fmt.Sprintf("[Error generating response: %v]", err),
				Err:  err,
			}
		}
	}

	result.Text = text.String()
	if cancelled {
		// Partial text is a valid answer; state stays with the caller.
		result.State = nil
		result.Cancelled = true
		return result
	}
	if result.Text == "" {
		result.Text = noResponseText
	}
	return result
}
