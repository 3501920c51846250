// Package ollama provides the Ollama API client used for embeddings,
// streaming text generation and model management.
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kart-io/docqa/pkg/component"
	ollamaopts "github.com/kart-io/docqa/pkg/options/ollama"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// Client is an Ollama API client.
//
// Two HTTP clients back it: a bounded one for embed, tags and dry-run
// calls, and an unbounded one for generation and pull streams, whose
// duration depends on model output and cannot be capped up front.
type Client struct {
	baseURL      string
	client       *http.Client
	streamClient *http.Client
	opts         *ollamaopts.Options
}

var _ component.Client = (*Client)(nil)

// New creates a new Ollama client.
func New(opts *ollamaopts.Options) *Client {
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		streamClient: &http.Client{},
		opts:         opts,
	}
}

// Name returns the component identifier.
func (c *Client) Name() string {
	return "ollama"
}

// Ping checks if the Ollama server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping failed with status %d", resp.StatusCode)
	}

	return nil
}

// Close releases idle connections held by both HTTP clients.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}

// EmbedModel returns the configured embedding model name.
func (c *Client) EmbedModel() string {
	return c.opts.EmbedModel
}

// ChatModel returns the configured generation model name.
func (c *Client) ChatModel() string {
	return c.opts.ChatModel
}

// EmbedRequest is the request body for embedding.
type EmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbedResponse is the response from embedding.
type EmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates embeddings for the given texts.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := EmbedRequest{
		Model: c.opts.EmbedModel,
		Input: texts,
	}

	var embedResp EmbedResponse
	if err := c.postJSON(ctx, "/api/embed", reqBody, &embedResp); err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}

	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed returned %d vectors for %d inputs", len(embedResp.Embeddings), len(texts))
	}

	return embedResp.Embeddings, nil
}

// EmbedSingle generates an embedding for a single text.
func (c *Client) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// GenerateOptions carries model runtime options for a generate call.
type GenerateOptions struct {
	NumCtx     int `json:"num_ctx,omitempty"`
	NumPredict int `json:"num_predict,omitempty"`
}

// GenerateRequest is the request body for text generation.
type GenerateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
	Options *GenerateOptions `json:"options,omitempty"`

	// Context is the opaque conversation state returned by a previous
	// generation. Nil starts a fresh conversation.
	Context []int `json:"context,omitempty"`
}

// GenerateResponse is the non-streaming response from text generation.
type GenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	Context   []int  `json:"context,omitempty"`
}

// Generate runs a non-streaming generation. Used for the startup dry-run;
// interactive answers go through GenerateStream.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	req.Stream = false

	var genResp GenerateResponse
	if err := c.postJSON(ctx, "/api/generate", req, &genResp); err != nil {
		return nil, fmt.Errorf("generate request failed: %w", err)
	}

	return &genResp, nil
}

// postJSON sends a JSON POST on the bounded client and decodes the response.
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
