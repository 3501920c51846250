// Package reranker provides a client for a cross-encoder scoring service
// speaking the text-embeddings-inference rerank protocol.
package reranker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kart-io/docqa/pkg/component"
	rerankeropts "github.com/kart-io/docqa/pkg/options/reranker"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// Client is a rerank service client.
type Client struct {
	baseURL       string
	model         string
	maxCandidates int
	maxDocChars   int
	httpClient    *http.Client
}

var _ component.Client = (*Client)(nil)

// New creates a new rerank client.
func New(opts *rerankeropts.Options) *Client {
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		model:         opts.Model,
		maxCandidates: opts.MaxCandidates,
		maxDocChars:   opts.MaxDocChars,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// Name returns the component identifier.
func (c *Client) Name() string {
	return "reranker"
}

// Ping checks the service health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reranker health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reranker unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Model returns the configured cross-encoder model identifier.
func (c *Client) Model() string {
	return c.model
}

// rerankRequest is the POST /rerank body. Model is optional; TEI ignores
// it while multi-model servers use it to route.
type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

// rankedScore is one scored document in the service response.
type rankedScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores texts against the query and returns one score per input,
// aligned to input order. Inputs beyond the candidate cap keep a zero
// score; documents are truncated to the configured length before scoring.
func (c *Client) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, len(texts))
	if len(texts) == 0 {
		return scores, nil
	}

	scored := texts
	if len(scored) > c.maxCandidates {
		scored = scored[:c.maxCandidates]
	}

	docs := make([]string, len(scored))
	for i, text := range scored {
		docs[i] = truncateRunes(text, c.maxDocChars)
	}

	payload, err := json.Marshal(rerankRequest{
		Query: query,
		Texts: docs,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var results []rankedScore
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	for _, r := range results {
		if r.Index >= 0 && r.Index < len(scores) {
			scores[r.Index] = r.Score
		}
	}
	return scores, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
