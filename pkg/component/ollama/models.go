package ollama

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/utils/json"
)

// ModelInfo describes one model reported by the Ollama server.
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

// ListModels lists all models available on the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list models request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models failed with status %d", resp.StatusCode)
	}

	var result struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode list models response: %w", err)
	}

	return result.Models, nil
}

// HasModel reports whether the named model is available. A listed model
// matches on the exact name or on a "name:" tag prefix, so
// "mistral-7b" matches "mistral-7b:latest".
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.Name == name || strings.HasPrefix(m.Name, name+":") {
			return true, nil
		}
	}
	return false, nil
}

// pullStatus is one NDJSON record from a model pull stream.
type pullStatus struct {
	Status    string `json:"status"`
	Digest    string `json:"digest"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
}

// PullModel downloads a model, logging layer progress as the server
// reports it. The pull stream runs on the unbounded client.
func (c *Client) PullModel(ctx context.Context, name string) error {
	logger.Infow("pulling model, this may take several minutes", "model", name)

	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("failed to marshal pull request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("pull request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)

	lastDigest := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var status pullStatus
		if err := json.Unmarshal([]byte(line), &status); err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(status.Status, "pulling") || status.Status == "downloading":
			if status.Digest != "" && status.Digest != lastDigest {
				lastDigest = status.Digest
				logger.Infow("downloading layer", "digest", shortDigest(status.Digest), "model", name)
			}
		case status.Status == "verifying" || strings.HasPrefix(status.Status, "verifying"):
			logger.Infow("verifying model integrity", "model", name)
		case strings.HasPrefix(status.Status, "writing"):
			logger.Infow("writing model to disk", "model", name)
		case status.Status == "success" || status.Status == "complete":
			logger.Infow("model download completed", "model", name)
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("pull stream read failed: %w", err)
	}
	return nil
}

// EnsureModel makes sure the named model is available, pulling it when
// absent. The post-pull check waits briefly so the server can register
// the new model before verification.
func (c *Client) EnsureModel(ctx context.Context, name string) error {
	exists, err := c.HasModel(ctx, name)
	if err != nil {
		return fmt.Errorf("model check failed: %w", err)
	}
	if exists {
		logger.Debugw("model already available", "model", name)
		return nil
	}

	if err := c.PullModel(ctx, name); err != nil {
		return err
	}

	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	exists, err = c.HasModel(ctx, name)
	if err != nil {
		return fmt.Errorf("post-pull model check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("model %q pulled but not registered", name)
	}

	logger.Infow("model pulled and verified", "model", name)
	return nil
}

// TestConnection verifies the full generation path: server reachable,
// chat model present, and a five-token dry-run completes. Callers treat
// a failure as a warning; answering degrades rather than refusing to
// start.
func (c *Client) TestConnection(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := c.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ollama server not reachable: %w", err)
	}

	if err := c.EnsureModel(ctx, c.opts.ChatModel); err != nil {
		return err
	}

	dryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err = c.Generate(dryCtx, &GenerateRequest{
		Model:   c.opts.ChatModel,
		Prompt:  "Hello",
		Options: &GenerateOptions{NumPredict: 5},
	})
	if err != nil {
		return fmt.Errorf("inference dry-run failed: %w", err)
	}

	return nil
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
