package ollama

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/utils/json"
)

// Generation streams carry the full conversation context on the final
// record, which grows with the configured window. The scanner buffer must
// hold the largest single line.
const maxStreamLineSize = 4 * 1024 * 1024

// StreamChoice is one completion choice inside a stream record.
type StreamChoice struct {
	Text string `json:"text"`
}

// StreamRecord is a single NDJSON record from a generation stream.
type StreamRecord struct {
	Response string         `json:"response"`
	Token    string         `json:"token"`
	Choices  []StreamChoice `json:"choices"`
	Done     bool           `json:"done"`
	Context  []int          `json:"context,omitempty"`

	// Token usage, reported on the final record.
	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// Text resolves the token text of the record. Field priority is fixed:
// "response", then "token", then the first choice's "text".
func (r *StreamRecord) Text() string {
	if r.Response != "" {
		return r.Response
	}
	if r.Token != "" {
		return r.Token
	}
	if len(r.Choices) > 0 {
		return r.Choices[0].Text
	}
	return ""
}

// GenerateStream runs a streaming generation and feeds each record to
// onRecord in arrival order. Returning false from onRecord stops the
// stream early without error; partial output is the caller's to keep.
//
// The stream runs on the unbounded client. Lines that fail to parse are
// skipped. A "data:" prefix is tolerated and a "[DONE]" sentinel ends the
// stream, as does a record with done set.
func (c *Client) GenerateStream(ctx context.Context, req *GenerateRequest, onRecord func(*StreamRecord) bool) error {
	req.Stream = true

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("generate request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(line[len("data:"):])
		}
		if line == "[DONE]" {
			return nil
		}

		var record StreamRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			logger.Debugw("skipping malformed stream line", "line_prefix", truncate(line, 50))
			continue
		}

		if !onRecord(&record) {
			return nil
		}
		if record.Done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("generate stream read failed: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
