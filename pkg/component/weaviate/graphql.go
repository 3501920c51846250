package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	utiljson "github.com/kart-io/docqa/pkg/utils/json"
)

// graphQLRequest is the POST /v1/graphql envelope.
type graphQLRequest struct {
	Query string `json:"query"`
}

// graphQLResponse is the GraphQL response envelope. Data stays raw so the
// caller can decode into a query-specific shape.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphQL executes a raw GraphQL query and returns the data payload.
// A response carrying GraphQL errors fails with the first message.
func (c *Client) GraphQL(ctx context.Context, query string) (json.RawMessage, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/graphql", graphQLRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("graphql request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var envelope graphQLResponse
	if err := utiljson.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode graphql response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		return nil, fmt.Errorf("graphql query failed: %s", envelope.Errors[0].Message)
	}
	return envelope.Data, nil
}

// WhereClause is one equality condition of a where filter.
type WhereClause struct {
	Path  string
	Value string
}

// RenderWhere renders where clauses in GraphQL argument syntax. One clause
// renders bare, several are AND-combined:
//
//	{path: ["source"], operator: Equal, valueText: "pdf"}
//	{operator: And, operands: [{...}, {...}]}
func RenderWhere(clauses []WhereClause) string {
	if len(clauses) == 0 {
		return ""
	}

	rendered := make([]string, len(clauses))
	for i, cl := range clauses {
		rendered[i] = fmt.Sprintf(`{path: [%s], operator: Equal, valueText: %s}`,
			Quote(cl.Path), Quote(cl.Value))
	}

	if len(rendered) == 1 {
		return rendered[0]
	}
	return fmt.Sprintf(`{operator: And, operands: [%s]}`, strings.Join(rendered, ", "))
}

// Quote renders a string as a GraphQL string literal with JSON escaping.
func Quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// RenderVector renders a float vector as a GraphQL list literal.
func RenderVector(vector []float32) string {
	b, _ := json.Marshal(vector)
	return string(b)
}
