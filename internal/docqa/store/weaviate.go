package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kart-io/docqa/pkg/component/weaviate"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// WeaviateStore implements DocumentStore on a Weaviate class. Vectors are
// always caller-supplied; the class is created without a vectorizer.
type WeaviateStore struct {
	client *weaviate.Client
	class  string
}

// NewWeaviateStore creates a Weaviate-backed store over the named class.
func NewWeaviateStore(client *weaviate.Client, class string) *WeaviateStore {
	return &WeaviateStore{client: client, class: class}
}

// Name returns the backend identifier.
func (s *WeaviateStore) Name() string {
	return "weaviate"
}

// Collection returns the Weaviate class holding the chunks.
func (s *WeaviateStore) Collection() string {
	return s.class
}

// Hybrid reports that Weaviate answers blended keyword+vector queries.
func (s *WeaviateStore) Hybrid() HybridSupport {
	return HybridSupported
}

// EnsureCollection creates the chunk class when absent.
func (s *WeaviateStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.ClassExists(ctx, s.class)
	if err != nil {
		return fmt.Errorf("failed to check class %q: %w", s.class, err)
	}
	if exists {
		return nil
	}

	schema := &weaviate.ClassSchema{
		Class:      s.class,
		Vectorizer: "none",
		Properties: []weaviate.ClassProperty{
			{Name: "content", DataType: []string{"text"}},
			{Name: "source_file", DataType: []string{"text"}},
			{Name: "position", DataType: []string{"int"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "section", DataType: []string{"text"}},
			{Name: "created_at", DataType: []string{"text"}},
			{Name: "language", DataType: []string{"text"}},
		},
	}
	if err := s.client.CreateClass(ctx, schema); err != nil {
		return fmt.Errorf("failed to create class %q: %w", s.class, err)
	}
	return nil
}

// Insert stores a new chunk. A duplicate ID maps to ErrAlreadyExists.
func (s *WeaviateStore) Insert(ctx context.Context, chunk *Chunk) error {
	err := s.client.CreateObject(ctx, s.toObject(chunk))
	if errors.Is(err, weaviate.ErrAlreadyExists) {
		return ErrAlreadyExists
	}
	return err
}

// Get fetches one chunk by ID.
func (s *WeaviateStore) Get(ctx context.Context, id string) (*Chunk, error) {
	obj, err := s.client.GetObject(ctx, s.class, id)
	if errors.Is(err, weaviate.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return chunkFromProperties(obj.ID, obj.Properties), nil
}

// Replace overwrites all properties and the vector of a stored chunk.
func (s *WeaviateStore) Replace(ctx context.Context, chunk *Chunk) error {
	return s.client.ReplaceObject(ctx, s.toObject(chunk))
}

// SearchHybrid runs a blended keyword+vector GraphQL query. The query text
// feeds the keyword side, the vector feeds the similarity side, and alpha
// weights them (0 = pure keyword, 1 = pure vector).
func (s *WeaviateStore) SearchHybrid(ctx context.Context, query string, vector []float32, limit int, alpha float64, filter *Filter) ([]SearchResult, error) {
	arg := fmt.Sprintf("hybrid: {query: %s, alpha: %s, vector: %s}",
		weaviate.Quote(query), formatFloat(alpha), weaviate.RenderVector(vector))
	return s.search(ctx, arg, limit, filter)
}

// SearchVector runs a pure vector nearest-neighbor GraphQL query.
func (s *WeaviateStore) SearchVector(ctx context.Context, vector []float32, limit int, filter *Filter) ([]SearchResult, error) {
	arg := fmt.Sprintf("nearVector: {vector: %s}", weaviate.RenderVector(vector))
	return s.search(ctx, arg, limit, filter)
}

// Count returns the number of stored chunks via the Aggregate API.
func (s *WeaviateStore) Count(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("{ Aggregate { %s { meta { count } } } }", s.class)
	data, err := s.client.GraphQL(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}

	var payload struct {
		Aggregate map[string][]struct {
			Meta struct {
				Count int64 `json:"count"`
			} `json:"meta"`
		} `json:"Aggregate"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}

	groups := payload.Aggregate[s.class]
	if len(groups) == 0 {
		return 0, nil
	}
	return groups[0].Meta.Count, nil
}

// graphQLHit is one result row of a Get query.
type graphQLHit struct {
	Content    string `json:"content"`
	SourceFile string `json:"source_file"`
	Position   int    `json:"position"`
	Source     string `json:"source"`
	Section    string `json:"section"`
	Language   string `json:"language"`
	Additional struct {
		ID       string   `json:"id"`
		Distance *float64 `json:"distance"`
	} `json:"_additional"`
}

// search runs a Get query with the given search argument and decodes the
// hits in the backend's native order.
func (s *WeaviateStore) search(ctx context.Context, searchArg string, limit int, filter *Filter) ([]SearchResult, error) {
	args := []string{searchArg, fmt.Sprintf("limit: %d", limit)}
	if !filter.Empty() {
		args = append(args, "where: "+weaviate.RenderWhere(whereClauses(filter)))
	}

	query := fmt.Sprintf(`{
  Get {
    %s(%s) {
      content
      source_file
      position
      source
      section
      language
      _additional { id distance }
    }
  }
}`, s.class, strings.Join(args, ", "))

	data, err := s.client.GraphQL(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}

	var payload struct {
		Get map[string][]graphQLHit `json:"Get"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := payload.Get[s.class]
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		r := SearchResult{
			ID:         hit.Additional.ID,
			Content:    hit.Content,
			SourceFile: hit.SourceFile,
			Position:   hit.Position,
			Source:     hit.Source,
			Section:    hit.Section,
			Language:   hit.Language,
		}
		if hit.Additional.Distance != nil {
			r.Distance = *hit.Additional.Distance
			r.HasDistance = true
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *WeaviateStore) toObject(chunk *Chunk) *weaviate.Object {
	return &weaviate.Object{
		ID:    chunk.ID,
		Class: s.class,
		Properties: map[string]interface{}{
			"content":     chunk.Content,
			"source_file": chunk.SourceFile,
			"position":    chunk.Position,
			"source":      chunk.Source,
			"section":     chunk.Section,
			"created_at":  chunk.CreatedAt,
			"language":    chunk.Language,
		},
		Vector: chunk.Vector,
	}
}

// chunkFromProperties rebuilds a chunk from a decoded property map. JSON
// numbers arrive as float64.
func chunkFromProperties(id string, props map[string]interface{}) *Chunk {
	chunk := &Chunk{ID: id}
	if v, ok := props["content"].(string); ok {
		chunk.Content = v
	}
	if v, ok := props["source_file"].(string); ok {
		chunk.SourceFile = v
	}
	if v, ok := props["position"].(float64); ok {
		chunk.Position = int(v)
	}
	if v, ok := props["source"].(string); ok {
		chunk.Source = v
	}
	if v, ok := props["section"].(string); ok {
		chunk.Section = v
	}
	if v, ok := props["created_at"].(string); ok {
		chunk.CreatedAt = v
	}
	if v, ok := props["language"].(string); ok {
		chunk.Language = v
	}
	return chunk
}

func whereClauses(filter *Filter) []weaviate.WhereClause {
	clauses := make([]weaviate.WhereClause, len(filter.Clauses))
	for i, cl := range filter.Clauses {
		clauses[i] = weaviate.WhereClause{Path: cl.Field, Value: cl.Value}
	}
	return clauses
}

// formatFloat renders alpha without trailing zeros, matching GraphQL float
// literal syntax.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var _ DocumentStore = (*WeaviateStore)(nil)
