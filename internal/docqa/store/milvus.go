package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kart-io/docqa/pkg/component/milvus"
)

// searchOutputFields are the metadata fields returned with search hits.
// created_at is only needed by Get.
var searchOutputFields = []string{"content", "source_file", "position", "source", "section", "language"}

// MilvusStore implements DocumentStore on a Milvus collection. Milvus has
// no blended keyword+vector query, so the store reports HybridUnsupported
// and retrieval runs on pure vector search.
type MilvusStore struct {
	client     *milvus.Client
	collection string
	dimension  int
}

// NewMilvusStore creates a Milvus-backed store over the named collection.
func NewMilvusStore(client *milvus.Client, collection string, dimension int) *MilvusStore {
	return &MilvusStore{
		client:     client,
		collection: collection,
		dimension:  dimension,
	}
}

// Name returns the backend identifier.
func (s *MilvusStore) Name() string {
	return "milvus"
}

// Collection returns the Milvus collection holding the chunks.
func (s *MilvusStore) Collection() string {
	return s.collection
}

// Hybrid reports that only pure vector search is available.
func (s *MilvusStore) Hybrid() HybridSupport {
	return HybridUnsupported
}

// EnsureCollection creates the chunk collection and its vector index when
// absent.
func (s *MilvusStore) EnsureCollection(ctx context.Context) error {
	schema := &milvus.CollectionSchema{
		Name:        s.collection,
		Description: "Document chunks for retrieval-augmented QA",
		Dimension:   s.dimension,
		IDMaxLen:    64,
		VarCharFields: []milvus.VarCharField{
			{Name: "content", MaxLen: 65535},
			{Name: "source_file", MaxLen: 512},
			{Name: "source", MaxLen: 32},
			{Name: "section", MaxLen: 255},
			{Name: "created_at", MaxLen: 64},
			{Name: "language", MaxLen: 16},
		},
		Int64Fields: []string{"position"},
	}
	if err := s.client.EnsureCollection(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure collection %q: %w", s.collection, err)
	}
	return nil
}

// Insert stores a new chunk. Milvus does not report primary-key conflicts
// on insert, so a lookup runs first to give callers the same
// ErrAlreadyExists contract as Weaviate. Ingestion is single-writer per
// chunk slot, which keeps the check-then-insert window harmless.
func (s *MilvusStore) Insert(ctx context.Context, chunk *Chunk) error {
	_, found, err := s.client.QueryByID(ctx, s.collection, chunk.ID, []string{"id"})
	if err != nil {
		return fmt.Errorf("failed to check chunk existence: %w", err)
	}
	if found {
		return ErrAlreadyExists
	}
	return s.client.Insert(ctx, s.collection, []milvus.Row{s.toRow(chunk)})
}

// Get fetches one chunk by ID.
func (s *MilvusStore) Get(ctx context.Context, id string) (*Chunk, error) {
	fields, found, err := s.client.QueryByID(ctx, s.collection, id,
		[]string{"content", "source_file", "position", "source", "section", "created_at", "language"})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return chunkFromFields(id, fields), nil
}

// Replace overwrites a stored chunk via upsert.
func (s *MilvusStore) Replace(ctx context.Context, chunk *Chunk) error {
	return s.client.Upsert(ctx, s.collection, []milvus.Row{s.toRow(chunk)})
}

// SearchHybrid is not available on Milvus. Callers branch on Hybrid()
// before choosing a search path, so reaching this is a programming error.
func (s *MilvusStore) SearchHybrid(ctx context.Context, query string, vector []float32, limit int, alpha float64, filter *Filter) ([]SearchResult, error) {
	return nil, fmt.Errorf("milvus backend does not support hybrid search")
}

// SearchVector runs an ANN query. Scores are L2 distances, already in
// ascending (closest first) order.
func (s *MilvusStore) SearchVector(ctx context.Context, vector []float32, limit int, filter *Filter) ([]SearchResult, error) {
	hits, err := s.client.SearchVector(ctx, s.collection, vector, limit, buildFilterExpr(filter), searchOutputFields)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		r := SearchResult{
			ID:          hit.ID,
			Distance:    float64(hit.Score),
			HasDistance: true,
		}
		if v, ok := hit.Fields["content"].(string); ok {
			r.Content = v
		}
		if v, ok := hit.Fields["source_file"].(string); ok {
			r.SourceFile = v
		}
		if v, ok := hit.Fields["position"].(int64); ok {
			r.Position = int(v)
		}
		if v, ok := hit.Fields["source"].(string); ok {
			r.Source = v
		}
		if v, ok := hit.Fields["section"].(string); ok {
			r.Section = v
		}
		if v, ok := hit.Fields["language"].(string); ok {
			r.Language = v
		}
		results = append(results, r)
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	return s.client.GetCollectionStats(ctx, s.collection)
}

func (s *MilvusStore) toRow(chunk *Chunk) milvus.Row {
	return milvus.Row{
		ID:     chunk.ID,
		Vector: chunk.Vector,
		VarChar: map[string]string{
			"content":     chunk.Content,
			"source_file": chunk.SourceFile,
			"source":      chunk.Source,
			"section":     chunk.Section,
			"created_at":  chunk.CreatedAt,
			"language":    chunk.Language,
		},
		Int64: map[string]int64{
			"position": int64(chunk.Position),
		},
	}
}

func chunkFromFields(id string, fields map[string]any) *Chunk {
	chunk := &Chunk{ID: id}
	if v, ok := fields["content"].(string); ok {
		chunk.Content = v
	}
	if v, ok := fields["source_file"].(string); ok {
		chunk.SourceFile = v
	}
	if v, ok := fields["position"].(int64); ok {
		chunk.Position = int(v)
	}
	if v, ok := fields["source"].(string); ok {
		chunk.Source = v
	}
	if v, ok := fields["section"].(string); ok {
		chunk.Section = v
	}
	if v, ok := fields["created_at"].(string); ok {
		chunk.CreatedAt = v
	}
	if v, ok := fields["language"].(string); ok {
		chunk.Language = v
	}
	return chunk
}

// buildFilterExpr renders a filter as a Milvus boolean expression, e.g.
// `source == "pdf" and language == "en"`. An empty filter renders empty.
func buildFilterExpr(filter *Filter) string {
	if filter.Empty() {
		return ""
	}
	parts := make([]string, len(filter.Clauses))
	for i, cl := range filter.Clauses {
		parts[i] = fmt.Sprintf("%s == %s", cl.Field, strconv.Quote(cl.Value))
	}
	return strings.Join(parts, " and ")
}

var _ DocumentStore = (*MilvusStore)(nil)
