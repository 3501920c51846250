// Package store provides the chunk storage layer of the DocQA service.
//
// It defines the DocumentStore contract plus two backends: Weaviate
// (hybrid keyword+vector queries) and Milvus (pure vector search). The
// retriever consults the backend's hybrid capability once per call and
// picks the query path accordingly.
package store

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors shared by all backends.
var (
	// ErrAlreadyExists is returned by Insert when a chunk with the same
	// ID is already stored.
	ErrAlreadyExists = errors.New("store: chunk already exists")

	// ErrNotFound is returned by Get when no chunk carries the ID.
	ErrNotFound = errors.New("store: chunk not found")
)

// Chunk is one stored document fragment.
type Chunk struct {
	// ID is the deterministic chunk slot address (UUID text form of the
	// md5 digest over source file and position). Content changes keep
	// the ID, which is how in-place edits surface as insert conflicts.
	ID string
	// Content is the chunk text.
	Content string
	// SourceFile is the base name of the originating file.
	SourceFile string
	// Position is the zero-based chunk index within the source file.
	Position int
	// Source is the document kind, "pdf" for ingested files.
	Source string
	// Section is the document section, "body" for plain extraction.
	Section string
	// CreatedAt is the source file's modification time in RFC 3339 form.
	CreatedAt string
	// Language is the ISO 639-1 code detected from the chunk, or "unknown".
	Language string
	// Vector is the chunk's embedding. Always supplied by the caller.
	Vector []float32
}

// SearchResult is one retrieved chunk with its backend distance.
type SearchResult struct {
	ID         string
	Content    string
	SourceFile string
	Position   int
	Source     string
	Section    string
	Language   string

	// Distance is the backend's reported distance, smaller is closer.
	// Only meaningful when HasDistance is set; hybrid backends may omit it.
	Distance    float64
	HasDistance bool
}

// Clause is one equality condition on a metadata field.
type Clause struct {
	Field string
	Value string
}

// Filter is an ordered conjunction of equality clauses.
type Filter struct {
	Clauses []Clause
}

// NewFilter creates an empty filter.
func NewFilter() *Filter {
	return &Filter{}
}

// Equal appends an equality clause and returns the filter for chaining.
func (f *Filter) Equal(field, value string) *Filter {
	f.Clauses = append(f.Clauses, Clause{Field: field, Value: value})
	return f
}

// Empty reports whether the filter has no clauses. A nil filter is empty.
func (f *Filter) Empty() bool {
	return f == nil || len(f.Clauses) == 0
}

// Key renders the filter in a canonical text form for cache keys. Clause
// order is preserved, so logically equal filters built in different
// orders produce different keys.
func (f *Filter) Key() string {
	if f.Empty() {
		return ""
	}
	parts := make([]string, len(f.Clauses))
	for i, c := range f.Clauses {
		parts[i] = c.Field + "=" + c.Value
	}
	return strings.Join(parts, "&")
}

// HybridSupport reports whether a backend can run blended keyword+vector
// queries. It is an expected capability outcome, not an error: callers
// branch on the value instead of probing for failures.
type HybridSupport int

const (
	// HybridSupported means the backend answers blended queries with an
	// alpha weighting between keyword and vector signals.
	HybridSupported HybridSupport = iota
	// HybridUnsupported means only pure vector search is available.
	HybridUnsupported
)

// String returns the capability name for logs.
func (h HybridSupport) String() string {
	if h == HybridSupported {
		return "supported"
	}
	return "unsupported"
}

// DocumentStore is the chunk storage contract.
type DocumentStore interface {
	// EnsureCollection creates the chunk collection when absent.
	// Existing collections are left untouched.
	EnsureCollection(ctx context.Context) error

	// Insert stores a new chunk. Returns ErrAlreadyExists when a chunk
	// with the same ID is present.
	Insert(ctx context.Context, chunk *Chunk) error

	// Get fetches one chunk by ID. Returns ErrNotFound when absent.
	// The returned chunk carries no vector.
	Get(ctx context.Context, id string) (*Chunk, error)

	// Replace overwrites all fields and the vector of a stored chunk.
	Replace(ctx context.Context, chunk *Chunk) error

	// SearchHybrid runs a blended keyword+vector query with the given
	// alpha weighting. Valid only when Hybrid reports HybridSupported.
	SearchHybrid(ctx context.Context, query string, vector []float32, limit int, alpha float64, filter *Filter) ([]SearchResult, error)

	// SearchVector runs a pure vector nearest-neighbor query.
	SearchVector(ctx context.Context, vector []float32, limit int, filter *Filter) ([]SearchResult, error)

	// Hybrid reports the backend's hybrid query capability.
	Hybrid() HybridSupport

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int64, error)

	// Name returns the backend identifier for logs and stats.
	Name() string

	// Collection returns the collection the chunks live in.
	Collection() string
}
