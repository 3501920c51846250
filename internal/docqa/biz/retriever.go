package biz

import (
	"context"
	"fmt"
	"sort"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
)

// Retriever runs first-pass candidate retrieval against the document
// store. It embeds the question once, then queries through the backend's
// preferred path: hybrid keyword+vector when supported, pure vector
// otherwise.
type Retriever struct {
	store    store.DocumentStore
	embedder Embedder
}

// NewRetriever creates a retriever over the given store and embedder.
func NewRetriever(docStore store.DocumentStore, embedder Embedder) *Retriever {
	return &Retriever{
		store:    docStore,
		embedder: embedder,
	}
}

// Retrieve returns up to limit chunk texts relevant to the question,
// closest first, plus the query path the store supported. Zero matches
// is a valid outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string, limit int, alpha float64, filter *store.Filter) ([]string, store.HybridSupport, error) {
	results, support, err := r.RetrieveResults(ctx, question, limit, alpha, filter)
	if err != nil {
		return nil, support, err
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Content
	}
	return texts, support, nil
}

// RetrieveResults is Retrieve with full result metadata, for callers
// that build source attributions.
func (r *Retriever) RetrieveResults(ctx context.Context, question string, limit int, alpha float64, filter *store.Filter) ([]store.SearchResult, store.HybridSupport, error) {
	support := r.store.Hybrid()

	vector, err := r.embedder.EmbedSingle(ctx, question)
	if err != nil {
		return nil, support, fmt.Errorf("failed to embed question: %w", err)
	}

	var results []store.SearchResult
	if support == store.HybridSupported {
		results, err = r.store.SearchHybrid(ctx, question, vector, limit, alpha, filter)
	} else {
		results, err = r.store.SearchVector(ctx, vector, limit, filter)
	}
	if err != nil {
		return nil, support, fmt.Errorf("retrieval query failed: %w", err)
	}

	sortByDistance(results)

	logger.Debugw("retrieval complete",
		"backend", r.store.Name(),
		"hybrid", support.String(),
		"candidates", len(results),
		"limit", limit,
	)
	return results, support, nil
}

// sortByDistance re-sorts results ascending by distance when the backend
// reported one. Backends already return closest-first, so this is a
// safeguard; results without distances keep their native order.
func sortByDistance(results []store.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if !results[i].HasDistance || !results[j].HasDistance {
			return false
		}
		return results[i].Distance < results[j].Distance
	})
}
