package biz

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/model"
)

// Scorer scores candidate texts against a query. The reranker component
// is the production implementation.
type Scorer interface {
	// Rerank returns one relevance score per input text, aligned by index.
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
	// Ping probes the scoring service.
	Ping(ctx context.Context) error
	// Model identifies the cross-encoder model.
	Model() string
}

// Reranker orders retrieval candidates by cross-encoder relevance. An
// unavailable or failing scorer never fails a question: every candidate
// gets a neutral 0.0 score and retrieval order is kept. Answer quality
// degrades, availability does not.
type Reranker struct {
	scorer Scorer // nil when re-ranking is disabled

	probeOnce sync.Once
	available bool
}

// NewReranker creates a reranker over scorer. A nil scorer disables
// model scoring entirely.
func NewReranker(scorer Scorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// Rank scores texts against the question and returns the kept input
// indices in final order together with their scores. Order is score
// descending; ties and neutral scores keep input order. The bool reports
// whether the cross-encoder actually scored.
func (r *Reranker) Rank(ctx context.Context, question string, texts []string, kKeep int) ([]int, []float64, bool) {
	if kKeep < 0 {
		kKeep = 0
	}
	if kKeep > len(texts) {
		kKeep = len(texts)
	}

	scores := make([]float64, len(texts))
	scored := false
	if r.scorerReady(ctx) {
		modelScores, err := r.scorer.Rerank(ctx, question, texts)
		switch {
		case err != nil:
			logger.Debugw("rerank scoring failed, keeping retrieval order", "error", err.Error())
		case len(modelScores) != len(texts):
			logger.Debugw("rerank score count mismatch, keeping retrieval order",
				"expected", len(texts), "got", len(modelScores))
		default:
			scores = modelScores
			scored = true
		}
	}

	order := make([]int, len(texts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	order = order[:kKeep]

	kept := make([]float64, kKeep)
	for i, idx := range order {
		kept[i] = scores[idx]
	}
	return order, kept, scored
}

// Rerank is Rank projected onto the candidate texts.
func (r *Reranker) Rerank(ctx context.Context, question string, texts []string, kKeep int) ([]model.ScoredChunk, bool) {
	order, scores, scored := r.Rank(ctx, question, texts, kKeep)

	chunks := make([]model.ScoredChunk, len(order))
	for i, idx := range order {
		chunks[i] = model.ScoredChunk{Text: texts[idx], Score: scores[i]}
	}
	return chunks, scored
}

// scorerReady probes the scoring service once per process. A failed
// probe pins the neutral path for the process lifetime; a successful one
// still leaves per-call failures falling back to neutral scores.
func (r *Reranker) scorerReady(ctx context.Context) bool {
	if r.scorer == nil {
		return false
	}
	r.probeOnce.Do(func() {
		if err := r.scorer.Ping(ctx); err != nil {
			logger.Debugw("reranker unavailable, keeping retrieval order", "error", err.Error())
			return
		}
		r.available = true
		logger.Infow("reranker ready", "model", r.scorer.Model())
	})
	return r.available
}
