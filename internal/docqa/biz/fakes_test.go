package biz

import (
	"context"
	"sync"

	"github.com/kart-io/docqa/internal/docqa/store"
)

// searchCall records the arguments of one store query.
type searchCall struct {
	query string
	limit int
	alpha float64
}

// fakeStore is an in-memory DocumentStore for pipeline tests. Search
// results are scripted; mutations hit a real map so upsert semantics
// behave like a backend.
type fakeStore struct {
	mu sync.Mutex

	hybrid    store.HybridSupport
	chunks    map[string]*store.Chunk
	results   []store.SearchResult
	searchErr error

	hybridCalls []searchCall
	vectorCalls []searchCall
}

func newFakeStore(hybrid store.HybridSupport) *fakeStore {
	return &fakeStore{
		hybrid: hybrid,
		chunks: make(map[string]*store.Chunk),
	}
}

func (f *fakeStore) EnsureCollection(context.Context) error { return nil }

func (f *fakeStore) Insert(_ context.Context, chunk *store.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.chunks[chunk.ID]; ok {
		return store.ErrAlreadyExists
	}
	copied := *chunk
	f.chunks[chunk.ID] = &copied
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*store.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunk, ok := f.chunks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *chunk
	copied.Vector = nil
	return &copied, nil
}

func (f *fakeStore) Replace(_ context.Context, chunk *store.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *chunk
	f.chunks[chunk.ID] = &copied
	return nil
}

func (f *fakeStore) SearchHybrid(_ context.Context, query string, _ []float32, limit int, alpha float64, _ *store.Filter) ([]store.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hybridCalls = append(f.hybridCalls, searchCall{query: query, limit: limit, alpha: alpha})
	return append([]store.SearchResult(nil), f.results...), f.searchErr
}

func (f *fakeStore) SearchVector(_ context.Context, _ []float32, limit int, _ *store.Filter) ([]store.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectorCalls = append(f.vectorCalls, searchCall{limit: limit})
	return append([]store.SearchResult(nil), f.results...), f.searchErr
}

func (f *fakeStore) Hybrid() store.HybridSupport { return f.hybrid }

func (f *fakeStore) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.chunks)), nil
}

func (f *fakeStore) Name() string       { return "fake" }
func (f *fakeStore) Collection() string { return "Document" }

var _ store.DocumentStore = (*fakeStore)(nil)

// fakeEmbedder returns a fixed vector for every text.
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) Name() string { return "fake-embedder" }

var _ Embedder = (*fakeEmbedder)(nil)

// fakeScorer scripts cross-encoder scores and failures.
type fakeScorer struct {
	scores    []float64
	pingErr   error
	rerankErr error
}

func (f *fakeScorer) Rerank(_ context.Context, _ string, texts []string) ([]float64, error) {
	if f.rerankErr != nil {
		return nil, f.rerankErr
	}
	scores := f.scores
	if len(scores) > len(texts) {
		scores = scores[:len(texts)]
	}
	return append([]float64(nil), scores...), nil
}

func (f *fakeScorer) Ping(context.Context) error { return f.pingErr }
func (f *fakeScorer) Model() string              { return "fake-cross-encoder" }

var _ Scorer = (*fakeScorer)(nil)
