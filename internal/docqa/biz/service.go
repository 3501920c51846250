// Package biz implements the DocQA pipeline: ingestion, retrieval,
// re-ranking, prompt construction, and streamed answer generation.
package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/component/ollama"
)

// Service is the DocQA business surface consumed by the HTTP handlers
// and the ingest CLI.
type Service interface {
	// Ingest loads every PDF directly under dir into the document store.
	Ingest(ctx context.Context, dir string) (*model.IngestStats, error)

	// Query answers one stateless question. Repeated questions with the
	// same parameters are served from the answer cache.
	Query(ctx context.Context, question string, opts QueryOptions) (*model.QueryResult, error)

	// CreateSession starts a new conversation.
	CreateSession() *Session

	// GetSession returns a live session by ID.
	GetSession(id string) (*Session, bool)

	// RemoveSession drops a session, cancelling any in-flight answer.
	RemoveSession(id string) bool

	// ListModels reports the models available on the generation backend.
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)

	// PullModel makes a model available on the generation backend,
	// downloading and verifying it when missing.
	PullModel(ctx context.Context, name string) error

	// GetStats reports corpus size, backend capabilities, cache usage,
	// and pipeline counters.
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// QueryOptions carries the per-question knobs of the stateless query.
// K falls back to the configured default when zero. Alpha falls back
// when nil; an explicit 0 is honored as pure keyword search.
type QueryOptions struct {
	K      int
	Alpha  *float64
	Filter *store.Filter
}

// ServiceConfig aggregates the per-component configurations.
type ServiceConfig struct {
	Ingester    *IngesterConfig
	Generator   *GeneratorConfig
	AnswerCache *AnswerCacheConfig

	// TopK is the default number of chunks kept per answer.
	TopK int
	// Alpha is the default blend between keyword and vector search.
	Alpha float64
}

// DefaultServiceConfig returns the default service configuration.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Ingester:    DefaultIngesterConfig(),
		Generator:   DefaultGeneratorConfig(),
		AnswerCache: DefaultAnswerCacheConfig(),
		TopK:        3,
		Alpha:       0.5,
	}
}

// DocQAService implements Service over a document store, an embedder,
// and the Ollama generation backend.
type DocQAService struct {
	config *ServiceConfig

	store    store.DocumentStore
	embedder Embedder
	ollama   *ollama.Client

	ingester    *Ingester
	retriever   *Retriever
	reranker    *Reranker
	generator   *Generator
	sessions    *SessionManager
	answerCache *AnswerCache
}

// NewDocQAService wires the pipeline. scorer and redisClient may be nil:
// without a scorer re-ranking keeps retrieval order, without Redis the
// answer cache is off. Callers must pass a nil interface, not a typed
// nil, for a disabled scorer.
func NewDocQAService(docStore store.DocumentStore, embedder Embedder, ollamaClient *ollama.Client, scorer Scorer, redisClient *goredis.Client, config *ServiceConfig) *DocQAService {
	if config == nil {
		config = DefaultServiceConfig()
	}

	retriever := NewRetriever(docStore, embedder)
	reranker := NewReranker(scorer)
	generator := NewGenerator(ollamaClient, config.Generator)

	return &DocQAService{
		config:      config,
		store:       docStore,
		embedder:    embedder,
		ollama:      ollamaClient,
		ingester:    NewIngester(docStore, embedder, config.Ingester),
		retriever:   retriever,
		reranker:    reranker,
		generator:   generator,
		sessions:    NewSessionManager(retriever, reranker, generator, config.TopK, config.Alpha),
		answerCache: NewAnswerCache(redisClient, config.AnswerCache),
	}
}

// Ingest loads every PDF directly under dir into the document store.
func (s *DocQAService) Ingest(ctx context.Context, dir string) (*model.IngestStats, error) {
	logger.Infow("starting ingestion", "directory", dir)
	return s.ingester.Ingest(ctx, dir)
}

// Query answers one stateless question through the full pipeline. No
// conversation state is read or written.
func (s *DocQAService) Query(ctx context.Context, question string, opts QueryOptions) (*model.QueryResult, error) {
	m := metrics.GetDocQAMetrics()

	if opts.K <= 0 {
		opts.K = s.config.TopK
	}
	alpha := s.config.Alpha
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}

	if cached, err := s.answerCache.Get(ctx, question, opts.K, alpha, opts.Filter, s.generator.Model()); err == nil && cached != nil {
		cached.Cached = true
		m.RecordQuery(true, nil)
		return cached, nil
	}

	fetchLimit := opts.K * 20
	if fetchLimit < 100 {
		fetchLimit = 100
	}

	retrievalStart := time.Now()
	results, _, err := s.retriever.RetrieveResults(ctx, question, fetchLimit, alpha, opts.Filter)
	m.RecordRetrieval(time.Since(retrievalStart), err)
	if err != nil {
		m.RecordQuery(false, err)
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	if len(results) == 0 {
		m.RecordQuery(false, nil)
		// Not cached: the corpus may gain documents.
		return &model.QueryResult{Answer: noContextAnswer}, nil
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Content
	}
	order, scores, _ := s.reranker.Rank(ctx, question, texts, opts.K)

	contextChunks := make([]string, len(order))
	sources := make([]model.ChunkSource, len(order))
	for i, idx := range order {
		res := results[idx]
		contextChunks[i] = res.Content
		sources[i] = model.ChunkSource{
			SourceFile: res.SourceFile,
			Position:   res.Position,
			Section:    res.Section,
			Content:    res.Content,
			Score:      scores[i],
		}
	}

	prompt := s.generator.BuildPrompt(question, contextChunks)

	llmStart := time.Now()
	genResult := s.generator.Generate(ctx, GenerateParams{
		Prompt: prompt,
		Cancelled: func() bool {
			return ctx.Err() != nil
		},
	})
	m.RecordLLMCall(time.Since(llmStart), genResult.PromptTokens, genResult.CompletionTokens, genResult.Err)
	if genResult.Err != nil {
		m.RecordQuery(false, genResult.Err)
		return nil, fmt.Errorf("generation failed: %w", genResult.Err)
	}

	result := &model.QueryResult{
		Answer:  genResult.Text,
		Sources: sources,
	}

	_ = s.answerCache.Set(ctx, question, opts.K, alpha, opts.Filter, s.generator.Model(), result)

	m.RecordQuery(false, nil)
	return result, nil
}

// CreateSession starts a new conversation.
func (s *DocQAService) CreateSession() *Session {
	session := s.sessions.Create()
	metrics.GetDocQAMetrics().RecordSessionCreated()
	return session
}

// GetSession returns a live session by ID.
func (s *DocQAService) GetSession(id string) (*Session, bool) {
	return s.sessions.Get(id)
}

// RemoveSession drops a session, cancelling any in-flight answer.
func (s *DocQAService) RemoveSession(id string) bool {
	return s.sessions.Remove(id)
}

// ListModels reports the models available on the generation backend.
func (s *DocQAService) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return s.ollama.ListModels(ctx)
}

// PullModel makes a model available on the generation backend.
func (s *DocQAService) PullModel(ctx context.Context, name string) error {
	return s.ollama.EnsureModel(ctx, name)
}

// GetStats reports corpus size, backend capabilities, cache usage, and
// pipeline counters.
func (s *DocQAService) GetStats(ctx context.Context) (map[string]interface{}, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	stats := map[string]interface{}{
		"backend":     s.store.Name(),
		"collection":  s.store.Collection(),
		"chunk_count": count,
		"hybrid":      s.store.Hybrid().String(),
		"embedder":    s.embedder.Name(),
		"chat_model":  s.generator.Model(),
		"sessions":    s.sessions.Count(),
		"metrics":     metrics.GetDocQAMetrics().Stats(),
	}

	if cacheStats, err := s.answerCache.Stats(ctx); err == nil {
		stats["answer_cache"] = cacheStats
	}
	if cached, ok := s.embedder.(*CachedEmbedder); ok {
		if embStats, err := cached.CacheStats(ctx); err == nil {
			stats["embedding_cache"] = embStats
		}
	}

	return stats, nil
}

var _ Service = (*DocQAService)(nil)
