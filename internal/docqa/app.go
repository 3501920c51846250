// Package docqa assembles the document QA service: option loading,
// dependency wiring, and the HTTP server lifecycle.
package docqa

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/pkg/app"
	"github.com/kart-io/docqa/pkg/component"
	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/component/ollama"
	"github.com/kart-io/docqa/pkg/component/redis"
	"github.com/kart-io/docqa/pkg/component/reranker"
	"github.com/kart-io/docqa/pkg/component/weaviate"
)

const (
	appName        = "docqa"
	appDescription = `DocQA Service

Retrieval-augmented question answering over ingested PDF documents.

This server provides:
  - PDF ingestion into a hybrid-searchable chunk store
  - Hybrid keyword+vector retrieval with cross-encoder re-ranking
  - Streaming answer generation with per-session conversation state`
)

// NewApp creates the docqa server application.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run wires the service from validated options and serves until the
// process is signalled.
func Run(opts *Options) error {
	if err := InitLogger(opts, appName); err != nil {
		return err
	}
	logger.Infow("starting docqa service")

	ctx := app.SignalContext()

	deps, err := BuildService(ctx, opts)
	if err != nil {
		return err
	}
	defer deps.Close()

	if opts.DocQA.ConnectionTest {
		if err := deps.Ollama.TestConnection(ctx); err != nil {
			logger.Warnw("generation backend check failed, answering will degrade", "error", err.Error())
		}
	}

	server := NewServer(opts.HTTP, deps.Service, deps.Components)
	return server.Run(ctx)
}

// InitLogger initializes the global logger with service identity fields.
func InitLogger(opts *Options, service string) error {
	opts.Log.AddInitialField("service.name", service)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// Dependencies holds the wired service and the components behind it.
type Dependencies struct {
	Service    biz.Service
	Ollama     *ollama.Client
	Components *component.Manager

	closers []func() error
}

// Close releases every component in reverse construction order.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.Warnw("component close failed", "error", err.Error())
		}
	}
}

// BuildService constructs the document store, the backend clients and
// the business service from options. The ingest CLI and the server share
// this wiring.
func BuildService(ctx context.Context, opts *Options) (*Dependencies, error) {
	deps := &Dependencies{Components: component.NewManager()}

	// Document store. Weaviate answers hybrid queries; Milvus serves
	// the vector-only fallback path.
	var docStore store.DocumentStore
	switch opts.Store.Backend {
	case BackendWeaviate:
		client := weaviate.New(opts.Store.Weaviate)
		deps.Components.MustRegister(client.Name(), client)
		deps.closers = append(deps.closers, client.Close)
		docStore = store.NewWeaviateStore(client, opts.Store.Collection)
	case BackendMilvus:
		client, err := milvus.New(ctx, opts.Store.Milvus)
		if err != nil {
			return nil, fmt.Errorf("failed to connect milvus: %w", err)
		}
		deps.Components.MustRegister(client.Name(), client)
		deps.closers = append(deps.closers, client.Close)
		docStore = store.NewMilvusStore(client, opts.Store.Collection, opts.Store.Dimension)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Store.Backend)
	}
	logger.Infow("document store ready",
		"backend", docStore.Name(),
		"collection", docStore.Collection(),
		"hybrid", docStore.Hybrid().String(),
	)

	ollamaClient := ollama.New(opts.Ollama)
	deps.Components.MustRegister(ollamaClient.Name(), ollamaClient)
	deps.Ollama = ollamaClient

	// Redis is optional: startup proceeds without caches when it is
	// down or disabled.
	var redisClient *redis.Client
	if opts.Cache.Enabled {
		client, err := redis.New(ctx, opts.Cache.Redis)
		if err != nil {
			logger.Warnw("redis unavailable, caches disabled", "error", err.Error())
		} else {
			redisClient = client
			deps.Components.MustRegister(client.Name(), client)
			deps.closers = append(deps.closers, client.Close)
		}
	}

	var embedder biz.Embedder = ollamaClient
	if redisClient != nil {
		embedder = biz.NewCachedEmbedder(embedder, redisClient.Client(), &biz.EmbeddingCacheConfig{
			Enabled:   true,
			TTL:       opts.Cache.EmbeddingTTL,
			KeyPrefix: "emb:",
		})
	}

	// The scorer stays a nil interface when re-ranking is off; the
	// reranker then keeps retrieval order with neutral scores.
	var scorer biz.Scorer
	if opts.Reranker.Enabled {
		client := reranker.New(opts.Reranker)
		deps.Components.MustRegister(client.Name(), client)
		scorer = client
	}

	config := &biz.ServiceConfig{
		Ingester: &biz.IngesterConfig{
			ChunkSize:    opts.DocQA.ChunkSize,
			ChunkOverlap: opts.DocQA.ChunkOverlap,
		},
		Generator: &biz.GeneratorConfig{
			Model:         opts.Ollama.ChatModel,
			ContextTokens: opts.DocQA.ContextTokens,
		},
		AnswerCache: &biz.AnswerCacheConfig{
			Enabled:   opts.Cache.Enabled,
			TTL:       opts.Cache.AnswerTTL,
			KeyPrefix: "docqa:answer:",
		},
		TopK:  opts.DocQA.TopK,
		Alpha: opts.DocQA.Alpha,
	}

	var rdb *goredis.Client
	if redisClient != nil {
		rdb = redisClient.Client()
	}

	deps.Service = biz.NewDocQAService(docStore, embedder, ollamaClient, scorer, rdb, config)
	logger.Infow("docqa service wired",
		"reranker", opts.Reranker.Enabled,
		"caches", rdb != nil,
	)
	return deps, nil
}
