package docqa

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	httpopts "github.com/kart-io/docqa/pkg/options/http"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	ollamaopts "github.com/kart-io/docqa/pkg/options/ollama"
	redisopts "github.com/kart-io/docqa/pkg/options/redis"
	rerankeropts "github.com/kart-io/docqa/pkg/options/reranker"
	weaviateopts "github.com/kart-io/docqa/pkg/options/weaviate"
)

// Store backend identifiers accepted by --store.backend.
const (
	BackendWeaviate = "weaviate"
	BackendMilvus   = "milvus"
)

// StoreOptions selects and configures the document store backend.
type StoreOptions struct {
	// Backend is the active store: "weaviate" (hybrid keyword+vector)
	// or "milvus" (pure vector search).
	Backend string `json:"backend" mapstructure:"backend"`

	// Collection is the class/collection holding the chunks.
	Collection string `json:"collection" mapstructure:"collection"`

	// Dimension is the embedding vector dimension. Only Milvus needs it
	// up front, for the collection schema.
	Dimension int `json:"dimension" mapstructure:"dimension"`

	Weaviate *weaviateopts.Options `json:"weaviate" mapstructure:"weaviate"`
	Milvus   *milvusopts.Options   `json:"milvus" mapstructure:"milvus"`
}

// NewStoreOptions creates store options with defaults. Weaviate is the
// default backend because it serves the hybrid query path.
func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Backend:    BackendWeaviate,
		Collection: "Document",
		Dimension:  768,
		Weaviate:   weaviateopts.NewOptions(),
		Milvus:     milvusopts.NewOptions(),
	}
}

// AddFlags adds store flags to the flagset.
func (o *StoreOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Backend, "store.backend", o.Backend, "Document store backend (weaviate, milvus).")
	fs.StringVar(&o.Collection, "store.collection", o.Collection, "Chunk collection name.")
	fs.IntVar(&o.Dimension, "store.dimension", o.Dimension, "Embedding vector dimension.")
	o.Weaviate.AddFlags(fs, "store")
	o.Milvus.AddFlags(fs, "store")
}

// Validate validates the store options. Only the active backend's
// options are checked.
func (o *StoreOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Backend {
	case BackendWeaviate:
		errs = append(errs, o.Weaviate.Validate()...)
	case BackendMilvus:
		errs = append(errs, o.Milvus.Validate()...)
	default:
		errs = append(errs, fmt.Errorf("store backend must be weaviate or milvus, got %q", o.Backend))
	}
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("store collection is required"))
	}
	if o.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("store dimension must be positive"))
	}
	return errs
}

// CacheOptions configures the optional Redis-backed answer and
// embedding caches. With Enabled false, or when Redis is unreachable at
// startup, both caches degrade to pass-through.
type CacheOptions struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// AnswerTTL bounds cached answers of the stateless query path.
	AnswerTTL time.Duration `json:"answer-ttl" mapstructure:"answer-ttl"`

	// EmbeddingTTL bounds cached embedding vectors.
	EmbeddingTTL time.Duration `json:"embedding-ttl" mapstructure:"embedding-ttl"`

	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewCacheOptions creates cache options with defaults.
func NewCacheOptions() *CacheOptions {
	return &CacheOptions{
		Enabled:      true,
		AnswerTTL:    1 * time.Hour,
		EmbeddingTTL: 24 * time.Hour,
		Redis:        redisopts.NewOptions(),
	}
}

// AddFlags adds cache flags to the flagset.
func (o *CacheOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "cache.enabled", o.Enabled, "Enable Redis answer and embedding caches.")
	fs.DurationVar(&o.AnswerTTL, "cache.answer-ttl", o.AnswerTTL, "TTL for cached answers.")
	fs.DurationVar(&o.EmbeddingTTL, "cache.embedding-ttl", o.EmbeddingTTL, "TTL for cached embeddings.")
	o.Redis.AddFlags(fs, "cache")
}

// Validate validates the cache options.
func (o *CacheOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.AnswerTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache answer-ttl must be positive"))
	}
	if o.EmbeddingTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache embedding-ttl must be positive"))
	}
	errs = append(errs, o.Redis.Validate()...)
	return errs
}

// PipelineOptions carries the QA pipeline defaults.
type PipelineOptions struct {
	// ChunkSize is the chunk length in runes.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the shared run between consecutive chunks.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the default number of chunks kept per answer.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// Alpha is the default keyword/vector blend, 0 through 1.
	Alpha float64 `json:"alpha" mapstructure:"alpha"`

	// ContextTokens is the default model context window.
	ContextTokens int `json:"context-tokens" mapstructure:"context-tokens"`

	// DataDir is the default document directory for the ingest CLI.
	DataDir string `json:"data-dir" mapstructure:"data-dir"`

	// ConnectionTest runs the generation backend check at startup:
	// reachability, chat model presence (pulling it when missing) and a
	// short dry-run. Failure degrades, it never blocks startup.
	ConnectionTest bool `json:"connection-test" mapstructure:"connection-test"`
}

// NewPipelineOptions creates pipeline options with defaults.
func NewPipelineOptions() *PipelineOptions {
	return &PipelineOptions{
		ChunkSize:      800,
		ChunkOverlap:   100,
		TopK:           3,
		Alpha:          0.5,
		ContextTokens:  8192,
		DataDir:        "./data",
		ConnectionTest: false,
	}
}

// AddFlags adds pipeline flags to the flagset.
func (o *PipelineOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.ChunkSize, "docqa.chunk-size", o.ChunkSize, "Chunk size in runes.")
	fs.IntVar(&o.ChunkOverlap, "docqa.chunk-overlap", o.ChunkOverlap, "Overlap between consecutive chunks in runes.")
	fs.IntVar(&o.TopK, "docqa.top-k", o.TopK, "Default number of chunks kept per answer.")
	fs.Float64Var(&o.Alpha, "docqa.alpha", o.Alpha, "Default keyword/vector blend factor (0 keyword only, 1 vector only).")
	fs.IntVar(&o.ContextTokens, "docqa.context-tokens", o.ContextTokens, "Default model context window in tokens.")
	fs.StringVar(&o.DataDir, "docqa.data-dir", o.DataDir, "Default document directory for ingestion.")
	fs.BoolVar(&o.ConnectionTest, "docqa.connection-test", o.ConnectionTest, "Run a generation backend check at startup.")
}

// Validate validates the pipeline options.
func (o *PipelineOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("docqa chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("docqa chunk-overlap must not be negative"))
	}
	if o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("docqa chunk-overlap must be smaller than chunk-size"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("docqa top-k must be positive"))
	}
	if o.Alpha < 0 || o.Alpha > 1 {
		errs = append(errs, fmt.Errorf("docqa alpha must be in [0,1], got %g", o.Alpha))
	}
	if o.ContextTokens <= 0 {
		errs = append(errs, fmt.Errorf("docqa context-tokens must be positive"))
	}
	return errs
}

// Options aggregates every option group of the DocQA service.
type Options struct {
	HTTP     *httpopts.Options     `json:"http" mapstructure:"http"`
	Log      *logopts.Options      `json:"log" mapstructure:"log"`
	Store    *StoreOptions         `json:"store" mapstructure:"store"`
	Ollama   *ollamaopts.Options   `json:"ollama" mapstructure:"ollama"`
	Reranker *rerankeropts.Options `json:"reranker" mapstructure:"reranker"`
	Cache    *CacheOptions         `json:"cache" mapstructure:"cache"`
	DocQA    *PipelineOptions      `json:"docqa" mapstructure:"docqa"`
}

// NewOptions creates service options with defaults.
func NewOptions() *Options {
	return &Options{
		HTTP:     httpopts.NewOptions(),
		Log:      logopts.NewOptions(),
		Store:    NewStoreOptions(),
		Ollama:   ollamaopts.NewOptions(),
		Reranker: rerankeropts.NewOptions(),
		Cache:    NewCacheOptions(),
		DocQA:    NewPipelineOptions(),
	}
}

// AddFlags adds all flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.HTTP.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.Store.AddFlags(fs)
	o.Ollama.AddFlags(fs)
	o.Reranker.AddFlags(fs)
	o.Cache.AddFlags(fs)
	o.DocQA.AddFlags(fs)
}

// Validate validates every option group and joins the failures.
func (o *Options) Validate() error {
	var errs []error
	errs = append(errs, o.HTTP.Validate()...)
	if err := o.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.Store.Validate()...)
	errs = append(errs, o.Ollama.Validate()...)
	errs = append(errs, o.Reranker.Validate()...)
	errs = append(errs, o.Cache.Validate()...)
	errs = append(errs, o.DocQA.Validate()...)

	if len(errs) == 0 {
		return nil
	}
	msg := ""
	for i, err := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += err.Error()
	}
	return fmt.Errorf("invalid configuration: %s", msg)
}

// Complete fills derived defaults after config loading.
func (o *Options) Complete() error {
	if o.HTTP == nil {
		o.HTTP = httpopts.NewOptions()
	}
	if o.Log == nil {
		o.Log = logopts.NewOptions()
	}
	if o.Store == nil {
		o.Store = NewStoreOptions()
	}
	if o.Ollama == nil {
		o.Ollama = ollamaopts.NewOptions()
	}
	if o.Reranker == nil {
		o.Reranker = rerankeropts.NewOptions()
	}
	if o.Cache == nil {
		o.Cache = NewCacheOptions()
	}
	if o.DocQA == nil {
		o.DocQA = NewPipelineOptions()
	}
	return nil
}
