package biz

import (
	"context"

	"github.com/kart-io/docqa/pkg/component/ollama"
)

// Embedder produces dense vectors for text. The Ollama component is the
// production implementation; CachedEmbedder wraps any Embedder with a
// Redis cache.
type Embedder interface {
	// Embed returns one vector per input text, aligned by index.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedSingle returns the vector for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	// Name identifies the embedding backend.
	Name() string
}

var _ Embedder = (*ollama.Client)(nil)
