package biz

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
)

func newCacheRedis(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// countingEmbedder counts backend calls so cache hits are observable.
type countingEmbedder struct {
	fakeEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.fakeEmbedder.Embed(ctx, texts)
}

func (c *countingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.fakeEmbedder.EmbedSingle(ctx, text)
}

func TestAnswerCacheRoundTrip(t *testing.T) {
	cache := NewAnswerCache(newCacheRedis(t), nil)
	ctx := context.Background()

	got, err := cache.Get(ctx, "q", 3, 0.5, nil, "model-a")
	require.NoError(t, err)
	assert.Nil(t, got, "fresh cache must miss")

	stored := &model.QueryResult{Answer: "cached answer"}
	require.NoError(t, cache.Set(ctx, "q", 3, 0.5, nil, "model-a", stored))

	got, err = cache.Get(ctx, "q", 3, 0.5, nil, "model-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cached answer", got.Answer)
}

func TestAnswerCacheKeyCoversParameters(t *testing.T) {
	cache := NewAnswerCache(newCacheRedis(t), nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "q", 3, 0.5, nil, "model-a", &model.QueryResult{Answer: "a"}))

	// Any parameter change is a different key.
	for name, get := range map[string]func() (*model.QueryResult, error){
		"different question": func() (*model.QueryResult, error) { return cache.Get(ctx, "other", 3, 0.5, nil, "model-a") },
		"different k":        func() (*model.QueryResult, error) { return cache.Get(ctx, "q", 5, 0.5, nil, "model-a") },
		"different alpha":    func() (*model.QueryResult, error) { return cache.Get(ctx, "q", 3, 0.9, nil, "model-a") },
		"different model":    func() (*model.QueryResult, error) { return cache.Get(ctx, "q", 3, 0.5, nil, "model-b") },
		"added filter": func() (*model.QueryResult, error) {
			return cache.Get(ctx, "q", 3, 0.5, &store.Filter{Clauses: []store.Clause{{Field: "language", Value: "en"}}}, "model-a")
		},
	} {
		got, err := get()
		require.NoError(t, err)
		assert.Nil(t, got, "%s must miss", name)
	}
}

func TestAnswerCacheDisabledWithoutRedis(t *testing.T) {
	cache := NewAnswerCache(nil, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "q", 3, 0.5, nil, "m", &model.QueryResult{Answer: "a"}))
	got, err := cache.Get(ctx, "q", 3, 0.5, nil, "m")
	require.NoError(t, err)
	assert.Nil(t, got)

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, false, stats["enabled"])
}

func TestAnswerCacheStats(t *testing.T) {
	cache := NewAnswerCache(newCacheRedis(t), nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "q1", 3, 0.5, nil, "m", &model.QueryResult{Answer: "a"}))
	require.NoError(t, cache.Set(ctx, "q2", 3, 0.5, nil, "m", &model.QueryResult{Answer: "b"}))

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, 2, stats["key_count"])
}

func TestCachedEmbedderSingleHitsCache(t *testing.T) {
	backend := &countingEmbedder{}
	emb := NewCachedEmbedder(backend, newCacheRedis(t), nil)
	ctx := context.Background()

	first, err := emb.EmbedSingle(ctx, "hello")
	require.NoError(t, err)

	second, err := emb.EmbedSingle(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), backend.calls.Load())
}

func TestCachedEmbedderBatchMixesCacheAndBackend(t *testing.T) {
	backend := &countingEmbedder{}
	emb := NewCachedEmbedder(backend, newCacheRedis(t), nil)
	ctx := context.Background()

	_, err := emb.EmbedSingle(ctx, "cached")
	require.NoError(t, err)

	vectors, err := emb.Embed(ctx, []string{"cached", "fresh"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.NotNil(t, vectors[0])
	assert.NotNil(t, vectors[1])

	// One call for the seed, one batch call for the single uncached text.
	assert.Equal(t, int64(2), backend.calls.Load())
}

func TestCachedEmbedderPassthroughWithoutRedis(t *testing.T) {
	backend := &countingEmbedder{}
	emb := NewCachedEmbedder(backend, nil, nil)
	ctx := context.Background()

	_, err := emb.EmbedSingle(ctx, "hello")
	require.NoError(t, err)
	_, err = emb.EmbedSingle(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(2), backend.calls.Load())
}

func TestCachedEmbedderStats(t *testing.T) {
	backend := &countingEmbedder{}
	emb := NewCachedEmbedder(backend, newCacheRedis(t), nil)
	ctx := context.Background()

	_, err := emb.EmbedSingle(ctx, "hello")
	require.NoError(t, err)

	stats, err := emb.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, 1, stats["key_count"])
	assert.Equal(t, "fake-embedder", stats["embedder"])
}
