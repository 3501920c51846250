package biz

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/pkg/component/ollama"
	ollamaopts "github.com/kart-io/docqa/pkg/options/ollama"
)

// newQueryService wires a full service over a fake store and a stub
// generation backend. Re-ranking and caching are off.
func newQueryService(t *testing.T, fs *fakeStore) *DocQAService {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"ok"}`)
		fmt.Fprintln(w, `{"done":true}`)
	}))
	t.Cleanup(srv.Close)

	opts := ollamaopts.NewOptions()
	opts.BaseURL = srv.URL
	opts.Timeout = 5 * time.Second
	return NewDocQAService(fs, &fakeEmbedder{}, ollama.New(opts), nil, nil, nil)
}

func TestQueryDefaultAlphaWhenOmitted(t *testing.T) {
	fs := newFakeStore(store.HybridSupported)
	fs.results = []store.SearchResult{{Content: "relevant chunk"}}
	svc := newQueryService(t, fs)

	result, err := svc.Query(context.Background(), "q", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Answer)

	require.Len(t, fs.hybridCalls, 1)
	assert.Equal(t, 0.5, fs.hybridCalls[0].alpha)
}

func TestQueryExplicitZeroAlphaMeansKeywordOnly(t *testing.T) {
	fs := newFakeStore(store.HybridSupported)
	fs.results = []store.SearchResult{{Content: "relevant chunk"}}
	svc := newQueryService(t, fs)

	_, err := svc.Query(context.Background(), "q", QueryOptions{Alpha: alphaOf(0)})
	require.NoError(t, err)

	require.Len(t, fs.hybridCalls, 1)
	assert.Equal(t, 0.0, fs.hybridCalls[0].alpha)
}
