package biz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/component/reranker"
	rerankeropts "github.com/kart-io/docqa/pkg/options/reranker"
	"github.com/kart-io/docqa/pkg/utils/json"
)

func TestRerankOrdersByScoreDescending(t *testing.T) {
	r := NewReranker(&fakeScorer{scores: []float64{0.2, 0.9, 0.5}})

	chunks, scored := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	assert.True(t, scored)
	require.Len(t, chunks, 2)
	assert.Equal(t, "b", chunks[0].Text)
	assert.Equal(t, 0.9, chunks[0].Score)
	assert.Equal(t, "c", chunks[1].Text)
	assert.Equal(t, 0.5, chunks[1].Score)
}

func TestRerankTiesKeepInputOrder(t *testing.T) {
	r := NewReranker(&fakeScorer{scores: []float64{0.5, 0.5, 0.5}})

	chunks, scored := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 3)
	assert.True(t, scored)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{chunks[0].Text, chunks[1].Text, chunks[2].Text})
}

func TestRerankWithoutScorerKeepsInputOrder(t *testing.T) {
	r := NewReranker(nil)

	chunks, scored := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	assert.False(t, scored)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].Text)
	assert.Equal(t, "b", chunks[1].Text)
	assert.Equal(t, 0.0, chunks[0].Score)
	assert.Equal(t, 0.0, chunks[1].Score)
}

func TestRerankUnreachableScorerFallsBackNeutral(t *testing.T) {
	r := NewReranker(&fakeScorer{pingErr: errors.New("connection refused")})

	chunks, scored := r.Rerank(context.Background(), "q", []string{"a", "b"}, 2)
	assert.False(t, scored)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].Text)
	assert.Equal(t, 0.0, chunks[0].Score)
}

func TestRerankProbePinsUnavailability(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{0.9, 0.1}, pingErr: errors.New("down")}
	r := NewReranker(scorer)

	_, scored := r.Rerank(context.Background(), "q", []string{"a", "b"}, 2)
	assert.False(t, scored)

	// The service coming back up later does not re-probe.
	scorer.pingErr = nil
	_, scored = r.Rerank(context.Background(), "q", []string{"a", "b"}, 2)
	assert.False(t, scored)
}

func TestRerankScoringFailureFallsBackPerCall(t *testing.T) {
	scorer := &fakeScorer{scores: []float64{0.1, 0.9}, rerankErr: errors.New("inference failed")}
	r := NewReranker(scorer)

	chunks, scored := r.Rerank(context.Background(), "q", []string{"a", "b"}, 2)
	assert.False(t, scored)
	assert.Equal(t, "a", chunks[0].Text)

	// A later call with a healthy scorer gets real scores again.
	scorer.rerankErr = nil
	chunks, scored = r.Rerank(context.Background(), "q", []string{"a", "b"}, 2)
	assert.True(t, scored)
	assert.Equal(t, "b", chunks[0].Text)
}

func TestRerankLateCandidateReachesTopK(t *testing.T) {
	// The full over-fetch window goes through the scoring client; a
	// strong candidate near the end of 100 retrieved chunks must still
	// win the top slot.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		var req struct {
			Query string   `json:"query"`
			Texts []string `json:"texts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		for i, text := range req.Texts {
			if text == "needle" {
				fmt.Fprintf(w, `[{"index":%d,"score":0.99}]`, i)
				return
			}
		}
		fmt.Fprint(w, `[]`)
	}))
	t.Cleanup(srv.Close)

	opts := rerankeropts.NewOptions()
	opts.BaseURL = srv.URL
	opts.Timeout = 5 * time.Second
	r := NewReranker(reranker.New(opts))

	texts := make([]string, 100)
	for i := range texts {
		texts[i] = fmt.Sprintf("doc %d", i)
	}
	texts[80] = "needle"

	chunks, scored := r.Rerank(context.Background(), "q", texts, 3)
	assert.True(t, scored)
	require.Len(t, chunks, 3)
	assert.Equal(t, "needle", chunks[0].Text)
	assert.Equal(t, 0.99, chunks[0].Score)
}

func TestRerankShortScoreVectorFallsBackNeutral(t *testing.T) {
	// A scorer returning fewer scores than texts must not panic the
	// ordering; candidates keep input order with neutral scores.
	r := NewReranker(&fakeScorer{scores: []float64{0.9}})

	chunks, scored := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 3)
	assert.False(t, scored)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{chunks[0].Text, chunks[1].Text, chunks[2].Text})
	assert.Equal(t, 0.0, chunks[0].Score)
}

func TestRerankKeepCappedAtInputLength(t *testing.T) {
	r := NewReranker(nil)

	chunks, _ := r.Rerank(context.Background(), "q", []string{"a"}, 5)
	assert.Len(t, chunks, 1)

	chunks, _ = r.Rerank(context.Background(), "q", nil, 3)
	assert.Empty(t, chunks)
}
