package biz

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/pkg/component/ollama"
	ollamaopts "github.com/kart-io/docqa/pkg/options/ollama"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// notifySink forwards each token to a channel so tests can react
// mid-stream.
type notifySink struct {
	tokens chan string
}

func (s *notifySink) Token(text string) { s.tokens <- text }
func (s *notifySink) Debug(string)      {}

func newTestManager(fs *fakeStore, scorer Scorer, gen *Generator) *SessionManager {
	return NewSessionManager(NewRetriever(fs, &fakeEmbedder{}), NewReranker(scorer), gen, 3, 0.5)
}

func alphaOf(v float64) *float64 { return &v }

func TestAnswerEmptyRetrievalShortCircuits(t *testing.T) {
	fs := newFakeStore(store.HybridSupported)

	// A nil client would panic on any generation attempt, so reaching the
	// answer proves the pipeline stopped after retrieval.
	mgr := newTestManager(fs, nil, NewGenerator(nil, nil))
	session := mgr.Create()

	answer := session.Answer(context.Background(), "anything", AnswerOptions{Sink: NewCollectorSink()})
	assert.Equal(t, noContextAnswer, answer)
	assert.Equal(t, string(StateDone), session.Info().State)
}

func TestAnswerOverFetchesCandidates(t *testing.T) {
	fs := newFakeStore(store.HybridSupported)
	fs.results = []store.SearchResult{{Content: "relevant chunk"}}

	gen, _ := newStreamServer(t, `{"response":"done answer"}`, `{"done":true}`)
	mgr := newTestManager(fs, &fakeScorer{scores: []float64{0.8}}, gen)
	session := mgr.Create()

	answer := session.Answer(context.Background(), "q", AnswerOptions{K: 3, Alpha: alphaOf(0.7), Sink: NewCollectorSink()})
	assert.Equal(t, "done answer", answer)

	require.Len(t, fs.hybridCalls, 1)
	assert.Equal(t, 100, fs.hybridCalls[0].limit)
	assert.Equal(t, 0.7, fs.hybridCalls[0].alpha)
}

func TestAnswerDefaultAlphaWhenOmitted(t *testing.T) {
	fs := newFakeStore(store.HybridSupported)
	fs.results = []store.SearchResult{{Content: "relevant chunk"}}

	gen, _ := newStreamServer(t, `{"response":"ok"}`, `{"done":true}`)
	mgr := newTestManager(fs, nil, gen)
	session := mgr.Create()

	session.Answer(context.Background(), "q", AnswerOptions{Sink: NewCollectorSink()})

	require.Len(t, fs.hybridCalls, 1)
	assert.Equal(t, 0.5, fs.hybridCalls[0].alpha)
}

func TestAnswerExplicitZeroAlphaMeansKeywordOnly(t *testing.T) {
	fs := newFakeStore(store.HybridSupported)
	fs.results = []store.SearchResult{{Content: "relevant chunk"}}

	gen, _ := newStreamServer(t, `{"response":"ok"}`, `{"done":true}`)
	mgr := newTestManager(fs, nil, gen)
	session := mgr.Create()

	session.Answer(context.Background(), "q", AnswerOptions{Alpha: alphaOf(0), Sink: NewCollectorSink()})

	require.Len(t, fs.hybridCalls, 1)
	assert.Equal(t, 0.0, fs.hybridCalls[0].alpha)
}

func TestAnswerRetrievalFailureReturnsErrorText(t *testing.T) {
	fs := newFakeStore(store.HybridSupported)
	fs.searchErr = fmt.Errorf("backend gone")

	mgr := newTestManager(fs, nil, NewGenerator(nil, nil))
	session := mgr.Create()

	answer := session.Answer(context.Background(), "q", AnswerOptions{Sink: NewCollectorSink()})
	assert.True(t, strings.HasPrefix(answer, "[Error generating response:"), answer)
	assert.Equal(t, string(StateDone), session.Info().State)
}

func TestAnswerAdvancesConversationState(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []ollama.GenerateRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollama.GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		fmt.Fprintln(w, `{"response":"ok"}`)
		fmt.Fprintln(w, `{"done":true,"context":[1,2]}`)
	}))
	t.Cleanup(srv.Close)

	opts := ollamaopts.NewOptions()
	opts.BaseURL = srv.URL
	gen := NewGenerator(ollama.New(opts), nil)

	fs := newFakeStore(store.HybridSupported)
	fs.results = []store.SearchResult{{Content: "ctx"}}
	mgr := newTestManager(fs, nil, gen)
	session := mgr.Create()

	session.Answer(context.Background(), "first", AnswerOptions{Sink: NewCollectorSink()})
	session.Answer(context.Background(), "second", AnswerOptions{Sink: NewCollectorSink()})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 2)
	assert.Nil(t, requests[0].Context)
	assert.Equal(t, []int{1, 2}, requests[1].Context)
}

func TestAnswerCancellationMidStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"partial"}`)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
		fmt.Fprintln(w, `{"response":" tail"}`)
		fmt.Fprintln(w, `{"done":true,"context":[5]}`)
	}))
	t.Cleanup(srv.Close)

	opts := ollamaopts.NewOptions()
	opts.BaseURL = srv.URL
	gen := NewGenerator(ollama.New(opts), nil)

	fs := newFakeStore(store.HybridSupported)
	fs.results = []store.SearchResult{{Content: "ctx"}}
	mgr := newTestManager(fs, nil, gen)
	session := mgr.Create()

	sink := &notifySink{tokens: make(chan string, 8)}
	done := make(chan string, 1)
	go func() {
		done <- session.Answer(context.Background(), "q", AnswerOptions{Sink: sink})
	}()

	select {
	case tok := <-sink.tokens:
		assert.Equal(t, "partial", tok)
	case <-time.After(5 * time.Second):
		t.Fatal("no token arrived")
	}

	session.Cancel()
	close(release)

	select {
	case answer := <-done:
		assert.Equal(t, "partial", answer)
	case <-time.After(5 * time.Second):
		t.Fatal("answer did not return")
	}
	assert.Equal(t, string(StateCancelled), session.Info().State)
}

func TestAnswerRecordsSessionInfo(t *testing.T) {
	fs := newFakeStore(store.HybridSupported)
	fs.results = []store.SearchResult{{Content: "ctx"}}

	gen, _ := newStreamServer(t, `{"response":"the answer"}`, `{"done":true}`)
	mgr := newTestManager(fs, nil, gen)
	session := mgr.Create()

	session.Answer(context.Background(), "what?", AnswerOptions{Sink: NewCollectorSink()})

	info := session.Info()
	assert.Equal(t, "what?", info.Question)
	assert.Equal(t, "the answer", info.Answer)
	assert.Equal(t, string(StateDone), info.State)
}

func TestSessionManagerLifecycle(t *testing.T) {
	mgr := newTestManager(newFakeStore(store.HybridSupported), nil, NewGenerator(nil, nil))

	a := mgr.Create()
	b := mgr.Create()
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, mgr.Count())

	got, ok := mgr.Get(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.True(t, mgr.Remove(a.ID()))
	assert.False(t, mgr.Remove(a.ID()))
	_, ok = mgr.Get(a.ID())
	assert.False(t, ok)
	assert.Equal(t, 1, mgr.Count())
}

func TestNewSessionStartsIdle(t *testing.T) {
	mgr := newTestManager(newFakeStore(store.HybridSupported), nil, NewGenerator(nil, nil))
	session := mgr.Create()
	assert.Equal(t, string(StateIdle), session.Info().State)
}
