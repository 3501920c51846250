package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/component/ollama"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// stubService serves the request-validation paths; sessions are always
// unknown.
type stubService struct {
	stats map[string]interface{}
}

func (s *stubService) Ingest(context.Context, string) (*model.IngestStats, error) {
	return &model.IngestStats{}, nil
}

func (s *stubService) Query(context.Context, string, biz.QueryOptions) (*model.QueryResult, error) {
	return &model.QueryResult{Answer: "stub"}, nil
}

func (s *stubService) CreateSession() *biz.Session            { return nil }
func (s *stubService) GetSession(string) (*biz.Session, bool) { return nil, false }
func (s *stubService) RemoveSession(string) bool              { return false }

func (s *stubService) ListModels(context.Context) ([]ollama.ModelInfo, error) {
	return nil, nil
}

func (s *stubService) PullModel(context.Context, string) error { return nil }

func (s *stubService) GetStats(context.Context) (map[string]interface{}, error) {
	return s.stats, nil
}

var _ biz.Service = (*stubService)(nil)

func newTestEngine(svc biz.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	h := NewDocQAHandler(svc, 0)

	v1 := engine.Group("/v1")
	v1.POST("/query", h.Query)
	v1.GET("/sessions/:id", h.GetSession)
	v1.POST("/sessions/:id/answer", h.Answer)
	v1.POST("/sessions/:id/cancel", h.CancelSession)
	v1.DELETE("/sessions/:id", h.DeleteSession)
	v1.GET("/stats", h.Stats)
	return engine
}

func TestQueryRejectsEmptyBody(t *testing.T) {
	engine := newTestEngine(&stubService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownSessionIs404(t *testing.T) {
	engine := newTestEngine(&stubService{})

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/sessions/nope"},
		{http.MethodPost, "/v1/sessions/nope/answer"},
		{http.MethodPost, "/v1/sessions/nope/cancel"},
		{http.MethodDelete, "/v1/sessions/nope"},
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(route.method, route.path, bytes.NewBufferString(`{"question":"q"}`))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", route.method, route.path)
	}
}

func TestStatsPassesThrough(t *testing.T) {
	engine := newTestEngine(&stubService{stats: map[string]interface{}{"chunk_count": float64(7)}})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chunk_count":7`)
}

func TestStreamSinkEmitsNDJSON(t *testing.T) {
	w := httptest.NewRecorder()
	sink := newStreamSink(w)

	sink.Token("Hel")
	sink.Token("lo")
	sink.Debug("[DEBUG-1] note")
	sink.Done("Hello", "DONE")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 4)

	var events []streamEvent
	for _, line := range lines {
		var ev streamEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		events = append(events, ev)
	}

	assert.Equal(t, streamEvent{Type: "token", Text: "Hel"}, events[0])
	assert.Equal(t, streamEvent{Type: "token", Text: "lo"}, events[1])
	assert.Equal(t, streamEvent{Type: "debug", Line: "[DEBUG-1] note"}, events[2])
	assert.Equal(t, streamEvent{Type: "done", Answer: "Hello", State: "DONE"}, events[3])
}
