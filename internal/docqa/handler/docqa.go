// Package handler provides the HTTP handlers of the DocQA service.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/httputils"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// DocQAHandler handles DocQA HTTP requests.
type DocQAHandler struct {
	service biz.Service

	// requestTimeout bounds synchronous handlers. The streaming answer
	// route is exempt: generation time is open-ended and bounded by
	// cancellation instead.
	requestTimeout time.Duration
}

// NewDocQAHandler creates a handler over the service.
func NewDocQAHandler(service biz.Service, requestTimeout time.Duration) *DocQAHandler {
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	return &DocQAHandler{
		service:        service,
		requestTimeout: requestTimeout,
	}
}

// IngestRequest asks for a directory of PDFs to be loaded.
type IngestRequest struct {
	Directory string `json:"directory" binding:"required"`
}

// Ingest loads every PDF directly under the given directory.
func (h *DocQAHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, errors.ErrDocQAInvalidRequest.WithMessage(err.Error()), nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	stats, err := h.service.Ingest(ctx, req.Directory)
	if err != nil {
		httputils.WriteResponse(c, errors.ErrDocQAIngestFailed.WithMessage(err.Error()), nil)
		return
	}
	httputils.WriteResponse(c, nil, stats)
}

// QueryRequest is one stateless question. Alpha is a pointer so that an
// omitted field falls back to the configured blend while an explicit 0
// still means keyword-only search.
type QueryRequest struct {
	Question string   `json:"question" binding:"required"`
	TopK     int      `json:"top_k"`
	Alpha    *float64 `json:"alpha"`
	Source   string   `json:"source"`
	Language string   `json:"language"`
}

// filterFrom renders the optional metadata filter of a request.
func filterFrom(source, language string) *store.Filter {
	if source == "" && language == "" {
		return nil
	}
	f := store.NewFilter()
	if source != "" {
		f.Equal("source", source)
	}
	if language != "" {
		f.Equal("language", language)
	}
	return f
}

// Query answers one stateless question through the full pipeline.
func (h *DocQAHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, errors.ErrDocQAEmptyQuestion.WithMessage(err.Error()), nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.service.Query(ctx, req.Question, biz.QueryOptions{
		K:      req.TopK,
		Alpha:  req.Alpha,
		Filter: filterFrom(req.Source, req.Language),
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			httputils.WriteResponse(c, errors.ErrTimeout, nil)
			return
		}
		httputils.WriteResponse(c, errors.ErrDocQAQueryFailed.WithMessage(err.Error()), nil)
		return
	}
	httputils.WriteResponse(c, nil, result)
}

// CreateSession starts a new conversation.
func (h *DocQAHandler) CreateSession(c *gin.Context) {
	session := h.service.CreateSession()
	httputils.WriteResponse(c, nil, gin.H{"session_id": session.ID()})
}

// GetSession returns a session snapshot.
func (h *DocQAHandler) GetSession(c *gin.Context) {
	session, ok := h.service.GetSession(c.Param("id"))
	if !ok {
		httputils.WriteResponse(c, errors.ErrDocQASessionNotFound, nil)
		return
	}
	httputils.WriteResponse(c, nil, session.Info())
}

// AnswerRequest is one conversational question. Alpha follows the same
// omitted-versus-zero convention as QueryRequest.
type AnswerRequest struct {
	Question      string   `json:"question" binding:"required"`
	TopK          int      `json:"top_k"`
	Alpha         *float64 `json:"alpha"`
	ContextTokens int      `json:"context_tokens"`
	DebugLevel    int      `json:"debug_level"`
	Source        string   `json:"source"`
	Language      string   `json:"language"`
}

// Answer streams one session answer as NDJSON events: token fragments
// and debug lines as they happen, a final done event with the full text.
// Client disconnect cancels the generation at the next stream record.
func (h *DocQAHandler) Answer(c *gin.Context) {
	session, ok := h.service.GetSession(c.Param("id"))
	if !ok {
		httputils.WriteResponse(c, errors.ErrDocQASessionNotFound, nil)
		return
	}

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, errors.ErrDocQAEmptyQuestion.WithMessage(err.Error()), nil)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	sink := newStreamSink(c.Writer)

	// The request context dies with the client connection; Answer polls
	// it between stream records.
	answer := session.Answer(c.Request.Context(), req.Question, biz.AnswerOptions{
		K:             req.TopK,
		Alpha:         req.Alpha,
		Filter:        filterFrom(req.Source, req.Language),
		ContextTokens: req.ContextTokens,
		DebugLevel:    req.DebugLevel,
		Sink:          sink,
	})

	sink.Done(answer, session.Info().State)
}

// CancelSession sets the session's cancel flag. The in-flight answer
// stops at the next stream record and returns its partial text.
func (h *DocQAHandler) CancelSession(c *gin.Context) {
	session, ok := h.service.GetSession(c.Param("id"))
	if !ok {
		httputils.WriteResponse(c, errors.ErrDocQASessionNotFound, nil)
		return
	}
	session.Cancel()
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

// DeleteSession removes a session, cancelling any in-flight answer.
func (h *DocQAHandler) DeleteSession(c *gin.Context) {
	if !h.service.RemoveSession(c.Param("id")) {
		httputils.WriteResponse(c, errors.ErrDocQASessionNotFound, nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"removed": true})
}

// ListModels reports the models available on the generation backend.
func (h *DocQAHandler) ListModels(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	models, err := h.service.ListModels(ctx)
	if err != nil {
		httputils.WriteResponse(c, errors.ErrDocQAModelUnavailable.WithMessage(err.Error()), nil)
		return
	}
	httputils.WriteResponse(c, nil, models)
}

// PullModelRequest names a model to make available.
type PullModelRequest struct {
	Model string `json:"model" binding:"required"`
}

// PullModel ensures a model is present on the generation backend,
// downloading it when missing. Pull time scales with model size, so the
// synchronous request timeout does not apply here.
func (h *DocQAHandler) PullModel(c *gin.Context) {
	var req PullModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputils.WriteResponse(c, errors.ErrDocQAInvalidRequest.WithMessage(err.Error()), nil)
		return
	}

	if err := h.service.PullModel(c.Request.Context(), req.Model); err != nil {
		httputils.WriteResponse(c, errors.ErrDocQAModelUnavailable.WithMessage(err.Error()), nil)
		return
	}
	httputils.WriteResponse(c, nil, gin.H{"model": req.Model, "status": "available"})
}

// Stats reports corpus size, backend capabilities and pipeline counters.
func (h *DocQAHandler) Stats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	stats, err := h.service.GetStats(ctx)
	if err != nil {
		httputils.WriteResponse(c, errors.ErrDocQAStoreUnavailable.WithMessage(err.Error()), nil)
		return
	}
	httputils.WriteResponse(c, nil, stats)
}
