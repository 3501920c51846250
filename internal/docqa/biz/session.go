package biz

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/docqa/textutil"
)

// SessionState is the stage an answer pipeline run is in.
type SessionState string

const (
	// StateIdle means no answer has been requested yet.
	StateIdle SessionState = "IDLE"
	// StateRetrieve means candidate chunks are being fetched.
	StateRetrieve SessionState = "RETRIEVE"
	// StateRerank means candidates are being cross-encoder scored.
	StateRerank SessionState = "RERANK"
	// StatePromptBuild means the prompt is being rendered.
	StatePromptBuild SessionState = "PROMPT_BUILD"
	// StateGenerate means tokens are streaming from the model.
	StateGenerate SessionState = "GENERATE"
	// StateDone means the last answer completed.
	StateDone SessionState = "DONE"
	// StateCancelled means the last answer was stopped mid-generation.
	StateCancelled SessionState = "CANCELLED"
)

// noContextAnswer is returned when retrieval yields nothing. Generation
// is skipped entirely then.
const noContextAnswer = "I found no relevant context to answer that question."

// AnswerOptions carries the per-question knobs of Session.Answer. K and
// ContextTokens fall back to the configured defaults when zero, Alpha
// when nil.
type AnswerOptions struct {
	// K is the number of chunks kept for the prompt after re-ranking.
	K int
	// Alpha blends keyword and vector signals, 0 keyword only through
	// 1 vector only. Nil uses the configured default; an explicit 0 is
	// honored as keyword-only.
	Alpha *float64
	// Filter restricts retrieval by metadata equality.
	Filter *store.Filter
	// ContextTokens overrides the model context window when positive.
	ContextTokens int
	// DebugLevel gates diagnostic output, 0 (off) through 3 (verbose).
	DebugLevel int
	// Sink receives tokens and debug lines. Defaults to StdoutSink.
	Sink Sink
}

// Session is one conversation. It owns the model's conversation state
// and allows a single answer in flight; Cancel stops generation between
// stream records.
type Session struct {
	id        string
	createdAt time.Time

	retriever    *Retriever
	reranker     *Reranker
	generator    *Generator
	defaultK     int
	defaultAlpha float64

	// mu serializes Answer calls; convState is only touched under it.
	mu        sync.Mutex
	convState []int

	cancelled atomic.Bool

	// infoMu guards the metadata snapshot read by Info.
	infoMu    sync.RWMutex
	state     SessionState
	question  string
	answer    string
	updatedAt time.Time
}

func newSession(id string, retriever *Retriever, reranker *Reranker, generator *Generator, defaultK int, defaultAlpha float64) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		createdAt:    now,
		retriever:    retriever,
		reranker:     reranker,
		generator:    generator,
		defaultK:     defaultK,
		defaultAlpha: defaultAlpha,
		state:        StateIdle,
		updatedAt:    now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Cancel requests cooperative cancellation of the in-flight generation.
// Safe from any goroutine. Between answers it is a no-op: each Answer
// call starts with a clear flag.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// Info returns a snapshot of the session for the API.
func (s *Session) Info() model.SessionInfo {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return model.SessionInfo{
		ID:        s.id,
		State:     string(s.state),
		Question:  s.question,
		Answer:    s.answer,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) setState(state SessionState) {
	s.infoMu.Lock()
	s.state = state
	s.updatedAt = time.Now()
	s.infoMu.Unlock()
}

func (s *Session) setResult(question, answer string) {
	s.infoMu.Lock()
	s.question = question
	s.answer = answer
	s.updatedAt = time.Now()
	s.infoMu.Unlock()
}

// Answer runs the full pipeline for one question: retrieve, re-rank,
// build the prompt, stream the generation. It always returns answer
// text; failures come back as descriptive error strings rather than
// errors, so a conversation survives a flaky backend. The conversation
// state advances only when generation completes uncancelled.
func (s *Session) Answer(ctx context.Context, question string, opts AnswerOptions) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A cancel aimed at the previous answer must not kill this one.
	s.cancelled.Store(false)

	if opts.Sink == nil {
		opts.Sink = StdoutSink{}
	}
	if opts.K <= 0 {
		opts.K = s.defaultK
	}
	alpha := s.defaultAlpha
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}
	dbg := newDebugSink(opts.Sink, opts.DebugLevel)

	logger.Infow("answering question", "session_id", s.id, "k", opts.K, "alpha", alpha)

	answer, cancelled := s.runPipeline(ctx, question, alpha, opts, dbg)

	s.setResult(question, answer)
	metrics.GetDocQAMetrics().RecordAnswer(cancelled)
	return answer
}

func (s *Session) runPipeline(ctx context.Context, question string, alpha float64, opts AnswerOptions, dbg *debugSink) (string, bool) {
	m := metrics.GetDocQAMetrics()

	// ---------- 1) Retrieve ----------
	s.setState(StateRetrieve)

	// Over-fetch so the re-ranker has real candidates to choose from.
	fetchLimit := opts.K * 20
	if fetchLimit < 100 {
		fetchLimit = 100
	}

	retrievalStart := time.Now()
	texts, support, err := s.retriever.Retrieve(ctx, question, fetchLimit, alpha, opts.Filter)
	m.RecordRetrieval(time.Since(retrievalStart), err)
	if err != nil {
		logger.Errorw("retrieval failed", "session_id", s.id, "error", err.Error())
		s.setState(StateDone)
		return fmt.Sprintf("[Error generating response: %v]", err), false
	}

	if support == store.HybridSupported {
		dbg.emit(1, "hybrid search used (alpha=%g)", alpha)
	} else {
		dbg.emit(1, "hybrid not available – falling back to vector search")
	}

	if len(texts) == 0 {
		s.setState(StateDone)
		return noContextAnswer, false
	}

	// ---------- 2) Re-rank ----------
	s.setState(StateRerank)

	kept, scored := s.reranker.Rerank(ctx, question, texts, opts.K)
	if !scored {
		dbg.emit(1, "cross-encoder unavailable – falling back to neutral scores")
	}
	dbg.emit(1, "Reranked context chunks:")
	for i, chunk := range kept {
		dbg.emit(1, " %02d. score=%.4f | %s…", i+1, chunk.Score, textutil.Preview(chunk.Text, 120))
	}

	// ---------- 3) Build the prompt ----------
	s.setState(StatePromptBuild)

	contextChunks := make([]string, len(kept))
	for i, chunk := range kept {
		contextChunks[i] = chunk.Text
	}
	prompt := s.generator.BuildPrompt(question, contextChunks)

	// ---------- 4) Generate ----------
	s.setState(StateGenerate)

	llmStart := time.Now()
	result := s.generator.Generate(ctx, GenerateParams{
		Prompt:        prompt,
		State:         s.convState,
		ContextTokens: opts.ContextTokens,
		Cancelled: func() bool {
			return s.cancelled.Load() || ctx.Err() != nil
		},
		Sink:  opts.Sink,
		Debug: dbg,
	})
	m.RecordLLMCall(time.Since(llmStart), result.PromptTokens, result.CompletionTokens, result.Err)

	if result.State != nil {
		s.convState = result.State
	}

	if result.Cancelled {
		s.setState(StateCancelled)
		logger.Infow("answer cancelled", "session_id", s.id, "partial_length", len(result.Text))
		return result.Text, true
	}

	s.setState(StateDone)
	return result.Text, false
}

// SessionManager tracks live sessions by ID.
type SessionManager struct {
	retriever    *Retriever
	reranker     *Reranker
	generator    *Generator
	defaultK     int
	defaultAlpha float64

	mu       sync.RWMutex
	sessions map[string]*Session

	// entropy feeds monotonic ULIDs; idMu keeps it single-reader.
	idMu    sync.Mutex
	entropy io.Reader
}

// NewSessionManager creates a session manager over the shared pipeline
// components.
func NewSessionManager(retriever *Retriever, reranker *Reranker, generator *Generator, defaultK int, defaultAlpha float64) *SessionManager {
	if defaultK <= 0 {
		defaultK = 3
	}
	if defaultAlpha < 0 || defaultAlpha > 1 {
		defaultAlpha = 0.5
	}
	return &SessionManager{
		retriever:    retriever,
		reranker:     reranker,
		generator:    generator,
		defaultK:     defaultK,
		defaultAlpha: defaultAlpha,
		sessions:     make(map[string]*Session),
		entropy:      ulid.Monotonic(rand.Reader, 0),
	}
}

func (m *SessionManager) nextID() string {
	m.idMu.Lock()
	defer m.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
}

// Create registers a new session and returns it.
func (m *SessionManager) Create() *Session {
	session := newSession(m.nextID(), m.retriever, m.reranker, m.generator, m.defaultK, m.defaultAlpha)

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	logger.Infow("session created", "session_id", session.ID())
	return session
}

// Get returns the session with the given ID.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	return session, ok
}

// Remove drops a session. It reports whether the ID was known. An
// in-flight answer is cancelled rather than interrupted: the generation
// stops at the next stream record.
func (m *SessionManager) Remove(id string) bool {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		session.Cancel()
		logger.Infow("session removed", "session_id", id)
	}
	return ok
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
