package handler

import (
	"net/http"
	"sync"

	"github.com/kart-io/docqa/pkg/utils/json"
)

// streamEvent is one NDJSON line of the streaming answer response.
type streamEvent struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Line   string `json:"line,omitempty"`
	Answer string `json:"answer,omitempty"`
	State  string `json:"state,omitempty"`
}

// streamSink pushes answer output to an HTTP response as NDJSON, one
// event per line, flushed per event so tokens reach the client as they
// are produced. It implements biz.Sink.
type streamSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func newStreamSink(w http.ResponseWriter) *streamSink {
	flusher, _ := w.(http.Flusher)
	return &streamSink{w: w, flusher: flusher}
}

func (s *streamSink) write(event streamEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A failed write means the client is gone; the request context will
	// cancel the generation shortly.
	if _, err := s.w.Write(append(payload, '\n')); err != nil {
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// Token emits one token fragment.
func (s *streamSink) Token(text string) {
	s.write(streamEvent{Type: "token", Text: text})
}

// Debug emits one diagnostic line.
func (s *streamSink) Debug(line string) {
	s.write(streamEvent{Type: "debug", Line: line})
}

// Done terminates the stream with the full answer text and the final
// session state.
func (s *streamSink) Done(answer, state string) {
	s.write(streamEvent{Type: "done", Answer: answer, State: state})
}
