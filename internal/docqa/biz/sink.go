package biz

import (
	"fmt"
	"strings"
	"sync"
)

// Sink receives streamed answer output: token fragments in model order
// and diagnostic lines. Implementations must tolerate calls from the
// goroutine driving the generation stream.
type Sink interface {
	// Token receives one token fragment. Fragments concatenate to the
	// final answer text without separators.
	Token(text string)
	// Debug receives one formatted diagnostic line.
	Debug(line string)
}

// StdoutSink writes tokens to standard output as they arrive and debug
// lines on their own lines. It is the default sink when a caller does
// not supply one.
type StdoutSink struct{}

func (StdoutSink) Token(text string) { fmt.Print(text) }
func (StdoutSink) Debug(line string) { fmt.Println(line) }

// CollectorSink buffers tokens and debug lines in memory. It backs the
// non-streaming query path and tests.
type CollectorSink struct {
	mu     sync.Mutex
	tokens []string
	debugs []string
}

func NewCollectorSink() *CollectorSink {
	return &CollectorSink{}
}

func (s *CollectorSink) Token(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, text)
}

func (s *CollectorSink) Debug(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugs = append(s.debugs, line)
}

// Tokens returns a copy of the token fragments received so far.
func (s *CollectorSink) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tokens))
	copy(out, s.tokens)
	return out
}

// DebugLines returns a copy of the debug lines received so far.
func (s *CollectorSink) DebugLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.debugs))
	copy(out, s.debugs)
	return out
}

// Text returns the concatenation of all token fragments.
func (s *CollectorSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.tokens, "")
}

// debugSink gates diagnostic lines by verbosity before pushing them to
// a sink. Levels run 0 (off) through 3 (verbose); a line is emitted when
// its level is at or below the configured one, prefixed "[DEBUG-<level>]".
type debugSink struct {
	sink  Sink
	level int
}

func newDebugSink(sink Sink, level int) *debugSink {
	if level < 0 {
		level = 0
	}
	if level > 3 {
		level = 3
	}
	return &debugSink{sink: sink, level: level}
}

func (d *debugSink) emit(level int, format string, args ...interface{}) {
	if d == nil || d.sink == nil || level > d.level {
		return
	}
	d.sink.Debug(fmt.Sprintf("[DEBUG-%d] ", level) + fmt.Sprintf(format, args...))
}
