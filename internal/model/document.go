// Package model defines the data transfer objects shared by the DocQA
// HTTP handlers, the business layer, and the ingest CLI.
package model

// ChunkSource describes one stored chunk that grounded an answer.
type ChunkSource struct {
	SourceFile string  `json:"source_file"`
	Position   int     `json:"position"`
	Section    string  `json:"section,omitempty"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// QueryResult is the payload returned by the stateless query API.
type QueryResult struct {
	Answer  string        `json:"answer"`
	Sources []ChunkSource `json:"sources,omitempty"`
	Cached  bool          `json:"cached"`
}

// ScoredChunk pairs a chunk's text with its re-rank score. It lives for
// the duration of one answer call.
type ScoredChunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// IngestStats summarizes one ingestion run over a document directory.
//
// Processed counts source files that yielded at least one chunk. Chunks
// counts every chunk examined. Inserts, Updates and Skipped partition
// Chunks by what the store did with them.
type IngestStats struct {
	Processed      int     `json:"processed"`
	Chunks         int     `json:"chunks"`
	Inserts        int     `json:"inserts"`
	Updates        int     `json:"updates"`
	Skipped        int     `json:"skipped"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Add folds counts from another run into s. Used when a watch loop
// accumulates totals across incremental ingests.
func (s *IngestStats) Add(o IngestStats) {
	s.Processed += o.Processed
	s.Chunks += o.Chunks
	s.Inserts += o.Inserts
	s.Updates += o.Updates
	s.Skipped += o.Skipped
	s.ElapsedSeconds += o.ElapsedSeconds
}
