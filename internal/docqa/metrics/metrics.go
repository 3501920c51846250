// Package metrics collects business metrics of the DocQA service.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DocQAMetrics holds counters for the query, retrieval, generation,
// ingestion, and session paths. Counter fields are updated atomically;
// durations are float64 seconds guarded by durationMu.
type DocQAMetrics struct {
	// Query metrics (stateless query endpoint).
	queriesTotal       uint64
	queriesCacheHits   uint64
	queriesCacheMisses uint64
	queriesErrors      uint64

	// Retrieval metrics.
	retrievalTotal    uint64
	retrievalDuration float64
	retrievalErrors   uint64

	// LLM call metrics.
	llmCallsTotal       uint64
	llmCallsDuration    float64
	llmCallsErrors      uint64
	llmTokensPrompt     uint64
	llmTokensCompletion uint64

	// Ingestion metrics.
	filesProcessed uint64
	chunksIngested uint64
	chunkInserts   uint64
	chunkUpdates   uint64
	chunksSkipped  uint64
	ingestErrors   uint64

	// Session metrics.
	sessionsCreated  uint64
	answersTotal     uint64
	answersCancelled uint64

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	globalDocQAMetrics *DocQAMetrics
	docqaMetricsOnce   sync.Once
)

// GetDocQAMetrics returns the global metrics instance.
func GetDocQAMetrics() *DocQAMetrics {
	docqaMetricsOnce.Do(func() {
		globalDocQAMetrics = &DocQAMetrics{
			startTime: time.Now(),
		}
	})
	return globalDocQAMetrics
}

// RecordQuery records one stateless query.
func (m *DocQAMetrics) RecordQuery(cacheHit bool, err error) {
	atomic.AddUint64(&m.queriesTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.queriesErrors, 1)
		return
	}
	if cacheHit {
		atomic.AddUint64(&m.queriesCacheHits, 1)
	} else {
		atomic.AddUint64(&m.queriesCacheMisses, 1)
	}
}

// RecordRetrieval records one retrieval pass.
func (m *DocQAMetrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordLLMCall records one generation call.
func (m *DocQAMetrics) RecordLLMCall(duration time.Duration, promptTokens, completionTokens int, err error) {
	atomic.AddUint64(&m.llmCallsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.llmCallsErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.llmCallsDuration += duration.Seconds()
	m.durationMu.Unlock()

	if promptTokens > 0 {
		atomic.AddUint64(&m.llmTokensPrompt, uint64(promptTokens))
	}
	if completionTokens > 0 {
		atomic.AddUint64(&m.llmTokensCompletion, uint64(completionTokens))
	}
}

// RecordIngest records one ingestion run.
func (m *DocQAMetrics) RecordIngest(files, chunks, inserts, updates, skipped int, err error) {
	if err != nil {
		atomic.AddUint64(&m.ingestErrors, 1)
		return
	}
	atomic.AddUint64(&m.filesProcessed, uint64(files))
	atomic.AddUint64(&m.chunksIngested, uint64(chunks))
	atomic.AddUint64(&m.chunkInserts, uint64(inserts))
	atomic.AddUint64(&m.chunkUpdates, uint64(updates))
	atomic.AddUint64(&m.chunksSkipped, uint64(skipped))
}

// RecordSessionCreated records one session creation.
func (m *DocQAMetrics) RecordSessionCreated() {
	atomic.AddUint64(&m.sessionsCreated, 1)
}

// RecordAnswer records one streamed session answer.
func (m *DocQAMetrics) RecordAnswer(cancelled bool) {
	atomic.AddUint64(&m.answersTotal, 1)
	if cancelled {
		atomic.AddUint64(&m.answersCancelled, 1)
	}
}

// Export renders the metrics in Prometheus text exposition format.
func (m *DocQAMetrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	counter := func(name, help string, value uint64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s counter\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %d\n", prefix, name, value))
		sb.WriteString("\n")
	}
	gauge := func(name, help, value string) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s gauge\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %s\n", prefix, name, value))
		sb.WriteString("\n")
	}

	counter("queries_total", "Total number of stateless queries.", atomic.LoadUint64(&m.queriesTotal))
	counter("queries_cache_hits_total", "Number of answer cache hits.", atomic.LoadUint64(&m.queriesCacheHits))
	counter("queries_cache_misses_total", "Number of answer cache misses.", atomic.LoadUint64(&m.queriesCacheMisses))
	counter("queries_errors_total", "Number of query errors.", atomic.LoadUint64(&m.queriesErrors))

	cacheHits := atomic.LoadUint64(&m.queriesCacheHits)
	cacheMisses := atomic.LoadUint64(&m.queriesCacheMisses)
	cacheHitRate := 0.0
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total)
	}
	gauge("cache_hit_rate", "Answer cache hit rate (0-1).", fmt.Sprintf("%.4f", cacheHitRate))

	counter("retrieval_total", "Total number of retrievals.", atomic.LoadUint64(&m.retrievalTotal))

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	counterFloat := func(name, help string, value float64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s counter\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %.6f\n", prefix, name, value))
		sb.WriteString("\n")
	}

	counterFloat("retrieval_duration_seconds_total", "Total retrieval duration.", retrievalDuration)
	counter("retrieval_errors_total", "Number of retrieval errors.", atomic.LoadUint64(&m.retrievalErrors))

	counter("llm_calls_total", "Total number of LLM calls.", atomic.LoadUint64(&m.llmCallsTotal))
	counterFloat("llm_calls_duration_seconds_total", "Total LLM call duration.", llmDuration)
	counter("llm_calls_errors_total", "Number of LLM call errors.", atomic.LoadUint64(&m.llmCallsErrors))
	counter("llm_tokens_prompt_total", "Total prompt tokens.", atomic.LoadUint64(&m.llmTokensPrompt))
	counter("llm_tokens_completion_total", "Total completion tokens.", atomic.LoadUint64(&m.llmTokensCompletion))

	counter("files_processed_total", "Total files ingested.", atomic.LoadUint64(&m.filesProcessed))
	counter("chunks_ingested_total", "Total chunks ingested.", atomic.LoadUint64(&m.chunksIngested))
	counter("chunk_inserts_total", "Chunks stored as new.", atomic.LoadUint64(&m.chunkInserts))
	counter("chunk_updates_total", "Chunks replaced after content change.", atomic.LoadUint64(&m.chunkUpdates))
	counter("chunks_skipped_total", "Chunks skipped as unchanged.", atomic.LoadUint64(&m.chunksSkipped))
	counter("ingest_errors_total", "Number of failed ingestion runs.", atomic.LoadUint64(&m.ingestErrors))

	counter("sessions_created_total", "Total sessions created.", atomic.LoadUint64(&m.sessionsCreated))
	counter("answers_total", "Total streamed session answers.", atomic.LoadUint64(&m.answersTotal))
	counter("answers_cancelled_total", "Answers stopped by cancellation.", atomic.LoadUint64(&m.answersCancelled))

	uptime := time.Since(m.startTime).Seconds()
	gauge("uptime_seconds", "Service uptime in seconds.", fmt.Sprintf("%.2f", uptime))

	return sb.String()
}

// Stats returns the current counters for the stats endpoint.
func (m *DocQAMetrics) Stats() map[string]interface{} {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	cacheHits := atomic.LoadUint64(&m.queriesCacheHits)
	cacheMisses := atomic.LoadUint64(&m.queriesCacheMisses)
	cacheHitRate := 0.0
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total)
	}

	retrievalTotal := atomic.LoadUint64(&m.retrievalTotal)
	avgRetrievalDuration := 0.0
	if retrievalTotal > 0 {
		avgRetrievalDuration = retrievalDuration / float64(retrievalTotal)
	}

	llmTotal := atomic.LoadUint64(&m.llmCallsTotal)
	avgLLMDuration := 0.0
	if llmTotal > 0 {
		avgLLMDuration = llmDuration / float64(llmTotal)
	}

	return map[string]interface{}{
		"queries": map[string]interface{}{
			"total":          atomic.LoadUint64(&m.queriesTotal),
			"cache_hits":     cacheHits,
			"cache_misses":   cacheMisses,
			"cache_hit_rate": cacheHitRate,
			"errors":         atomic.LoadUint64(&m.queriesErrors),
		},
		"retrieval": map[string]interface{}{
			"total":               retrievalTotal,
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrievalDuration,
			"errors":              atomic.LoadUint64(&m.retrievalErrors),
		},
		"llm": map[string]interface{}{
			"calls_total":         llmTotal,
			"total_duration_secs": llmDuration,
			"avg_duration_secs":   avgLLMDuration,
			"errors":              atomic.LoadUint64(&m.llmCallsErrors),
			"tokens_prompt":       atomic.LoadUint64(&m.llmTokensPrompt),
			"tokens_completion":   atomic.LoadUint64(&m.llmTokensCompletion),
		},
		"ingest": map[string]interface{}{
			"files_processed": atomic.LoadUint64(&m.filesProcessed),
			"chunks_ingested": atomic.LoadUint64(&m.chunksIngested),
			"inserts":         atomic.LoadUint64(&m.chunkInserts),
			"updates":         atomic.LoadUint64(&m.chunkUpdates),
			"skipped":         atomic.LoadUint64(&m.chunksSkipped),
			"errors":          atomic.LoadUint64(&m.ingestErrors),
		},
		"sessions": map[string]interface{}{
			"created":           atomic.LoadUint64(&m.sessionsCreated),
			"answers_total":     atomic.LoadUint64(&m.answersTotal),
			"answers_cancelled": atomic.LoadUint64(&m.answersCancelled),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset clears all counters. Test helper.
func (m *DocQAMetrics) Reset() {
	atomic.StoreUint64(&m.queriesTotal, 0)
	atomic.StoreUint64(&m.queriesCacheHits, 0)
	atomic.StoreUint64(&m.queriesCacheMisses, 0)
	atomic.StoreUint64(&m.queriesErrors, 0)
	atomic.StoreUint64(&m.retrievalTotal, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.llmCallsTotal, 0)
	atomic.StoreUint64(&m.llmCallsErrors, 0)
	atomic.StoreUint64(&m.llmTokensPrompt, 0)
	atomic.StoreUint64(&m.llmTokensCompletion, 0)
	atomic.StoreUint64(&m.filesProcessed, 0)
	atomic.StoreUint64(&m.chunksIngested, 0)
	atomic.StoreUint64(&m.chunkInserts, 0)
	atomic.StoreUint64(&m.chunkUpdates, 0)
	atomic.StoreUint64(&m.chunksSkipped, 0)
	atomic.StoreUint64(&m.ingestErrors, 0)
	atomic.StoreUint64(&m.sessionsCreated, 0)
	atomic.StoreUint64(&m.answersTotal, 0)
	atomic.StoreUint64(&m.answersCancelled, 0)

	m.durationMu.Lock()
	m.retrievalDuration = 0
	m.llmCallsDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
