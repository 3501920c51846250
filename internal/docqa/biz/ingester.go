package biz

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/docqa/langutil"
	"github.com/kart-io/docqa/internal/pkg/docqa/pdfutil"
	"github.com/kart-io/docqa/internal/pkg/docqa/textutil"
	"github.com/kart-io/docqa/pkg/pool"
)

// Chunk classification outcomes, used for stats and logs.
const (
	actionInsert = "insert"
	actionUpdate = "update"
	actionSkip   = "skip"
)

// IngesterConfig configures document ingestion.
type IngesterConfig struct {
	// ChunkSize is the chunk length in runes.
	ChunkSize int
	// ChunkOverlap is the shared run between consecutive chunks.
	ChunkOverlap int
}

// DefaultIngesterConfig returns the default chunking profile.
func DefaultIngesterConfig() *IngesterConfig {
	return &IngesterConfig{
		ChunkSize:    800,
		ChunkOverlap: 100,
	}
}

// Ingester loads PDF files into the document store. Re-running it over
// an unchanged directory is a no-op: chunks are keyed by file and
// position, and unchanged content is skipped.
type Ingester struct {
	store    store.DocumentStore
	embedder Embedder
	config   *IngesterConfig
}

// NewIngester creates an ingester. A nil config gets defaults.
func NewIngester(docStore store.DocumentStore, embedder Embedder, config *IngesterConfig) *Ingester {
	if config == nil {
		config = DefaultIngesterConfig()
	}
	return &Ingester{
		store:    docStore,
		embedder: embedder,
		config:   config,
	}
}

// Ingest processes every PDF directly under dir (not recursive) and
// returns counts of what happened. Files that cannot be parsed are
// logged and skipped; store and embedding failures abort the run. The
// first failure cancels files still in flight.
func (ing *Ingester) Ingest(ctx context.Context, dir string) (*model.IngestStats, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	if err := ing.store.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %s: %w", dir, err)
	}

	stats := &model.IngestStats{}
	if len(files) == 0 {
		logger.Warnw("no PDF files found", "directory", dir)
		return stats, nil
	}

	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	for _, path := range files {
		path := path
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if runCtx.Err() != nil {
				return
			}
			if err := ing.processFile(runCtx, path, stats, &mu); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
			}
		}
		if err := pool.SubmitToType(pool.IngestPool, task); err != nil {
			logger.Warnw("ingest pool submit failed, running inline", "error", err.Error())
			go task()
		}
	}

	wg.Wait()
	metrics.GetDocQAMetrics().RecordIngest(stats.Processed, stats.Chunks, stats.Inserts, stats.Updates, stats.Skipped, firstErr)
	if firstErr != nil {
		return nil, firstErr
	}

	stats.ElapsedSeconds = time.Since(start).Seconds()
	logger.Infow("ingestion finished",
		"directory", dir,
		"files", stats.Processed,
		"chunks", stats.Chunks,
		"inserts", stats.Inserts,
		"updates", stats.Updates,
		"skipped", stats.Skipped,
		"elapsed", stats.ElapsedSeconds,
	)
	return stats, nil
}

// processFile extracts, chunks, embeds and stores one PDF. Chunks keep
// their in-file order as positions even though files run concurrently.
func (ing *Ingester) processFile(ctx context.Context, path string, stats *model.IngestStats, mu *sync.Mutex) error {
	text, pages, err := pdfutil.ExtractText(path)
	if err != nil {
		// Unreadable input is a data problem, not a pipeline failure.
		logger.Warnw("text extraction failed, skipping file", "file", path, "error", err.Error())
		return nil
	}

	chunks := textutil.SplitIntoChunks(text, ing.config.ChunkSize, ing.config.ChunkOverlap)
	if len(chunks) == 0 {
		logger.Warnw("no text extracted, skipping file", "file", path)
		return nil
	}

	name := filepath.Base(path)
	createdAt := fileModTime(path)

	for i, content := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		vector, err := ing.embedder.EmbedSingle(ctx, content)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %d of %s: %w", i, name, err)
		}

		chunk := &store.Chunk{
			ID:         PositionKey(name, i),
			Content:    content,
			SourceFile: name,
			Position:   i,
			Source:     "pdf",
			Section:    "body",
			CreatedAt:  createdAt,
			Language:   langutil.Detect(content),
			Vector:     vector,
		}

		action, err := ing.upsert(ctx, chunk)
		if err != nil {
			return fmt.Errorf("failed to store chunk %d of %s: %w", i, name, err)
		}
		logger.Debugw("chunk stored",
			"file", name,
			"position", i,
			"revision", ChunkID(name, i, content),
			"action", action,
		)

		mu.Lock()
		stats.Chunks++
		switch action {
		case actionInsert:
			stats.Inserts++
		case actionUpdate:
			stats.Updates++
		case actionSkip:
			stats.Skipped++
		}
		mu.Unlock()
	}

	mu.Lock()
	stats.Processed++
	mu.Unlock()

	logger.Infow("file ingested", "file", name, "pages", pages, "chunks", len(chunks))
	return nil
}

// upsert stores a chunk and classifies the write. The slot address is
// content-independent, so an existing chunk means the slot was ingested
// before: unchanged content is skipped, changed content replaced.
func (ing *Ingester) upsert(ctx context.Context, chunk *store.Chunk) (string, error) {
	err := ing.store.Insert(ctx, chunk)
	if err == nil {
		return actionInsert, nil
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		return "", err
	}

	existing, err := ing.store.Get(ctx, chunk.ID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch existing chunk %s: %w", chunk.ID, err)
	}
	if existing.Content == chunk.Content {
		return actionSkip, nil
	}
	if err := ing.store.Replace(ctx, chunk); err != nil {
		return "", fmt.Errorf("failed to replace chunk %s: %w", chunk.ID, err)
	}
	return actionUpdate, nil
}

// fileModTime renders the file's modification time in RFC 3339 form,
// falling back to now when the file vanished since extraction.
func fileModTime(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return info.ModTime().UTC().Format(time.RFC3339)
}
