package biz

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/store"
)

// writeTestPDF builds a single-page PDF containing the given text,
// computing the xref offsets while writing so the file is structurally
// valid.
func writeTestPDF(t *testing.T, path, text string) {
	t.Helper()

	var buf bytes.Buffer
	offsets := make([]int, 5)

	buf.WriteString("%PDF-1.4\n")

	offsets[1] = buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	offsets[3] = buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
		"/Contents 4 0 R /Resources << /Font << /F1 << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> >> >> >>\nendobj\n")

	stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	offsets[4] = buf.Len()
	fmt.Fprintf(&buf, "4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(stream), stream)

	xrefPos := buf.Len()
	buf.WriteString("xref\n0 5\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 5 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefPos)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestIngestInsertsNewDocument(t *testing.T) {
	dir := t.TempDir()
	writeTestPDF(t, filepath.Join(dir, "doc.pdf"), "Hello ingestion")

	fs := newFakeStore(store.HybridSupported)
	ing := NewIngester(fs, &fakeEmbedder{}, nil)

	stats, err := ing.Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, stats.Chunks, stats.Inserts)
	assert.Zero(t, stats.Updates)
	assert.Zero(t, stats.Skipped)
	assert.Positive(t, stats.Chunks)
}

func TestIngestUnchangedRerunSkipsEverything(t *testing.T) {
	dir := t.TempDir()
	writeTestPDF(t, filepath.Join(dir, "doc.pdf"), "Hello ingestion")

	fs := newFakeStore(store.HybridSupported)
	ing := NewIngester(fs, &fakeEmbedder{}, nil)

	first, err := ing.Ingest(context.Background(), dir)
	require.NoError(t, err)

	second, err := ing.Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, second.Inserts)
	assert.Zero(t, second.Updates)
	assert.Equal(t, first.Chunks, second.Skipped)
}

func TestIngestDetectsInPlaceEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	writeTestPDF(t, path, "Original content")

	fs := newFakeStore(store.HybridSupported)
	ing := NewIngester(fs, &fakeEmbedder{}, nil)

	_, err := ing.Ingest(context.Background(), dir)
	require.NoError(t, err)

	writeTestPDF(t, path, "Edited content")
	stats, err := ing.Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updates)
	assert.Zero(t, stats.Inserts)
	assert.Equal(t, stats.Chunks-1, stats.Skipped)
}

func TestIngestSkipsUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	writeTestPDF(t, filepath.Join(dir, "good.pdf"), "Readable")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.pdf"), []byte("not a pdf"), 0o644))

	fs := newFakeStore(store.HybridSupported)
	ing := NewIngester(fs, &fakeEmbedder{}, nil)

	stats, err := ing.Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Positive(t, stats.Inserts)
}

func TestIngestEmptyDirectory(t *testing.T) {
	fs := newFakeStore(store.HybridSupported)
	ing := NewIngester(fs, &fakeEmbedder{}, nil)

	stats, err := ing.Ingest(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
}

func TestIngestMissingDirectory(t *testing.T) {
	fs := newFakeStore(store.HybridSupported)
	ing := NewIngester(fs, &fakeEmbedder{}, nil)

	_, err := ing.Ingest(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestUpsertClassifiesActions(t *testing.T) {
	fs := newFakeStore(store.HybridSupported)
	ing := NewIngester(fs, &fakeEmbedder{}, nil)
	ctx := context.Background()

	chunk := &store.Chunk{
		ID:         PositionKey("doc.pdf", 0),
		Content:    "original",
		SourceFile: "doc.pdf",
		Vector:     []float32{0.1},
	}

	action, err := ing.upsert(ctx, chunk)
	require.NoError(t, err)
	assert.Equal(t, actionInsert, action)

	// Same slot, same content: a no-op re-ingestion.
	action, err = ing.upsert(ctx, chunk)
	require.NoError(t, err)
	assert.Equal(t, actionSkip, action)

	// Same slot, changed content: replacement.
	edited := *chunk
	edited.Content = "edited"
	action, err = ing.upsert(ctx, &edited)
	require.NoError(t, err)
	assert.Equal(t, actionUpdate, action)

	stored, err := fs.Get(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", stored.Content)
}
