package textutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/docqa/internal/pkg/docqa/textutil"
)

func TestSplitIntoChunks(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		chunkSize int
		overlap   int
		expected  []string
	}{
		{
			name:      "shorter than chunk size",
			text:      "hello world",
			chunkSize: 100,
			overlap:   10,
			expected:  []string{"hello world"},
		},
		{
			name:      "exact chunk size",
			text:      "abcde",
			chunkSize: 5,
			overlap:   1,
			expected:  []string{"abcde"},
		},
		{
			name:      "two chunks with overlap",
			text:      "abcdefgh",
			chunkSize: 5,
			overlap:   2,
			expected:  []string{"abcde", "defgh"},
		},
		{
			name:      "zero overlap",
			text:      "abcdef",
			chunkSize: 3,
			overlap:   0,
			expected:  []string{"abc", "def"},
		},
		{
			name:      "empty text",
			text:      "",
			chunkSize: 10,
			overlap:   2,
			expected:  nil,
		},
		{
			name:      "invalid chunk size",
			text:      "hello",
			chunkSize: 0,
			overlap:   0,
			expected:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := textutil.SplitIntoChunks(tt.text, tt.chunkSize, tt.overlap)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSplitIntoChunksOverlapClamped(t *testing.T) {
	// An overlap >= chunkSize would stall the window. It must still
	// advance and terminate.
	chunks := textutil.SplitIntoChunks("abcdefghij", 4, 10)
	assert.NotEmpty(t, chunks)
	assert.Equal(t, "abcd", chunks[0])
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 4)
	}
}

func TestSplitIntoChunksDocumentShape(t *testing.T) {
	// A realistic document split: every chunk except the last is full
	// size, and consecutive chunks share the overlap region.
	text := strings.Repeat("x", 2000)
	chunks := textutil.SplitIntoChunks(text, 800, 100)

	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 800)
	assert.Len(t, chunks[1], 800)
	assert.Len(t, chunks[2], 600)
}

func TestSplitIntoChunksMultibyte(t *testing.T) {
	text := strings.Repeat("世", 10)
	chunks := textutil.SplitIntoChunks(text, 4, 1)

	for _, c := range chunks {
		assert.True(t, strings.Count(c, "世") == len([]rune(c)), "chunk split a codepoint: %q", c)
	}
	assert.Equal(t, "世世世世", chunks[0])
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"shorter than limit", "hello", 10, "hello"},
		{"exactly at limit", "hello", 5, "hello"},
		{"truncated with ellipsis", "hello world", 8, "hello..."},
		{"tiny limit", "hello", 2, "he"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.TruncateString(tt.input, tt.maxLen))
		})
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", textutil.Preview("a\nb\r\nc", 120))

	long := strings.Repeat("abcde ", 40)
	p := textutil.Preview(long, 120)
	assert.Len(t, []rune(p), 120)
	assert.NotContains(t, p, "\n")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, textutil.EstimateTokens(""))
	assert.Equal(t, 1, textutil.EstimateTokens("abcd"))
	assert.Equal(t, 25, textutil.EstimateTokens(strings.Repeat("a", 100)))
	assert.Equal(t, 25, textutil.EstimateTokens(strings.Repeat("界", 100)))
}
