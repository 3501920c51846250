// Package textutil provides text processing helpers for document
// chunking, debug previews, and prompt sizing.
package textutil

import "strings"

// SplitIntoChunks splits text into fixed-size chunks with overlap.
// Sizes are measured in runes so multi-byte characters never get cut
// mid-codepoint. A non-positive chunkSize yields nil; an overlap at or
// above chunkSize is clamped to chunkSize-1 to keep the window moving.
func SplitIntoChunks(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	step := chunkSize - overlap
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// TruncateString shortens s to at most maxLen runes, appending "..."
// when anything was cut.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Preview renders s as a single debug line: newlines collapse to
// spaces and the result is cut to at most maxLen runes. Callers add
// their own ellipsis.
func Preview(s string, maxLen int) string {
	flat := strings.ReplaceAll(s, "\n", " ")
	flat = strings.ReplaceAll(flat, "\r", " ")
	runes := []rune(flat)
	if len(runes) <= maxLen {
		return flat
	}
	return string(runes[:maxLen])
}

// EstimateTokens approximates the token count of s for context budget
// checks, assuming roughly four characters per token.
func EstimateTokens(s string) int {
	return len([]rune(s)) / 4
}
