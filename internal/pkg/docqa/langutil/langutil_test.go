package langutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/docqa/internal/pkg/docqa/langutil"
)

const englishText = "The quick brown fox jumps over the lazy dog. " +
	"Retrieval augmented generation grounds a language model in documents " +
	"so that answers quote real sources instead of inventing them."

func TestDetectEnglish(t *testing.T) {
	assert.Equal(t, "en", langutil.Detect(englishText))
}

func TestDetectUnknown(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t  "},
		{"digits only", "12345 67890 11121"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, langutil.Unknown, langutil.Detect(tt.text))
		})
	}
}

func TestDetectSamplesPrefixOnly(t *testing.T) {
	// The tail is far larger than the 400-rune sample window. If the
	// whole text were scanned, Cyrillic would dominate.
	prefix := strings.Repeat(englishText+" ", 4)
	tail := strings.Repeat("Быстрая коричневая лиса прыгает через ленивую собаку. ", 400)

	assert.Equal(t, "en", langutil.Detect(prefix+tail))
}
