// Package langutil labels text with its dominant language.
package langutil

import "github.com/abadojack/whatlanggo"

// Unknown is stored when no language can be determined.
const Unknown = "unknown"

// Detection samples at most this many leading runes; a chunk prefix is
// enough to classify and keeps ingestion cheap.
const sampleRunes = 400

// Detect returns the ISO 639-1 code of the dominant language of text.
// Text too short or ambiguous to classify reliably comes back as
// Unknown, as do languages without a two-letter code.
func Detect(text string) string {
	runes := []rune(text)
	if len(runes) > sampleRunes {
		text = string(runes[:sampleRunes])
	}

	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return Unknown
	}

	code := info.Lang.Iso6391()
	if code == "" {
		return Unknown
	}
	return code
}
