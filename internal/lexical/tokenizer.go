// Package lexical provides keyword search: a French-aware tokenizer and a
// BM25 index built once over a fixed corpus snapshot.
package lexical

import (
	"regexp"
	"strings"
)

// tokenRegex matches runs of lowercase letters (including the French
// accented range), and digits. Everything else is a separator.
var tokenRegex = regexp.MustCompile(`[a-zàâäéèêëïîôùûüÿçœæ0-9]+`)

// Tokenizer normalizes text into scorable terms. It is deterministic, has
// no failure mode, and is safe for concurrent use.
type Tokenizer struct {
	stopwords Stopwords
}

// NewTokenizer creates a tokenizer with the given stop-word set.
// A nil set disables stop-word filtering.
func NewTokenizer(stopwords Stopwords) *Tokenizer {
	return &Tokenizer{stopwords: stopwords}
}

// Tokenize lower-cases text, extracts letter/digit runs, and drops stop
// words and single-character tokens. Empty input yields an empty slice.
func (t *Tokenizer) Tokenize(text string) []string {
	words := tokenRegex.FindAllString(strings.ToLower(text), -1)

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) <= 1 {
			continue
		}
		if t.stopwords.Contains(w) {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}
