package lexical

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Stopwords is a closed set of terms excluded from tokenization.
// The set is configuration data, not logic: deployments indexing another
// language swap the list without touching the scorer.
type Stopwords map[string]struct{}

// NewStopwords builds a set from a word list.
func NewStopwords(words []string) Stopwords {
	s := make(Stopwords, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// Contains reports whether token is a stop word.
func (s Stopwords) Contains(token string) bool {
	_, ok := s[token]
	return ok
}

// LoadStopwords reads a YAML word list from path.
func LoadStopwords(path string) (Stopwords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stopwords: %w", err)
	}
	var words []string
	if err := yaml.Unmarshal(data, &words); err != nil {
		return nil, fmt.Errorf("parse stopwords: %w", err)
	}
	return NewStopwords(words), nil
}

// FrenchStopwords returns the default French stop-word set used when no
// deployment-specific list is configured.
func FrenchStopwords() Stopwords {
	return NewStopwords([]string{
		"le", "la", "les", "de", "du", "des", "un", "une", "et", "est",
		"en", "que", "qui", "dans", "pour", "par", "sur", "au", "aux",
		"ce", "ces", "son", "sa", "ses", "il", "elle", "nous", "vous",
		"ils", "elles", "ne", "pas", "plus", "se", "ou", "mais", "avec",
		"sont", "ont", "etre", "avoir", "a", "d", "l", "qu", "n", "c",
		"je", "tu", "me", "te", "on", "leur", "entre", "soit", "cette",
		"tout", "tous", "peut", "comme", "aussi", "alors", "si", "bien",
		"fait", "faire", "dit", "donc", "tres", "meme", "sans", "car",
		"apres", "avant", "ici", "encore", "deux", "autre", "autres",
	})
}
