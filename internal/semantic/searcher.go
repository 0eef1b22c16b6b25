// Package semantic provides vector similarity search with MMR
// diversification over an in-memory HNSW graph.
package semantic

import (
	"context"

	"github.com/studyrag/studyrag/internal/corpus"
)

// Filter restricts search results by metadata: each key maps to the set of
// accepted values, and a document must match every key. A nil or empty
// filter accepts everything.
type Filter map[string][]string

// Matches reports whether doc satisfies the filter.
func (f Filter) Matches(doc corpus.Document) bool {
	for key, accepted := range f {
		value := doc.Metadata.Get(key)
		ok := false
		for _, v := range accepted {
			if v == value {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Searcher is the vector-search collaborator consumed by the retrieval
// pipeline. fetchK controls how many nearest neighbors are considered
// before diversification narrows them down to k.
type Searcher interface {
	Search(ctx context.Context, query string, k, fetchK int, filter Filter) ([]corpus.Document, error)
}
