// Package fusion merges ranked document lists with Reciprocal Rank Fusion.
// RRF is rank-based, not score-based: sources with incomparable score scales
// (BM25 vs cosine similarity) can be combined without normalization.
package fusion

import (
	"sort"

	"github.com/studyrag/studyrag/internal/corpus"
)

// DefaultConstant is the standard RRF smoothing parameter. k=60 is large
// enough that adjacent ranks differ only modestly, so no single source
// dominates purely by winning first place.
const DefaultConstant = 60

// List is one ranked input to fusion with its source weight.
type List struct {
	Docs   []corpus.Document
	Weight float64
}

// Fuser merges ranked lists using weighted reciprocal-rank scoring.
type Fuser struct {
	// K is the RRF smoothing constant.
	K int
}

// NewFuser creates a fuser with the default constant.
func NewFuser() *Fuser {
	return &Fuser{K: DefaultConstant}
}

// NewFuserWithK creates a fuser with a custom constant.
// Non-positive values fall back to the default.
func NewFuserWithK(k int) *Fuser {
	if k <= 0 {
		k = DefaultConstant
	}
	return &Fuser{K: k}
}

// entry accumulates the fusion state for one identity key.
type entry struct {
	doc   corpus.Document // last-seen occurrence for this key
	score float64
}

// Fuse merges the input lists into a single ranked list of at most k
// documents, deduplicated by identity key.
//
// A document at 0-based rank r in a list with weight w contributes
// w / (K + r + 1). Contributions accumulate across lists sharing an
// identity key; the stored Document is the last occurrence written, so
// callers must ensure content is interchangeable across sources for the
// same key. Final order is accumulated score descending with stable
// tie-break by first-seen order.
//
// With a single non-empty input, contributions strictly decrease with
// rank, so fusion degrades to a pass-through of that list truncated to k.
func (f *Fuser) Fuse(lists []List, k int) []corpus.Document {
	entries := make(map[string]*entry)
	order := make([]string, 0)

	for _, list := range lists {
		for rank, doc := range list.Docs {
			key := doc.IdentityKey()
			e, ok := entries[key]
			if !ok {
				e = &entry{}
				entries[key] = e
				order = append(order, key)
			}
			e.doc = doc
			e.score += list.Weight / float64(f.K+rank+1)
		}
	}

	// Collect in first-seen order so the stable sort breaks ties that way.
	ranked := make([]*entry, 0, len(order))
	for _, key := range order {
		ranked = append(ranked, entries[key])
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	docs := make([]corpus.Document, len(ranked))
	for i, e := range ranked {
		docs[i] = e.doc
	}
	return docs
}
