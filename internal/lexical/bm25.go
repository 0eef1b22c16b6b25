package lexical

import (
	"math"
	"sort"

	"github.com/studyrag/studyrag/internal/corpus"
)

// Default BM25 parameters. k1 controls term-frequency saturation, b the
// strength of document-length normalization.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Params configures BM25 scoring.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams returns the standard BM25 parameters.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// Index is a BM25 index over a corpus snapshot taken at construction time.
// The index is immutable after construction and safe for concurrent reads;
// any corpus change requires building a new Index.
type Index struct {
	docs      []corpus.Document
	tokenizer *Tokenizer
	params    Params

	docLens  []int
	termFreq []map[string]int
	idf      map[string]float64
	avgdl    float64
}

// NewIndex builds a BM25 index over docs. Invalid parameters (k1 or b not
// strictly positive) fall back to the defaults.
func NewIndex(docs []corpus.Document, tokenizer *Tokenizer, params Params) *Index {
	if params.K1 <= 0 {
		params.K1 = DefaultK1
	}
	if params.B <= 0 {
		params.B = DefaultB
	}

	idx := &Index{
		docs:      docs,
		tokenizer: tokenizer,
		params:    params,
		docLens:   make([]int, len(docs)),
		termFreq:  make([]map[string]int, len(docs)),
		idf:       make(map[string]float64),
	}

	df := make(map[string]int)
	totalLen := 0

	for i, doc := range docs {
		tokens := tokenizer.Tokenize(doc.Content)
		freq := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freq[tok]++
		}
		idx.docLens[i] = len(tokens)
		idx.termFreq[i] = freq
		totalLen += len(tokens)
		for term := range freq {
			df[term]++
		}
	}

	n := len(docs)
	idx.avgdl = 1.0
	if n > 0 {
		idx.avgdl = float64(totalLen) / float64(n)
	}

	// BM25-standard IDF variant: the +1 inside the log keeps the value
	// non-negative for terms present in most documents.
	for term, count := range df {
		idx.idf[term] = math.Log((float64(n)-float64(count)+0.5)/(float64(count)+0.5) + 1.0)
	}

	return idx
}

// Len returns the number of documents in the index snapshot.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// Query scores all documents against text and returns at most k results
// with strictly positive scores, ranked descending. Ties keep corpus order.
// An index over an empty corpus returns an empty slice.
func (idx *Index) Query(text string, k int) []corpus.ScoredDocument {
	queryTokens := idx.tokenizer.Tokenize(text)

	results := make([]corpus.ScoredDocument, 0, k)
	for i := range idx.docs {
		score := idx.score(queryTokens, i)
		if score > 0 {
			results = append(results, corpus.ScoredDocument{Doc: idx.docs[i], Score: score})
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// score computes the BM25 score of document i against the query terms.
// Terms absent from the document contribute zero.
func (idx *Index) score(queryTokens []string, i int) float64 {
	freq := idx.termFreq[i]
	docLen := float64(idx.docLens[i])

	score := 0.0
	for _, qt := range queryTokens {
		tf, ok := freq[qt]
		if !ok {
			continue
		}
		idf := idx.idf[qt]
		numerator := float64(tf) * (idx.params.K1 + 1)
		denominator := float64(tf) + idx.params.K1*(1-idx.params.B+idx.params.B*docLen/idx.avgdl)
		score += idf * numerator / denominator
	}
	return score
}
