package semantic

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/studyrag/studyrag/internal/corpus"
	"github.com/studyrag/studyrag/internal/embed"
)

// MMRLambda balances relevance against novelty during diversification.
// 0.5 weighs both equally, matching the usual MMR retriever default.
const MMRLambda = 0.5

// HNSWIndex is a Searcher over an in-memory HNSW graph. Documents are
// added once at build time; concurrent searches are safe afterwards.
type HNSWIndex struct {
	embedder embed.Embedder

	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	docs    map[uint64]corpus.Document
	vectors map[uint64][]float32
	nextKey uint64
}

var _ Searcher = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty index using embedder for queries and
// documents.
func NewHNSWIndex(embedder embed.Embedder) (*HNSWIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("semantic: embedder is required")
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &HNSWIndex{
		embedder: embedder,
		graph:    graph,
		docs:     make(map[uint64]corpus.Document),
		vectors:  make(map[uint64][]float32),
	}, nil
}

// Add embeds docs and inserts them into the graph.
func (idx *HNSWIndex) Add(ctx context.Context, docs []corpus.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	return idx.AddEmbedded(docs, vectors)
}

// AddEmbedded inserts docs with precomputed vectors, e.g. loaded from the
// document store to avoid re-embedding an already indexed corpus.
func (idx *HNSWIndex) AddEmbedded(docs []corpus.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("docs and vectors length mismatch: %d vs %d", len(docs), len(vectors))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i, doc := range docs {
		vec := normalize(vectors[i])
		key := idx.nextKey
		idx.nextKey++

		idx.graph.Add(hnsw.MakeNode(key, vec))
		idx.docs[key] = doc
		idx.vectors[key] = vec
	}
	return nil
}

// Len returns the number of indexed documents.
func (idx *HNSWIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search implements Searcher. The fetchK nearest neighbors are retrieved,
// filtered, then diversified with maximal marginal relevance down to k.
func (idx *HNSWIndex) Search(ctx context.Context, query string, k, fetchK int, filter Filter) ([]corpus.Document, error) {
	if k <= 0 {
		return []corpus.Document{}, nil
	}
	if fetchK < k {
		fetchK = k
	}

	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec = normalize(queryVec)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.docs) == 0 {
		return []corpus.Document{}, nil
	}

	// Over-fetch when filtering: matches may be sparse among the nearest
	// neighbors.
	searchK := fetchK
	if len(filter) > 0 {
		searchK = fetchK * 2
	}
	if searchK > len(idx.docs) {
		searchK = len(idx.docs)
	}

	nodes := idx.graph.Search(queryVec, searchK)

	candidates := make([]uint64, 0, len(nodes))
	for _, node := range nodes {
		doc, ok := idx.docs[node.Key]
		if !ok {
			continue
		}
		if !filter.Matches(doc) {
			continue
		}
		candidates = append(candidates, node.Key)
		if len(candidates) == fetchK {
			break
		}
	}

	selected := idx.mmrSelect(queryVec, candidates, k)

	results := make([]corpus.Document, len(selected))
	for i, key := range selected {
		results[i] = idx.docs[key]
	}
	return results, nil
}

// mmrSelect picks k candidates by maximal marginal relevance: each round
// takes the candidate maximizing λ·sim(query, d) − (1−λ)·max sim(d, chosen).
// Candidates arrive in nearest-first order, so the first pick is always the
// closest match.
func (idx *HNSWIndex) mmrSelect(queryVec []float32, candidates []uint64, k int) []uint64 {
	if len(candidates) <= k {
		return candidates
	}

	querySim := make(map[uint64]float64, len(candidates))
	for _, key := range candidates {
		querySim[key] = cosineSimilarity(queryVec, idx.vectors[key])
	}

	selected := make([]uint64, 0, k)
	remaining := append([]uint64(nil), candidates...)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)

		for i, key := range remaining {
			redundancy := 0.0
			for _, chosen := range selected {
				sim := cosineSimilarity(idx.vectors[key], idx.vectors[chosen])
				if sim > redundancy {
					redundancy = sim
				}
			}
			score := MMRLambda*querySim[key] - (1-MMRLambda)*redundancy
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// normalize returns v scaled to unit length. Zero vectors pass through.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// cosineSimilarity assumes both vectors are unit length.
func cosineSimilarity(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
