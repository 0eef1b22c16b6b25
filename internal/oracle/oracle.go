// Package oracle defines the text-transform collaborator used by the
// retrieval pipeline: query rewriting, relevance scoring, and passage
// compression. Implementations call a generative model; the pipeline only
// sees the typed contract and a single failure kind.
package oracle

import (
	"context"
	"errors"
)

// ErrOracle is the single failure kind surfaced by oracle implementations.
// Timeouts, transport errors, and malformed model output all wrap it, so
// the pipeline can apply one documented fallback per stage.
var ErrOracle = errors.New("oracle failure")

// NonRelevantSentinel is the compression response meaning the passage has
// nothing relevant to the question.
const NonRelevantSentinel = "NON_PERTINENT"

// Input caps applied before prompting. Model context is a shared budget;
// oversized passages are truncated, never rejected.
const (
	MaxRewriteContext  = 1000
	MaxRerankPassage   = 1500
	MaxCompressContent = 3000
)

// Rewrite is the structured result of a query rewrite.
type Rewrite struct {
	// Rewritten is the enriched query to use for retrieval.
	Rewritten string `json:"rewritten"`
	// Keywords are technical terms extracted during rewriting.
	Keywords []string `json:"keywords"`
}

// Oracle transforms text through a generative model.
//
// Every method must honor ctx and return within the implementation's
// configured timeout. Any failure wraps ErrOracle; callers never receive
// partially parsed output.
type Oracle interface {
	// Rewrite reformulates a user question for better retrieval, optionally
	// using recent conversation context.
	Rewrite(ctx context.Context, query, recentContext string) (Rewrite, error)

	// ScoreRelevance rates how relevant passage is to query on a 0-10 scale.
	ScoreRelevance(ctx context.Context, query, passage string) (float64, error)

	// Compress extracts from content only the passages relevant to query.
	// It returns NonRelevantSentinel when nothing in content is relevant.
	Compress(ctx context.Context, query, content string) (string, error)
}
