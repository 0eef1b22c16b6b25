package retrieval

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/studyrag/studyrag/internal/semantic"
)

// ErrInvalidOptions is returned when pipeline options fail validation.
// It is surfaced to the caller before any stage runs.
var ErrInvalidOptions = errors.New("invalid retrieval options")

// ErrInvalidQuery is returned for queries outside the accepted length range.
var ErrInvalidQuery = errors.New("invalid query")

// Query length bounds enforced at the pipeline boundary.
const (
	MinQueryLength = 3
	MaxQueryLength = 2000
)

// Source count bounds.
const (
	DefaultNbSources = 10
	MinNbSources     = 1
	MaxNbSources     = 50
)

// Retrieval defaults.
const (
	// DefaultSemanticWeight is higher than the lexical weight because
	// embeddings capture paraphrase and synonymy the keyword model cannot.
	DefaultSemanticWeight = 0.6
	DefaultLexicalWeight  = 0.4

	// DefaultFetchKMultiplier over-fetches on the semantic side to give
	// MMR diversification room to work.
	DefaultFetchKMultiplier = 3

	// DefaultMaxCompressDocs caps how many leading candidates go through
	// the compression oracle; later ones pass through unmodified.
	DefaultMaxCompressDocs = 6

	// DefaultStageWorkers bounds concurrent per-document oracle calls.
	DefaultStageWorkers = 4
)

// Compression thresholds.
const (
	// CompressMinLength: shorter documents skip compression entirely.
	CompressMinLength = 200
	// CompressMinResultLength: shorter oracle output means the extraction
	// failed and the original document is kept.
	CompressMinResultLength = 30
)

// rerankMinCandidates: reranking fewer candidates than this cannot change
// anything useful and only spends oracle calls.
const rerankMinCandidates = 3

// Options configures a single pipeline invocation.
type Options struct {
	// NbSources is the number of documents to return (1-50).
	NbSources int

	// Filter restricts the semantic side of retrieval by metadata.
	// Lexical search is intentionally unfiltered; see Pipeline.retrieve.
	Filter semantic.Filter

	// RecentContext is recent conversation text given to the rewrite stage.
	RecentContext string

	// Stage toggles.
	EnableRewrite  bool
	EnableHybrid   bool
	EnableRerank   bool
	EnableCompress bool

	// SemanticWeight and LexicalWeight are the fusion weights.
	SemanticWeight float64
	LexicalWeight  float64

	// FetchKMultiplier scales the semantic over-fetch (fetchK = NbSources × multiplier).
	FetchKMultiplier int

	// MaxCompressDocs caps compression to the first N candidates.
	MaxCompressDocs int
}

// DefaultOptions returns the standard pipeline configuration with every
// stage enabled.
func DefaultOptions() Options {
	return Options{
		NbSources:        DefaultNbSources,
		EnableRewrite:    true,
		EnableHybrid:     true,
		EnableRerank:     true,
		EnableCompress:   true,
		SemanticWeight:   DefaultSemanticWeight,
		LexicalWeight:    DefaultLexicalWeight,
		FetchKMultiplier: DefaultFetchKMultiplier,
		MaxCompressDocs:  DefaultMaxCompressDocs,
	}
}

// normalized fills unset numeric fields with defaults.
func (o Options) normalized() Options {
	if o.SemanticWeight == 0 && o.LexicalWeight == 0 {
		o.SemanticWeight = DefaultSemanticWeight
		o.LexicalWeight = DefaultLexicalWeight
	}
	if o.FetchKMultiplier <= 0 {
		o.FetchKMultiplier = DefaultFetchKMultiplier
	}
	if o.MaxCompressDocs <= 0 {
		o.MaxCompressDocs = DefaultMaxCompressDocs
	}
	return o
}

// validate rejects malformed options before any stage runs.
func (o Options) validate() error {
	if o.NbSources < MinNbSources || o.NbSources > MaxNbSources {
		return fmt.Errorf("%w: nb_sources must be between %d and %d, got %d",
			ErrInvalidOptions, MinNbSources, MaxNbSources, o.NbSources)
	}
	if o.SemanticWeight < 0 || o.LexicalWeight < 0 {
		return fmt.Errorf("%w: fusion weights must be non-negative", ErrInvalidOptions)
	}
	return nil
}

// ValidateQuery rejects queries outside the accepted length range.
// Length is measured in runes; the corpus is French.
func ValidateQuery(query string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(query))
	if n < MinQueryLength {
		return fmt.Errorf("%w: too short (min %d characters)", ErrInvalidQuery, MinQueryLength)
	}
	if n > MaxQueryLength {
		return fmt.Errorf("%w: too long (max %d characters)", ErrInvalidQuery, MaxQueryLength)
	}
	return nil
}
