// Package retrieval orchestrates the multi-stage retrieval pipeline:
// optional query rewrite, hybrid or semantic-only retrieval, optional
// LLM reranking, and optional passage compression.
//
// The pipeline is stateless between invocations: every Run works only on
// immutable handles (lexical index, semantic searcher, oracle) and returns
// a fresh Result carrying its own provenance.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/studyrag/studyrag/internal/corpus"
	"github.com/studyrag/studyrag/internal/fusion"
	"github.com/studyrag/studyrag/internal/lexical"
	"github.com/studyrag/studyrag/internal/oracle"
	"github.com/studyrag/studyrag/internal/semantic"
)

// Step names recorded in Result.StepsApplied. They document which stages
// ran; downstream code must not branch on them.
const (
	StepQueryRewrite   = "query_rewrite"
	StepHybridSearch   = "hybrid_search"
	StepSemanticSearch = "semantic_search"
	StepRerank         = "rerank"
	StepCompress       = "compress"
)

// rerankMidpointScore replaces a missing or unparseable relevance score.
// The midpoint degrades the ranking instead of dropping content.
const rerankMidpointScore = 5.0

// ErrNilDependency is returned when a required pipeline dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Config configures pipeline internals shared across invocations.
type Config struct {
	// RRFConstant is the rank-fusion smoothing constant (default 60).
	RRFConstant int
	// StageWorkers bounds concurrent per-document oracle calls during
	// rerank and compress (default 4).
	StageWorkers int
	// BM25Params configures lexical scoring when the pipeline builds an
	// index itself; kept here so callers configure retrieval in one place.
	BM25Params lexical.Params
}

// DefaultConfig returns the standard pipeline configuration.
func DefaultConfig() Config {
	return Config{
		RRFConstant:  fusion.DefaultConstant,
		StageWorkers: DefaultStageWorkers,
		BM25Params:   lexical.DefaultParams(),
	}
}

// Result is the outcome of one pipeline invocation. FinalQuery is the
// query actually used for retrieval (post-rewrite when that stage ran);
// StepsApplied lists the stages that ran, in order. Together they make a
// run auditable from its own output.
type Result struct {
	Documents     []corpus.Document
	FinalQuery    string
	OriginalQuery string
	StepsApplied  []string
}

// Pipeline runs the retrieval stages over immutable handles. The lexical
// index may be nil, in which case retrieval is semantic-only. Safe for
// concurrent use.
type Pipeline struct {
	lexical  *lexical.Index
	semantic semantic.Searcher
	oracle   oracle.Oracle
	fuser    *fusion.Fuser
	config   Config
}

// NewPipeline creates a pipeline. The semantic searcher is required; the
// lexical index and the oracle are optional, but stages needing a missing
// oracle are rejected at Run time.
func NewPipeline(lex *lexical.Index, sem semantic.Searcher, orc oracle.Oracle, cfg Config) (*Pipeline, error) {
	if sem == nil {
		return nil, fmt.Errorf("%w: semantic searcher is required", ErrNilDependency)
	}
	if cfg.StageWorkers <= 0 {
		cfg.StageWorkers = DefaultStageWorkers
	}
	return &Pipeline{
		lexical:  lex,
		semantic: sem,
		oracle:   orc,
		fuser:    fusion.NewFuserWithK(cfg.RRFConstant),
		config:   cfg,
	}, nil
}

// Run executes the pipeline for query. It always returns either a valid
// (possibly empty) Result or a validation error; oracle failures inside
// the stages are recovered with documented fallbacks and never surface.
func (p *Pipeline) Run(ctx context.Context, query string, opts Options) (*Result, error) {
	opts = opts.normalized()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}
	if p.oracle == nil && (opts.EnableRewrite || opts.EnableRerank || opts.EnableCompress) {
		return nil, fmt.Errorf("%w: rewrite, rerank and compress stages require an oracle", ErrInvalidOptions)
	}

	query = strings.TrimSpace(query)
	result := &Result{
		OriginalQuery: query,
		FinalQuery:    query,
		StepsApplied:  []string{},
	}

	if opts.EnableRewrite {
		result.FinalQuery = p.rewrite(ctx, query, opts.RecentContext)
		// The attempt is recorded even when the oracle fell back to the
		// original query: provenance documents the attempt, not success.
		result.StepsApplied = append(result.StepsApplied, StepQueryRewrite)
	}

	docs, step, err := p.retrieve(ctx, result.FinalQuery, opts)
	if err != nil {
		return nil, err
	}
	result.StepsApplied = append(result.StepsApplied, step)

	if opts.EnableRerank && len(docs) > rerankMinCandidates {
		docs = p.rerank(ctx, query, docs, opts.NbSources)
		result.StepsApplied = append(result.StepsApplied, StepRerank)
	}

	if opts.EnableCompress {
		docs = p.compress(ctx, query, docs, opts.MaxCompressDocs)
		result.StepsApplied = append(result.StepsApplied, StepCompress)
	}

	result.Documents = docs
	return result, nil
}

// rewrite asks the oracle to reformulate the query. Any failure falls back
// silently to the original query; rewriting is an optimization, never a
// prerequisite.
func (p *Pipeline) rewrite(ctx context.Context, query, recentContext string) string {
	rw, err := p.oracle.Rewrite(ctx, query, recentContext)
	if err != nil {
		slog.Debug("query rewrite failed, keeping original query",
			slog.String("error", err.Error()))
		return query
	}
	if strings.TrimSpace(rw.Rewritten) == "" {
		return query
	}
	slog.Debug("query rewritten",
		slog.String("original", query),
		slog.String("rewritten", rw.Rewritten),
		slog.Int("keywords", len(rw.Keywords)))
	return rw.Rewritten
}

// retrieve runs hybrid or semantic-only retrieval and returns the fused
// candidates plus the step name that was applied.
//
// The metadata filter applies only at the semantic boundary. Lexical
// search scores the whole corpus and relies on fusion and later stages to
// push out-of-scope matches down. This asymmetry mirrors the original
// system's behavior and is kept deliberately; changing it changes fusion
// semantics and needs product review.
func (p *Pipeline) retrieve(ctx context.Context, query string, opts Options) ([]corpus.Document, string, error) {
	fetchK := opts.NbSources * opts.FetchKMultiplier

	if !opts.EnableHybrid || p.lexical == nil {
		docs, err := p.semantic.Search(ctx, query, opts.NbSources, fetchK, opts.Filter)
		if err != nil {
			return nil, "", fmt.Errorf("semantic search: %w", err)
		}
		return docs, StepSemanticSearch, nil
	}

	var semanticDocs []corpus.Document
	var lexicalDocs []corpus.ScoredDocument
	var semErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semanticDocs, semErr = p.semantic.Search(gctx, query, opts.NbSources, fetchK, opts.Filter)
		return nil // degradation is decided below, not by the group
	})
	g.Go(func() error {
		lexicalDocs = p.lexical.Query(query, opts.NbSources)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	if semErr != nil {
		// Lexical results exist, so degrade instead of failing the run.
		slog.Warn("semantic search unavailable, degrading to lexical-only",
			slog.String("error", semErr.Error()))
		semanticDocs = nil
	}

	lexDocs := make([]corpus.Document, len(lexicalDocs))
	for i, sd := range lexicalDocs {
		lexDocs[i] = sd.Doc
	}

	fused := p.fuser.Fuse([]fusion.List{
		{Docs: semanticDocs, Weight: opts.SemanticWeight},
		{Docs: lexDocs, Weight: opts.LexicalWeight},
	}, opts.NbSources)

	return fused, StepHybridSearch, nil
}

// rerank scores every candidate against the original query and reorders
// by score descending. Oracle failures score the midpoint so a flaky
// oracle degrades the ranking instead of dropping documents. Calls run
// with bounded concurrency; each score is attributed back to its document
// before the deterministic sort, so parallelism never affects ordering.
func (p *Pipeline) rerank(ctx context.Context, query string, docs []corpus.Document, k int) []corpus.Document {
	scores := make([]float64, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.StageWorkers)
	for i := range docs {
		i := i
		g.Go(func() error {
			score, err := p.oracle.ScoreRelevance(gctx, query, docs[i].Content)
			if err != nil {
				slog.Debug("relevance scoring failed, using midpoint",
					slog.Int("candidate", i),
					slog.String("error", err.Error()))
				score = rerankMidpointScore
			}
			scores[i] = score
			return nil
		})
	}
	_ = g.Wait()

	order := make([]int, len(docs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	reranked := make([]corpus.Document, 0, len(docs))
	for _, i := range order {
		reranked = append(reranked, docs[i])
	}
	if len(reranked) > k {
		reranked = reranked[:k]
	}
	return reranked
}

// compress filters the first maxDocs candidates down to query-relevant
// passages. Fail open on every path: short documents pass through
// byte-identical, and a sentinel answer, a too-short extraction, or an
// oracle failure all keep the original document.
func (p *Pipeline) compress(ctx context.Context, query string, docs []corpus.Document, maxDocs int) []corpus.Document {
	if maxDocs > len(docs) {
		maxDocs = len(docs)
	}

	compressed := make([]corpus.Document, len(docs))
	copy(compressed[maxDocs:], docs[maxDocs:])

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.StageWorkers)
	for i := 0; i < maxDocs; i++ {
		i := i
		g.Go(func() error {
			compressed[i] = p.compressOne(gctx, query, docs[i])
			return nil
		})
	}
	_ = g.Wait()

	return compressed
}

func (p *Pipeline) compressOne(ctx context.Context, query string, doc corpus.Document) corpus.Document {
	if len(doc.Content) < CompressMinLength {
		return doc
	}

	extracted, err := p.oracle.Compress(ctx, query, doc.Content)
	if err != nil {
		slog.Debug("compression failed, keeping original document",
			slog.String("error", err.Error()))
		return doc
	}

	extracted = strings.TrimSpace(extracted)
	if extracted == "" || extracted == oracle.NonRelevantSentinel || len(extracted) <= CompressMinResultLength {
		return doc
	}

	return corpus.NewDocument(extracted, doc.Metadata.With(corpus.MetaCompressed, "true"))
}
