package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyrag/studyrag/internal/corpus"
	"github.com/studyrag/studyrag/internal/lexical"
	"github.com/studyrag/studyrag/internal/oracle"
	"github.com/studyrag/studyrag/internal/semantic"
)

// stubSearcher returns canned documents or an error.
type stubSearcher struct {
	docs []corpus.Document
	err  error

	lastQuery  string
	lastK      int
	lastFetchK int
	lastFilter semantic.Filter
}

func (s *stubSearcher) Search(_ context.Context, query string, k, fetchK int, filter semantic.Filter) ([]corpus.Document, error) {
	s.lastQuery = query
	s.lastK = k
	s.lastFetchK = fetchK
	s.lastFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	if len(s.docs) > k {
		return s.docs[:k], nil
	}
	return s.docs, nil
}

// stubOracle lets each transform be scripted per test.
type stubOracle struct {
	rewriteFn  func(query string) (oracle.Rewrite, error)
	scoreFn    func(passage string) (float64, error)
	compressFn func(content string) (string, error)
}

func (o *stubOracle) Rewrite(_ context.Context, query, _ string) (oracle.Rewrite, error) {
	if o.rewriteFn == nil {
		return oracle.Rewrite{Rewritten: query}, nil
	}
	return o.rewriteFn(query)
}

func (o *stubOracle) ScoreRelevance(_ context.Context, _, passage string) (float64, error) {
	if o.scoreFn == nil {
		return 5, nil
	}
	return o.scoreFn(passage)
}

func (o *stubOracle) Compress(_ context.Context, _, content string) (string, error) {
	if o.compressFn == nil {
		return content, nil
	}
	return o.compressFn(content)
}

func namedDoc(name, content string) corpus.Document {
	return corpus.NewDocument(content, corpus.NewMetadata(corpus.MetaFilename, name))
}

func newLexicalIndex(docs ...corpus.Document) *lexical.Index {
	return lexical.NewIndex(docs, lexical.NewTokenizer(lexical.FrenchStopwords()), lexical.DefaultParams())
}

func docNames(docs []corpus.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Metadata.Get(corpus.MetaFilename)
	}
	return out
}

func TestRun_AllStagesDisabled(t *testing.T) {
	sem := &stubSearcher{docs: []corpus.Document{namedDoc("a.md", "tri fusion")}}
	p, err := NewPipeline(nil, sem, &stubOracle{}, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{NbSources: 5})

	require.NoError(t, err)
	assert.Equal(t, []string{StepSemanticSearch}, result.StepsApplied)
	assert.Equal(t, result.OriginalQuery, result.FinalQuery)
	assert.Equal(t, []string{"a.md"}, docNames(result.Documents))
}

func TestRun_InvalidNbSources(t *testing.T) {
	p, err := NewPipeline(nil, &stubSearcher{}, &stubOracle{}, DefaultConfig())
	require.NoError(t, err)

	for _, nb := range []int{0, -1, 51} {
		_, err := p.Run(context.Background(), "tri fusion", Options{NbSources: nb})
		assert.ErrorIs(t, err, ErrInvalidOptions, "nb_sources=%d", nb)
	}
}

func TestRun_QueryLengthValidation(t *testing.T) {
	p, err := NewPipeline(nil, &stubSearcher{}, &stubOracle{}, DefaultConfig())
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "ab", Options{NbSources: 5})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = p.Run(context.Background(), strings.Repeat("q", 2001), Options{NbSources: 5})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestRun_RewriteChangesFinalQuery(t *testing.T) {
	sem := &stubSearcher{docs: []corpus.Document{namedDoc("a.md", "tri fusion")}}
	orc := &stubOracle{rewriteFn: func(string) (oracle.Rewrite, error) {
		return oracle.Rewrite{Rewritten: "tri fusion complexite algorithme", Keywords: []string{"tri"}}, nil
	}}
	p, err := NewPipeline(nil, sem, orc, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "le tri ?", Options{NbSources: 5, EnableRewrite: true})

	require.NoError(t, err)
	assert.Equal(t, []string{StepQueryRewrite, StepSemanticSearch}, result.StepsApplied)
	assert.Equal(t, "le tri ?", result.OriginalQuery)
	assert.Equal(t, "tri fusion complexite algorithme", result.FinalQuery)
	// Retrieval must use the rewritten query.
	assert.Equal(t, "tri fusion complexite algorithme", sem.lastQuery)
}

func TestRun_RewriteFailureFallsBackButIsRecorded(t *testing.T) {
	sem := &stubSearcher{docs: []corpus.Document{namedDoc("a.md", "tri fusion")}}
	orc := &stubOracle{rewriteFn: func(string) (oracle.Rewrite, error) {
		return oracle.Rewrite{}, fmt.Errorf("%w: timeout", oracle.ErrOracle)
	}}
	p, err := NewPipeline(nil, sem, orc, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{NbSources: 5, EnableRewrite: true})

	require.NoError(t, err)
	assert.Equal(t, result.OriginalQuery, result.FinalQuery)
	assert.Contains(t, result.StepsApplied, StepQueryRewrite)
}

func TestRun_HybridFusesBothSources(t *testing.T) {
	shared := namedDoc("commun.md", "tri fusion complexite")
	sem := &stubSearcher{docs: []corpus.Document{shared, namedDoc("sem.md", "analyse donnees")}}
	lex := newLexicalIndex(shared, namedDoc("lex.md", "tri rapide pivot"))
	p, err := NewPipeline(lex, sem, &stubOracle{}, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{NbSources: 5, EnableHybrid: true})

	require.NoError(t, err)
	assert.Equal(t, []string{StepHybridSearch}, result.StepsApplied)
	// The document found by both sources must rank first.
	require.NotEmpty(t, result.Documents)
	assert.Equal(t, "commun.md", result.Documents[0].Metadata.Get(corpus.MetaFilename))
	assert.Contains(t, docNames(result.Documents), "lex.md")
	assert.Contains(t, docNames(result.Documents), "sem.md")
}

func TestRun_HybridWithoutLexicalIndexIsSemanticOnly(t *testing.T) {
	sem := &stubSearcher{docs: []corpus.Document{namedDoc("a.md", "tri fusion")}}
	p, err := NewPipeline(nil, sem, &stubOracle{}, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{NbSources: 5, EnableHybrid: true})

	require.NoError(t, err)
	assert.Equal(t, []string{StepSemanticSearch}, result.StepsApplied)
}

func TestRun_HybridDegradesWhenSemanticFails(t *testing.T) {
	sem := &stubSearcher{err: errors.New("vector store unreachable")}
	lex := newLexicalIndex(namedDoc("lex.md", "tri rapide pivot"))
	p, err := NewPipeline(lex, sem, &stubOracle{}, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri rapide", Options{NbSources: 5, EnableHybrid: true})

	require.NoError(t, err)
	assert.Equal(t, []string{StepHybridSearch}, result.StepsApplied)
	assert.Equal(t, []string{"lex.md"}, docNames(result.Documents))
}

func TestRun_SemanticOnlyFailureIsHard(t *testing.T) {
	sem := &stubSearcher{err: errors.New("vector store unreachable")}
	p, err := NewPipeline(nil, sem, &stubOracle{}, DefaultConfig())
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "tri fusion", Options{NbSources: 5})

	assert.Error(t, err)
}

func TestRun_FilterReachesSemanticBoundaryOnly(t *testing.T) {
	sem := &stubSearcher{docs: []corpus.Document{namedDoc("a.md", "tri fusion")}}
	lex := newLexicalIndex(namedDoc("lex.md", "tri rapide"))
	p, err := NewPipeline(lex, sem, &stubOracle{}, DefaultConfig())
	require.NoError(t, err)

	filter := semantic.Filter{corpus.MetaSubject: {"Algorithmique"}}
	result, err := p.Run(context.Background(), "tri fusion", Options{
		NbSources:    5,
		EnableHybrid: true,
		Filter:       filter,
	})

	require.NoError(t, err)
	assert.Equal(t, filter, sem.lastFilter)
	// Lexical results are unfiltered: the out-of-scope lexical match
	// still flows into fusion.
	assert.Contains(t, docNames(result.Documents), "lex.md")
}

func TestRun_SemanticOverFetch(t *testing.T) {
	sem := &stubSearcher{docs: []corpus.Document{namedDoc("a.md", "tri fusion")}}
	p, err := NewPipeline(nil, sem, &stubOracle{}, DefaultConfig())
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "tri fusion", Options{NbSources: 8})

	require.NoError(t, err)
	assert.Equal(t, 8, sem.lastK)
	assert.Equal(t, 24, sem.lastFetchK)
}

func TestRun_RerankOrdersByScore(t *testing.T) {
	docs := []corpus.Document{
		namedDoc("d1.md", "passage un"),
		namedDoc("d2.md", "passage deux"),
		namedDoc("d3.md", "passage trois"),
		namedDoc("d4.md", "passage quatre"),
	}
	sem := &stubSearcher{docs: docs}
	scores := map[string]float64{
		"passage un": 2, "passage deux": 9, "passage trois": 4, "passage quatre": 7,
	}
	orc := &stubOracle{scoreFn: func(passage string) (float64, error) {
		return scores[passage], nil
	}}
	p, err := NewPipeline(nil, sem, orc, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{NbSources: 4, EnableRerank: true})

	require.NoError(t, err)
	assert.Equal(t, []string{StepSemanticSearch, StepRerank}, result.StepsApplied)
	assert.Equal(t, []string{"d2.md", "d4.md", "d3.md", "d1.md"}, docNames(result.Documents))
}

func TestRun_RerankSkippedForSmallCandidateSets(t *testing.T) {
	sem := &stubSearcher{docs: []corpus.Document{
		namedDoc("d1.md", "un"), namedDoc("d2.md", "deux"), namedDoc("d3.md", "trois"),
	}}
	called := false
	orc := &stubOracle{scoreFn: func(string) (float64, error) {
		called = true
		return 5, nil
	}}
	p, err := NewPipeline(nil, sem, orc, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{NbSources: 5, EnableRerank: true})

	require.NoError(t, err)
	assert.False(t, called)
	assert.NotContains(t, result.StepsApplied, StepRerank)
}

func TestRun_RerankIdenticalScoresKeepFusedOrder(t *testing.T) {
	docs := []corpus.Document{
		namedDoc("d1.md", "un"), namedDoc("d2.md", "deux"),
		namedDoc("d3.md", "trois"), namedDoc("d4.md", "quatre"),
		namedDoc("d5.md", "cinq"),
	}
	sem := &stubSearcher{docs: docs}
	orc := &stubOracle{scoreFn: func(string) (float64, error) { return 7, nil }}
	p, err := NewPipeline(nil, sem, orc, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{NbSources: 5, EnableRerank: true})

	require.NoError(t, err)
	assert.Equal(t, []string{"d1.md", "d2.md", "d3.md", "d4.md", "d5.md"}, docNames(result.Documents))
}

func TestRun_RerankFailuresScoreMidpoint(t *testing.T) {
	docs := []corpus.Document{
		namedDoc("d1.md", "un"), namedDoc("d2.md", "deux"),
		namedDoc("d3.md", "trois"), namedDoc("d4.md", "quatre"),
	}
	sem := &stubSearcher{docs: docs}
	orc := &stubOracle{scoreFn: func(passage string) (float64, error) {
		switch passage {
		case "deux":
			return 9, nil
		case "trois":
			return 2, nil
		default:
			return 0, fmt.Errorf("%w: timeout", oracle.ErrOracle)
		}
	}}
	p, err := NewPipeline(nil, sem, orc, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{NbSources: 4, EnableRerank: true})

	require.NoError(t, err)
	// Failed candidates get the 5.0 midpoint: above "trois", below "deux",
	// keeping their relative fused order between themselves.
	assert.Equal(t, []string{"d2.md", "d1.md", "d4.md", "d3.md"}, docNames(result.Documents))
}

func TestRun_CompressShortDocumentPassesThroughByteIdentical(t *testing.T) {
	short := namedDoc("court.md", "definition du tri fusion")
	sem := &stubSearcher{docs: []corpus.Document{short}}
	orc := &stubOracle{compressFn: func(string) (string, error) {
		t.Fatal("compression oracle must not be called for short documents")
		return "", nil
	}}
	p, err := NewPipeline(nil, sem, orc, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{NbSources: 5, EnableCompress: true})

	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, short.Content, result.Documents[0].Content)
	assert.False(t, result.Documents[0].Metadata.Has(corpus.MetaCompressed))
	assert.Contains(t, result.StepsApplied, StepCompress)
}

func TestRun_CompressReplacesLongDocument(t *testing.T) {
	long := namedDoc("long.md", strings.Repeat("le tri fusion divise la liste en deux. ", 10))
	sem := &stubSearcher{docs: []corpus.Document{long}}
	extracted := "Le tri fusion divise la liste en deux moities et les fusionne."
	orc := &stubOracle{compressFn: func(string) (string, error) { return extracted, nil }}
	p, err := NewPipeline(nil, sem, orc, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{NbSources: 5, EnableCompress: true})

	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, extracted, result.Documents[0].Content)
	assert.Equal(t, "true", result.Documents[0].Metadata.Get(corpus.MetaCompressed))
	// The source document must appear untouched in its own metadata.
	assert.Equal(t, "long.md", result.Documents[0].Metadata.Get(corpus.MetaFilename))
}

func TestRun_CompressFailOpenPaths(t *testing.T) {
	long := strings.Repeat("contenu du cours sur les graphes et les arbres. ", 10)

	tests := []struct {
		name     string
		response string
		err      error
	}{
		{name: "sentinel keeps original", response: oracle.NonRelevantSentinel},
		{name: "too short keeps original", response: "trop court"},
		{name: "oracle failure keeps original", err: fmt.Errorf("%w: timeout", oracle.ErrOracle)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sem := &stubSearcher{docs: []corpus.Document{namedDoc("doc.md", long)}}
			orc := &stubOracle{compressFn: func(string) (string, error) {
				return tt.response, tt.err
			}}
			p, err := NewPipeline(nil, sem, orc, DefaultConfig())
			require.NoError(t, err)

			result, err := p.Run(context.Background(), "graphes", Options{NbSources: 5, EnableCompress: true})

			require.NoError(t, err)
			require.Len(t, result.Documents, 1)
			assert.Equal(t, long, result.Documents[0].Content)
			assert.False(t, result.Documents[0].Metadata.Has(corpus.MetaCompressed))
		})
	}
}

func TestRun_CompressOnlyFirstMaxDocs(t *testing.T) {
	long := strings.Repeat("contenu detaille du cours sur le tri fusion. ", 10)
	var docs []corpus.Document
	for i := 0; i < 8; i++ {
		docs = append(docs, namedDoc(fmt.Sprintf("d%d.md", i), long))
	}
	sem := &stubSearcher{docs: docs}
	calls := 0
	orc := &stubOracle{compressFn: func(string) (string, error) {
		calls++
		return "Extrait pertinent du cours sur le tri fusion.", nil
	}}
	cfg := DefaultConfig()
	cfg.StageWorkers = 1
	p, err := NewPipeline(nil, sem, orc, cfg)
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{
		NbSources:       10,
		EnableCompress:  true,
		MaxCompressDocs: 6,
	})

	require.NoError(t, err)
	assert.Equal(t, 6, calls)
	require.Len(t, result.Documents, 8)
	// Trailing candidates pass through unmodified.
	assert.Equal(t, long, result.Documents[6].Content)
	assert.Equal(t, long, result.Documents[7].Content)
}

func TestRun_OracleRequiredForLLMStages(t *testing.T) {
	sem := &stubSearcher{}
	p, err := NewPipeline(nil, sem, nil, DefaultConfig())
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "tri fusion", Options{NbSources: 5, EnableRerank: true})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	// Without LLM stages a nil oracle is fine.
	_, err = p.Run(context.Background(), "tri fusion", Options{NbSources: 5})
	assert.NoError(t, err)
}

func TestRun_EmptyCorpusIsValidTerminalState(t *testing.T) {
	p, err := NewPipeline(newLexicalIndex(), &stubSearcher{}, &stubOracle{}, DefaultConfig())
	require.NoError(t, err)

	result, err := p.Run(context.Background(), "tri fusion", Options{NbSources: 5, EnableHybrid: true})

	require.NoError(t, err)
	assert.Empty(t, result.Documents)
	assert.Equal(t, []string{StepHybridSearch}, result.StepsApplied)
}

func TestNewPipeline_RequiresSemanticSearcher(t *testing.T) {
	_, err := NewPipeline(nil, nil, &stubOracle{}, DefaultConfig())

	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestValidateQuery(t *testing.T) {
	assert.NoError(t, ValidateQuery("tri fusion"))
	assert.NoError(t, ValidateQuery("àéî")) // rune count, not byte count
	assert.ErrorIs(t, ValidateQuery("ab"), ErrInvalidQuery)
	assert.ErrorIs(t, ValidateQuery("  a  "), ErrInvalidQuery)
	assert.ErrorIs(t, ValidateQuery(strings.Repeat("x", 2001)), ErrInvalidQuery)
}
