package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/studyrag/studyrag/internal/config"
	"github.com/studyrag/studyrag/internal/corpus"
	"github.com/studyrag/studyrag/internal/embed"
	"github.com/studyrag/studyrag/internal/lexical"
	"github.com/studyrag/studyrag/internal/oracle"
	"github.com/studyrag/studyrag/internal/retrieval"
	"github.com/studyrag/studyrag/internal/semantic"
	"github.com/studyrag/studyrag/internal/store"
)

type searchOptions struct {
	nbSources int
	subject   string
	format    string
	noRewrite bool
	noHybrid  bool
	noRerank  bool
	noLLM     bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed notes",
		Long: `Search runs the full retrieval pipeline over the indexed notes:
query rewriting, hybrid BM25 + semantic search with rank fusion,
LLM reranking and contextual compression.

Examples:
  studyrag search "comment fonctionne le tri fusion ?"
  studyrag search "parcours de graphe" --matiere Algorithmique
  studyrag search "unification" --no-llm --sources 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.nbSources, "sources", "n", 0, "Number of documents to return (1-50, default from config)")
	cmd.Flags().StringVarP(&opts.subject, "matiere", "m", "", "Restrict semantic search to one subject")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.noRewrite, "no-rewrite", false, "Skip LLM query rewriting")
	cmd.Flags().BoolVar(&opts.noHybrid, "no-hybrid", false, "Semantic search only, skip BM25 fusion")
	cmd.Flags().BoolVar(&opts.noRerank, "no-rerank", false, "Skip LLM reranking")
	cmd.Flags().BoolVar(&opts.noLLM, "no-llm", false, "Disable every LLM stage (rewrite, rerank, compress)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if err := retrieval.ValidateQuery(query); err != nil {
		return err
	}

	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("no index found, run 'studyrag index' first: %w", err)
	}
	defer st.Close()

	docs, vectors, err := st.Load(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("index is empty, run 'studyrag index' first")
	}
	model, err := st.EmbeddingModel(ctx)
	if err != nil {
		return err
	}
	if model != "" && model != cfg.Embeddings.Model {
		return fmt.Errorf("index was built with embedding model %s, config wants %s; re-run 'studyrag index'",
			model, cfg.Embeddings.Model)
	}

	pipeline, err := buildPipeline(cfg, apiKey, docs, vectors)
	if err != nil {
		return err
	}

	pipelineOpts := cfg.Options()
	if opts.nbSources > 0 {
		pipelineOpts.NbSources = opts.nbSources
	}
	if opts.subject != "" {
		pipelineOpts.Filter = semantic.Filter{corpus.MetaSubject: {opts.subject}}
	}
	if opts.noRewrite {
		pipelineOpts.EnableRewrite = false
	}
	if opts.noHybrid {
		pipelineOpts.EnableHybrid = false
	}
	if opts.noRerank {
		pipelineOpts.EnableRerank = false
	}
	if opts.noLLM {
		pipelineOpts.EnableRewrite = false
		pipelineOpts.EnableRerank = false
		pipelineOpts.EnableCompress = false
	}

	result, err := pipeline.Run(ctx, query, pipelineOpts)
	if err != nil {
		return err
	}

	slog.Info("search finished",
		slog.String("final_query", result.FinalQuery),
		slog.Int("results", len(result.Documents)))

	if opts.format == "json" {
		return printJSON(cmd, result)
	}
	printText(cmd, result)
	return nil
}

// buildPipeline rebuilds the in-memory indexes from the persisted corpus.
func buildPipeline(cfg *config.Config, apiKey string, docs []corpus.Document, vectors [][]float32) (*retrieval.Pipeline, error) {
	embedder, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
		APIKey:     apiKey,
		BaseURL:    cfg.Oracle.BaseURL,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	cached := embed.NewCachedEmbedder(embedder, cfg.Embeddings.CacheSize)

	semIndex, err := semantic.NewHNSWIndex(cached)
	if err != nil {
		return nil, err
	}
	if err := semIndex.AddEmbedded(docs, vectors); err != nil {
		return nil, err
	}

	lexIndex := lexical.NewIndex(docs, lexical.NewTokenizer(lexical.FrenchStopwords()), lexical.DefaultParams())

	orc, err := oracle.NewClient(oracle.Config{
		APIKey:      apiKey,
		BaseURL:     cfg.Oracle.BaseURL,
		Model:       cfg.Oracle.Model,
		Temperature: cfg.Oracle.Temperature,
		Timeout:     cfg.Oracle.TimeoutDuration(),
	})
	if err != nil {
		return nil, err
	}

	pipeCfg := retrieval.DefaultConfig()
	pipeCfg.RRFConstant = cfg.Search.RRFConstant
	pipeCfg.StageWorkers = cfg.Search.StageWorkers

	return retrieval.NewPipeline(lexIndex, semIndex, orc, pipeCfg)
}

func printText(cmd *cobra.Command, result *retrieval.Result) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Query: %s\n", result.OriginalQuery)
	if result.FinalQuery != result.OriginalQuery {
		fmt.Fprintf(out, "Rewritten: %s\n", result.FinalQuery)
	}
	fmt.Fprintf(out, "Steps: %s\n\n", strings.Join(result.StepsApplied, " > "))

	if len(result.Documents) == 0 {
		fmt.Fprintln(out, "No results.")
		return
	}
	for i, doc := range result.Documents {
		name := doc.Metadata.Get(corpus.MetaFilename)
		subject := doc.Metadata.Get(corpus.MetaSubject)
		header := fmt.Sprintf("%d. %s", i+1, name)
		if subject != "" {
			header += fmt.Sprintf(" [%s]", subject)
		}
		if doc.Metadata.Get(corpus.MetaCompressed) == "true" {
			header += " (compressed)"
		}
		fmt.Fprintln(out, header)
		fmt.Fprintln(out, indent(snippet(doc.Content, 400), "   "))
	}
}

type jsonDocument struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

type jsonResult struct {
	OriginalQuery string         `json:"original_query"`
	FinalQuery    string         `json:"final_query"`
	StepsApplied  []string       `json:"steps_applied"`
	Documents     []jsonDocument `json:"documents"`
}

func printJSON(cmd *cobra.Command, result *retrieval.Result) error {
	payload := jsonResult{
		OriginalQuery: result.OriginalQuery,
		FinalQuery:    result.FinalQuery,
		StepsApplied:  result.StepsApplied,
		Documents:     make([]jsonDocument, 0, len(result.Documents)),
	}
	for _, doc := range result.Documents {
		meta := make(map[string]string, len(doc.Metadata))
		for _, f := range doc.Metadata {
			meta[f.Key] = f.Value
		}
		payload.Documents = append(payload.Documents, jsonDocument{
			Content:  doc.Content,
			Metadata: meta,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
