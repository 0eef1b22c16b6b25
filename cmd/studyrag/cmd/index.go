package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyrag/studyrag/internal/config"
	"github.com/studyrag/studyrag/internal/corpus"
	"github.com/studyrag/studyrag/internal/embed"
	"github.com/studyrag/studyrag/internal/store"
)

type indexOptions struct {
	notesDir string
	dbPath   string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a directory of course notes",
		Long: `Index walks the notes directory, builds one document per markdown or
text file, computes embeddings and persists everything to the local
store. Subjects are derived from first-level directory names:

  notes/Algorithmique/tri.md  ->  matiere=Algorithmique

Re-running replaces the previous index atomically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.notesDir, "notes", "d", "", "Notes directory (default from config)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Store path (default from config)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	if opts.notesDir == "" {
		opts.notesDir = cfg.Notes.Dir
	}
	if opts.dbPath == "" {
		opts.dbPath = cfg.Storage.Path
	}
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}

	start := time.Now()
	slog.Info("indexing started", slog.String("notes", opts.notesDir))

	loadOpts := corpus.DefaultLoadOptions()
	loadOpts.Extensions = cfg.Notes.Extensions
	docs, err := corpus.Load(ctx, opts.notesDir, loadOpts)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no notes found under %s", opts.notesDir)
	}

	embedder, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
		APIKey:     apiKey,
		BaseURL:    cfg.Oracle.BaseURL,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	})
	if err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed notes: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.dbPath), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	st, err := store.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Replace(ctx, docs, vectors, embedder.ModelName()); err != nil {
		return err
	}

	slog.Info("indexing finished",
		slog.Int("documents", len(docs)),
		slog.Duration("elapsed", time.Since(start)))
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d documents from %s in %s\n",
		len(docs), opts.notesDir, time.Since(start).Round(time.Millisecond))
	return nil
}
