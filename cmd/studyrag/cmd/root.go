// Package cmd provides the CLI commands for StudyRAG.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studyrag/studyrag/internal/config"
	"github.com/studyrag/studyrag/internal/logging"
	"github.com/studyrag/studyrag/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the studyrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "studyrag",
		Short: "Hybrid retrieval over course notes",
		Long: `StudyRAG indexes a directory of course notes and answers queries
with hybrid search: BM25 keyword matching and semantic embeddings,
fused with Reciprocal Rank Fusion, then optionally refined by an LLM
(query rewriting, relevance reranking, contextual compression).

Run 'studyrag index' once, then 'studyrag search "your question"'.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate(version.String() + "\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.studyrag/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRun = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}
	// Keep CLI output clean: records go to the log file unless debugging.
	logCfg.Stderr = debugMode
	if debugMode {
		logCfg.Level = "debug"
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
