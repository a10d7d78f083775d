package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/miskibin/sejmofil-sub001/internal/embeddings"
	"github.com/miskibin/sejmofil-sub001/internal/ingest"
	"github.com/miskibin/sejmofil-sub001/internal/progress"
	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

var indexCmd = &cobra.Command{
	Use:   "index [source-dir]",
	Short: "Load source documents into the document indices",
	Long: `Discovers JSON, YAML and Markdown sources under the source directory,
embeds them and writes them to one index per document type. The chromem
backend is persisted to index.data_dir afterwards.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().Int("batch-size", 0, "documents embedded per request (default 64)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	sourceDir := cfg.Ingest.SourceDir
	if len(args) == 1 {
		sourceDir = args[0]
	}
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	embedder, err := embeddings.NewFromConfig(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	store, err := openStore(ctx, cfg, embedder, logger)
	if err != nil {
		return err
	}

	stats, err := ingest.Run(ctx, ingest.Options{
		SourceDir: sourceDir,
		Include:   cfg.Ingest.Include,
		Exclude:   cfg.Ingest.Exclude,
		BatchSize: batchSize,
	}, store, progress.NewReporter(os.Stderr), logger)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", sourceDir, err)
	}

	if cs, ok := store.(*vectordb.ChromemStore); ok {
		if err := cs.Persist(ctx, cfg.Index.DataDir); err != nil {
			return fmt.Errorf("persisting index: %w", err)
		}
	}

	logger.Info().
		Int("files", stats.Files).
		Int("skipped", stats.Skipped).
		Int("documents", stats.Documents).
		Int("prints", stats.ByType[vectordb.TypePrint]).
		Int("topics", stats.ByType[vectordb.TypeTopic]).
		Int("organizations", stats.ByType[vectordb.TypeOrganization]).
		Msg("index complete")
	return nil
}
