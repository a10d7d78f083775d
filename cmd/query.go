package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/miskibin/sejmofil-sub001/internal/retrieval"
	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Semantically search the document indices",
	Long:  `Embeds the question, queries every document index and prints the merged ranking the chat pipeline would use as context.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().Int("limit", retrieval.DefaultTopK, "maximum number of results")
	queryCmd.Flags().String("type", "", "filter by type: print, topic, organization")
	queryCmd.Flags().Bool("json", false, "output the references as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	limit, _ := cmd.Flags().GetInt("limit")
	typeFilter, _ := cmd.Flags().GetString("type")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	c, err := buildComponents(ctx, cfg, logger, nil, false)
	if err != nil {
		return err
	}

	searcher := c.retriever
	if typeFilter != "" {
		t, err := vectordb.ParseDocumentType(typeFilter)
		if err != nil {
			return err
		}
		searcher = typedSearchers(cfg, c.embedder, c.store.Indices(), logger)[t]
	}

	result, err := searcher.Search(ctx, args[0], limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.References())
	}

	fmt.Print(retrieval.FormatResult(result))
	return nil
}
