package cmd

import (
	"github.com/spf13/cobra"

	"github.com/miskibin/sejmofil-sub001/internal/chat"
	mcpserver "github.com/miskibin/sejmofil-sub001/internal/mcp"
	"github.com/miskibin/sejmofil-sub001/internal/observability"
	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long: `Starts a Model Context Protocol (MCP) server on stdio. It exposes
search_documents for semantic search over the indices and ask_sejmofil for
grounded answers with numbered sources.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		c, err := buildComponents(cmd.Context(), cfg, logger, nil, true)
		if err != nil {
			return err
		}

		byType := make(map[vectordb.DocumentType]mcpserver.Searcher)
		for t, r := range typedSearchers(cfg, c.embedder, c.store.Indices(), logger) {
			byType[t] = r
		}

		pipeline := chat.NewPipeline(c.retriever, newAssembler(cfg, logger), c.provider, pipelineConfig(cfg),
			chat.WithLogger(logger),
		).ForEndpoint(observability.EndpointCLI)

		logger.Info().Str("version", Version).Msg("sejmofil MCP server started on stdio")

		return mcpserver.NewServer(c.retriever, byType, pipeline).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
