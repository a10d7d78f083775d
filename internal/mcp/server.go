package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/miskibin/sejmofil-sub001/internal/auth"
	"github.com/miskibin/sejmofil-sub001/internal/chat"
	"github.com/miskibin/sejmofil-sub001/internal/retrieval"
	"github.com/miskibin/sejmofil-sub001/internal/stream"
	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Searcher ranks documents for a text query. *retrieval.Retriever
// implements it.
type Searcher interface {
	Search(ctx context.Context, text string, k int) (retrieval.Result, error)
}

// Asker runs a full chat turn. *chat.Pipeline implements it.
type Asker interface {
	Run(ctx context.Context, id auth.Identity, req chat.ChatRequest, sink stream.Sink) error
}

// Server wraps an MCP server that exposes the document index to agents.
type Server struct {
	all    Searcher
	byType map[vectordb.DocumentType]Searcher
	asker  Asker
	mcp    *server.MCPServer
}

// NewServer creates a new MCP server. byType enables the type filter of
// search_documents; asker, when non-nil, enables ask_sejmofil.
func NewServer(all Searcher, byType map[vectordb.DocumentType]Searcher, asker Asker) *Server {
	s := &Server{
		all:    all,
		byType: byType,
		asker:  asker,
	}

	s.mcp = server.NewMCPServer(
		"sejmofil",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	if s.asker != nil {
		s.mcp.AddTool(askTool, s.handleAsk)
	}
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
