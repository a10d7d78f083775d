package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/miskibin/sejmofil-sub001/internal/auth"
	"github.com/miskibin/sejmofil-sub001/internal/chat"
	"github.com/miskibin/sejmofil-sub001/internal/llm"
	"github.com/miskibin/sejmofil-sub001/internal/retrieval"
	"github.com/miskibin/sejmofil-sub001/internal/stream"
	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

// mcpIdentity is the caller recorded for turns started over MCP.
var mcpIdentity = auth.Identity{UserID: "mcp"}

// handleSearchDocuments performs semantic search over the document index.
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", retrieval.DefaultTopK)
	if limit <= 0 {
		limit = retrieval.DefaultTopK
	}

	searcher := s.all
	if typeStr := request.GetString("type", ""); typeStr != "" {
		t, err := vectordb.ParseDocumentType(typeStr)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		typed, ok := s.byType[t]
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("type filter %q is not available", t)), nil
		}
		searcher = typed
	}

	result, err := searcher.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(result) == 0 {
		return mcp.NewToolResultText("No results found. The index may be empty. Run `sejmofil index` to load documents."), nil
	}

	return mcp.NewToolResultText(retrieval.FormatResult(result)), nil
}

// handleAsk runs a chat turn and returns the answer followed by its sources.
func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}

	var answer strings.Builder
	var refs []retrieval.Reference
	var failure string
	sink := stream.SinkFunc(func(e stream.Event) error {
		switch ev := e.(type) {
		case stream.Content:
			answer.WriteString(ev.Delta)
		case stream.References:
			refs = ev.Items
		case stream.Error:
			failure = ev.Message
		}
		return nil
	})

	req := chat.ChatRequest{Messages: []chat.ChatMessage{{Role: llm.RoleUser, Content: question}}}
	if err := s.asker.Run(ctx, mcpIdentity, req, sink); err != nil {
		if failure == "" {
			failure = err.Error()
		}
		return mcp.NewToolResultError(failure), nil
	}

	return mcp.NewToolResultText(formatAnswer(answer.String(), refs)), nil
}

// formatAnswer appends the numbered sources to an answer.
func formatAnswer(answer string, refs []retrieval.Reference) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(answer))
	if len(refs) == 0 {
		return sb.String()
	}
	sb.WriteString("\n\nŹródła:\n")
	for i, r := range refs {
		fmt.Fprintf(&sb, "[%d] %s (%s)", i+1, r.Title, r.Type)
		if r.URL != "" {
			fmt.Fprintf(&sb, " %s", r.URL)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
