package mcp

import "github.com/mark3labs/mcp-go/mcp"

// searchDocumentsTool defines the search_documents MCP tool.
var searchDocumentsTool = mcp.NewTool("search_documents",
	mcp.WithDescription("Search Sejmofil documents (parliamentary prints, topics, organizations) semantically. Returns ranked documents with scores and links."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query, preferably in Polish"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 5)"),
	),
	mcp.WithString("type",
		mcp.Description("Restrict results to one document type"),
		mcp.Enum("print", "topic", "organization"),
	),
)

// askTool defines the ask_sejmofil MCP tool.
var askTool = mcp.NewTool("ask_sejmofil",
	mcp.WithDescription("Ask a question about the Polish Sejm. Answers in Polish, grounded in Sejmofil documents, with numbered citations."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The question to answer"),
	),
)
