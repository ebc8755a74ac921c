package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docseek/docseek/internal/pipeline"
)

// Server wraps the MCP server with its pipeline dependency.
type Server struct {
	server   *mcp.Server
	pipeline *pipeline.Pipeline
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(p *pipeline.Pipeline) *Server {
	impl := &mcp.Implementation{
		Name:    "docseek-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_pdfs",
		Description: "Answer a natural-language query with the most relevant passages from publicly available PDF documents. Returns passages with page and line provenance, grouped by source document.",
	}, makeSearchHandler(p))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recent_searches",
		Description: "List recently processed queries, most recent first.",
	}, makeRecentHandler(p))

	return &Server{
		server:   server,
		pipeline: p,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
