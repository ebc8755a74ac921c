package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docseek/docseek/internal/pipeline"
	"github.com/docseek/docseek/internal/querycache"
)

// makeSearchHandler creates the search_pdfs tool handler.
// The pipeline absorbs every failure mode, so the tool never returns a
// protocol error for a processing problem: an empty result list with an
// explanatory message stands in for all of them.
func makeSearchHandler(p *pipeline.Pipeline) func(
	context.Context, *mcp.CallToolRequest, SearchPDFsInput,
) (*mcp.CallToolResult, SearchPDFsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchPDFsInput) (
		*mcp.CallToolResult, SearchPDFsOutput, error,
	) {
		results := p.ProcessQuery(ctx, input.Query)

		if len(results) == 0 {
			return nil, SearchPDFsOutput{
				Results: []pipeline.DocumentResult{},
				Message: "No matching documents found. Try rephrasing the query.",
			}, nil
		}

		return nil, SearchPDFsOutput{Results: results}, nil
	}
}

// makeRecentHandler creates the recent_searches tool handler.
func makeRecentHandler(p *pipeline.Pipeline) func(
	context.Context, *mcp.CallToolRequest, RecentSearchesInput,
) (*mcp.CallToolResult, RecentSearchesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RecentSearchesInput) (
		*mcp.CallToolResult, RecentSearchesOutput, error,
	) {
		limit := input.Limit
		if limit <= 0 || limit > querycache.MaxRecent {
			limit = querycache.MaxRecent
		}

		queries := p.GetRecentSearches(ctx, limit)
		if queries == nil {
			queries = []string{}
		}

		return nil, RecentSearchesOutput{
			Queries: queries,
			Count:   len(queries),
		}, nil
	}
}
