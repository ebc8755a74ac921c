// Package mcp exposes the document search pipeline over the Model
// Context Protocol.
package mcp

import "github.com/docseek/docseek/internal/pipeline"

// SearchPDFsInput defines the input parameters for the search_pdfs tool.
type SearchPDFsInput struct {
	// Query is the natural-language question to answer from PDF documents.
	Query string `json:"query" jsonschema:"required,description=Natural-language query to answer from publicly available PDF documents"`
}

// SearchPDFsOutput contains ranked passages grouped by source document.
type SearchPDFsOutput struct {
	// Results holds one entry per document that produced passages.
	Results []pipeline.DocumentResult `json:"results"`
	// Message provides informational context (e.g., "No matching documents found").
	Message string `json:"message,omitempty"`
}

// RecentSearchesInput defines the input parameters for the recent_searches tool.
type RecentSearchesInput struct {
	// Limit is the maximum number of recent queries to return.
	Limit int `json:"limit,omitempty" jsonschema:"minimum=1,maximum=10,default=10,description=Maximum number of recent queries to return"`
}

// RecentSearchesOutput contains recent queries, most recent first.
type RecentSearchesOutput struct {
	// Queries is the recent query list, newest first.
	Queries []string `json:"queries"`
	// Count is the number of queries returned.
	Count int `json:"count"`
}
