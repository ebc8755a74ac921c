// Package websearch discovers candidate PDF documents on the web and
// validates that they actually serve PDF content.
package websearch

import "context"

// Candidate is a document discovered by the search provider.
type Candidate struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Provider returns candidate documents for a text query. Implementations
// restrict results to PDF files and cap the result count to bound
// downstream fetch and embedding cost.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}
