package websearch

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// GoogleProvider implements Provider over the Google Custom Search JSON
// API, restricted to PDF results.
type GoogleProvider struct {
	service  *customsearch.Service
	engineID string
}

// NewGoogleProvider creates a provider using an API key and a programmable
// search engine ID.
func NewGoogleProvider(ctx context.Context, apiKey, engineID string) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google api key not set")
	}
	if engineID == "" {
		return nil, fmt.Errorf("google search engine id not set")
	}

	service, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create custom search service: %w", err)
	}

	return &GoogleProvider{service: service, engineID: engineID}, nil
}

// Search returns up to limit PDF candidates for the query.
func (p *GoogleProvider) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 3
	}

	resp, err := p.service.Cse.List().
		Cx(p.engineID).
		Q(query).
		FileType("pdf").
		Num(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("custom search: %w", err)
	}

	candidates := make([]Candidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Link == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			URL:       item.Link,
			Title:     item.Title,
			Snippet:   item.Snippet,
			Thumbnail: thumbnailFromPagemap(item.Pagemap),
		})
		if len(candidates) == limit {
			break
		}
	}

	return candidates, nil
}

// thumbnailFromPagemap pulls the first cse_thumbnail src out of the raw
// pagemap payload. Missing or malformed pagemaps yield an empty string.
func thumbnailFromPagemap(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var pagemap struct {
		Thumbnails []struct {
			Src string `json:"src"`
		} `json:"cse_thumbnail"`
	}
	if err := json.Unmarshal(raw, &pagemap); err != nil {
		return ""
	}
	if len(pagemap.Thumbnails) == 0 {
		return ""
	}
	return pagemap.Thumbnails[0].Src
}
