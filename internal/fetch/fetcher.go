// Package fetch downloads PDF documents and extracts their text page by
// page.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// PageUnit is the ordered page-level text extracted from one document.
type PageUnit struct {
	PageNumber int    `json:"pageNumber"`
	Text       string `json:"text"`
	TotalPages int    `json:"totalPages"`
	SourceURL  string `json:"sourceUrl"`
}

// maxDocumentBytes bounds how much of a remote PDF is read into memory.
const maxDocumentBytes = 64 << 20 // 64 MiB

// Fetcher downloads PDFs over HTTP and parses them into PageUnits.
// A failure on one document never affects its siblings; callers treat any
// returned error as "this document contributes nothing".
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. A nil client gets a default with a
// 30-second timeout; a nil logger falls back to slog.Default().
func NewFetcher(client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, logger: logger}
}

// Fetch downloads the document at url and returns its pages in order.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]PageUnit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	return f.parse(url, data)
}

// parse extracts per-page plain text. Pages that fail text extraction are
// skipped with a warning rather than failing the document.
func (f *Fetcher) parse(url string, data []byte) ([]PageUnit, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", url, err)
	}

	total := reader.NumPage()
	pages := make([]PageUnit, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			f.logger.Warn("failed to extract page text", "url", url, "page", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, PageUnit{
			PageNumber: i,
			Text:       text,
			TotalPages: total,
			SourceURL:  url,
		})
	}

	return pages, nil
}
