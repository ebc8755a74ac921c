// Package chunk splits page-level document text into overlapping
// fixed-size segments suitable for embedding.
package chunk

import (
	"strings"

	"github.com/docseek/docseek/internal/fetch"
)

const (
	// DefaultSize is the target chunk length in runes.
	DefaultSize = 1000
	// DefaultOverlap is the number of runes shared between consecutive
	// chunks from the same page, so no semantic unit is cut without
	// context duplicated at the boundary.
	DefaultOverlap = 200
)

// Chunk is a segment of page text carrying enough provenance to map it
// back to its originating page and line span.
type Chunk struct {
	Text       string `json:"text"`
	SourceURL  string `json:"sourceUrl"`
	PageNumber int    `json:"pageNumber"`
	LineFrom   int    `json:"lineFrom"`
	LineTo     int    `json:"lineTo"`
	TotalPages int    `json:"totalPages"`
}

// Splitter produces overlapping chunks from page streams.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a Splitter. Non-positive size falls back to
// DefaultSize; an overlap that is negative or not smaller than size falls
// back to size/5.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split chunks every page in order. Pages with no text contribute no
// chunks. The final chunk of a page always carries the remainder, even
// when shorter than the target size.
func (s *Splitter) Split(pages []fetch.PageUnit) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		chunks = append(chunks, s.splitPage(page)...)
	}
	return chunks
}

func (s *Splitter) splitPage(page fetch.PageUnit) []Chunk {
	text := page.Text
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	lineAt := lineOffsets(runes)

	var chunks []Chunk
	step := s.size - s.overlap
	for start := 0; ; start += step {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Text:       string(runes[start:end]),
			SourceURL:  page.SourceURL,
			PageNumber: page.PageNumber,
			LineFrom:   lineAt[start],
			LineTo:     lineAt[end-1],
			TotalPages: page.TotalPages,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// lineOffsets maps each rune index to its zero-based line number within
// the page.
func lineOffsets(runes []rune) []int {
	offsets := make([]int, len(runes))
	line := 0
	for i, r := range runes {
		offsets[i] = line
		if r == '\n' {
			line++
		}
	}
	return offsets
}
