package pipeline

import (
	"time"

	"github.com/docseek/docseek/internal/vectorstore"
	"github.com/docseek/docseek/internal/websearch"
)

// DocumentResult pairs a discovered document with its relevant passages.
// Passages are sorted by page number ascending for presentation; the
// top-K selection itself was by similarity score.
type DocumentResult struct {
	Document websearch.Candidate         `json:"document"`
	Passages []vectorstore.ScoredPassage `json:"relevantPages"`
	// Reused reports whether the passages came from durable embeddings
	// instead of a fresh fetch.
	Reused bool `json:"reused,omitempty"`
}

// Stats summarizes one pipeline run, for CLI reporting.
type Stats struct {
	CacheHit   bool
	Candidates int
	Validated  int
	Reused     int
	Fetched    int
	Failed     int
	Duration   time.Duration
}
