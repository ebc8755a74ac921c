// Package vectorstore provides the two vector retrieval tiers: an
// ephemeral in-memory index scoped to one pipeline run, and a durable
// Qdrant-backed index that survives across runs, keyed by document URL.
package vectorstore

import (
	"context"

	"github.com/docseek/docseek/internal/chunk"
)

// EmbeddedChunk is a chunk plus its embedding vector, tagged with the
// owning document URL for filtered retrieval.
type EmbeddedChunk struct {
	ID     string
	Chunk  chunk.Chunk
	Vector []float32
}

// ScoredPassage is a chunk returned by similarity search. Score follows
// the cosine-similarity convention: higher is more relevant.
type ScoredPassage struct {
	Chunk chunk.Chunk `json:"chunk"`
	Score float64     `json:"score"`
}

// Tier is the common contract of both retrieval tiers.
//
// Search and ListByURL return an empty slice, never an error, when the
// tier holds no data for the URL, so callers can treat "empty" as "needs
// fresh processing" uniformly.
type Tier interface {
	Upsert(ctx context.Context, chunks []EmbeddedChunk) error
	Search(ctx context.Context, vector []float32, topK int, sourceURL string) ([]ScoredPassage, error)
	ListByURL(ctx context.Context, sourceURL string, limit int) ([]ScoredPassage, error)
}

// CollectionName is the single Qdrant collection for all passages.
const CollectionName = "passages"

// VectorDimension is the embedding size for text-embedding-3-small.
const VectorDimension = 1536
