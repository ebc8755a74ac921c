package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Memory is the ephemeral tier: a process-local vector index created at
// the start of a pipeline run (or a single page-group sub-run) and
// discarded when the run completes. It must never be shared across
// concurrent queries.
type Memory struct {
	mu    sync.RWMutex
	items []EmbeddedChunk
}

// NewMemory creates an empty ephemeral index.
func NewMemory() *Memory {
	return &Memory{}
}

// Upsert appends chunks to the index. The write completes synchronously,
// so a Search issued afterwards in the same run is guaranteed to see the
// inserted vectors.
func (m *Memory) Upsert(_ context.Context, chunks []EmbeddedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, chunks...)
	return nil
}

// Search returns up to topK passages for the URL ordered by cosine
// similarity, highest first. An unknown URL yields an empty slice.
func (m *Memory) Search(_ context.Context, vector []float32, topK int, sourceURL string) ([]ScoredPassage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var passages []ScoredPassage
	for _, item := range m.items {
		if sourceURL != "" && item.Chunk.SourceURL != sourceURL {
			continue
		}
		passages = append(passages, ScoredPassage{
			Chunk: item.Chunk,
			Score: cosineSimilarity(vector, item.Vector),
		})
	}

	sort.Slice(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if topK > 0 && len(passages) > topK {
		passages = passages[:topK]
	}
	return passages, nil
}

// ListByURL returns up to limit stored passages for the URL with zero
// scores, used for bulk reuse checks.
func (m *Memory) ListByURL(_ context.Context, sourceURL string, limit int) ([]ScoredPassage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var passages []ScoredPassage
	for _, item := range m.items {
		if item.Chunk.SourceURL != sourceURL {
			continue
		}
		passages = append(passages, ScoredPassage{Chunk: item.Chunk})
		if limit > 0 && len(passages) == limit {
			break
		}
	}
	return passages, nil
}

// Len reports the number of stored chunks.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Reset discards all stored chunks so the index can back a new run.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
