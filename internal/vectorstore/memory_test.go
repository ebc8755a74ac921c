package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docseek/docseek/internal/chunk"
)

func embedded(id, url, text string, page int, vector []float32) EmbeddedChunk {
	return EmbeddedChunk{
		ID: id,
		Chunk: chunk.Chunk{
			Text:       text,
			SourceURL:  url,
			PageNumber: page,
			TotalPages: 10,
		},
		Vector: vector,
	}
}

func TestMemory_SearchOrdersByCosineSimilarity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Upsert(ctx, []EmbeddedChunk{
		embedded("a", "u1", "orthogonal", 1, []float32{0, 1, 0}),
		embedded("b", "u1", "exact", 2, []float32{1, 0, 0}),
		embedded("c", "u1", "close", 3, []float32{1, 1, 0}),
	}))

	passages, err := m.Search(ctx, []float32{1, 0, 0}, 3, "u1")
	require.NoError(t, err)
	require.Len(t, passages, 3)

	assert.Equal(t, "exact", passages[0].Chunk.Text)
	assert.Equal(t, "close", passages[1].Chunk.Text)
	assert.Equal(t, "orthogonal", passages[2].Chunk.Text)
	assert.InDelta(t, 1.0, passages[0].Score, 1e-6)
	assert.InDelta(t, 0.0, passages[2].Score, 1e-6)
}

func TestMemory_SearchFiltersBySourceURL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Upsert(ctx, []EmbeddedChunk{
		embedded("a", "u1", "mine", 1, []float32{1, 0}),
		embedded("b", "u2", "other", 1, []float32{1, 0}),
	}))

	passages, err := m.Search(ctx, []float32{1, 0}, 10, "u1")
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "mine", passages[0].Chunk.Text)
}

func TestMemory_SearchTopKBound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var chunks []EmbeddedChunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, embedded("id", "u1", "t", i, []float32{1, float32(i)}))
	}
	require.NoError(t, m.Upsert(ctx, chunks))

	passages, err := m.Search(ctx, []float32{1, 0}, 4, "u1")
	require.NoError(t, err)
	assert.Len(t, passages, 4)
}

func TestMemory_SearchUnknownURLReturnsEmptyNotError(t *testing.T) {
	m := NewMemory()
	passages, err := m.Search(context.Background(), []float32{1, 0}, 5, "nowhere")
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestMemory_ListByURL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Upsert(ctx, []EmbeddedChunk{
		embedded("a", "u1", "one", 1, []float32{1}),
		embedded("b", "u1", "two", 2, []float32{1}),
		embedded("c", "u2", "other", 1, []float32{1}),
	}))

	passages, err := m.ListByURL(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, passages, 2)

	passages, err = m.ListByURL(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, passages, 1)
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, []EmbeddedChunk{embedded("a", "u1", "t", 1, []float32{1})}))
	require.Equal(t, 1, m.Len())

	m.Reset()
	assert.Equal(t, 0, m.Len())
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
