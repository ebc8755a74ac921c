package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/docseek/docseek/internal/chunk"
)

// bulkReuseLimit caps how many passages a ListByURL reuse check pulls
// back in one call.
const bulkReuseLimit = 500

// Qdrant is the durable tier. Passages are stored with generated point
// ids and the owning document URL as filterable payload, so embeddings
// survive across pipeline runs and can be reused per URL.
type Qdrant struct {
	client *qdrant.Client
	host   string
	port   int
}

// NewQdrant creates a Qdrant-backed tier with health validation. It
// performs a health check with retry on startup and fails fast if the
// server is unreachable.
func NewQdrant(host string, port int) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	q := &Qdrant{
		client: client,
		host:   host,
		port:   port,
	}

	if err := q.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return q, nil
}

// healthCheckWithRetry performs a health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (q *Qdrant) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return q.Health(ctx)
	}, b)
}

// Health performs a single health check against Qdrant.
func (q *Qdrant) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection ensures the passages collection exists with cosine
// distance vectors and a payload index on source_url. Idempotent.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == CollectionName {
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			"content": {
				Size:     VectorDimension,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Without this index, URL-filtered queries degrade badly as the
	// collection grows.
	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: CollectionName,
		FieldName:      "source_url",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create source_url index: %w", err)
	}

	return nil
}

// ClearCollection deletes all points and recreates the collection.
// Useful for re-indexing scenarios.
func (q *Qdrant) ClearCollection(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, CollectionName); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return q.EnsureCollection(ctx)
}

// Close closes the underlying client connection.
func (q *Qdrant) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// Upsert stores embedded chunks, batched in groups of 100, with
// exponential backoff retry per batch. Point ids are freshly generated by
// the caller, so concurrent writers for the same URL append duplicates
// rather than corrupting each other.
func (q *Qdrant) Upsert(ctx context.Context, chunks []EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i, c := range chunks {
		if len(c.Vector) != VectorDimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(c.Vector), VectorDimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))

		batch := chunks[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, c := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(c.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					"content": qdrant.NewVector(c.Vector...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"source_url":  c.Chunk.SourceURL,
					"text":        c.Chunk.Text,
					"page_number": c.Chunk.PageNumber,
					"line_from":   c.Chunk.LineFrom,
					"line_to":     c.Chunk.LineTo,
					"total_pages": c.Chunk.TotalPages,
				}),
			}
		}

		if err := q.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// upsertWithRetry performs an upsert with exponential backoff.
func (q *Qdrant) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
		})
		return err
	}, b)
}

// Search performs vector similarity search restricted to passages whose
// source_url matches, returning up to topK matches by score descending.
func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int, sourceURL string) ([]ScoredPassage, error) {
	if len(vector) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), VectorDimension)
	}

	var filter *qdrant.Filter
	if sourceURL != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("source_url", sourceURL),
			},
		}
	}

	vectorName := "content"
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Using:          &vectorName,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}

	passages := make([]ScoredPassage, 0, len(results))
	for _, result := range results {
		passages = append(passages, ScoredPassage{
			Chunk: chunkFromPayload(result.Payload),
			Score: float64(result.Score),
		})
	}

	return passages, nil
}

// ListByURL returns up to limit stored passages for the URL without
// similarity ranking, used for bulk reuse checks. No data is an empty
// slice, not an error.
func (q *Qdrant) ListByURL(ctx context.Context, sourceURL string, limit int) ([]ScoredPassage, error) {
	if limit <= 0 {
		limit = bulkReuseLimit
	}

	var passages []ScoredPassage
	var offset *qdrant.PointId

	batchSize := uint32(100)
	for {
		results, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: CollectionName,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{
					qdrant.NewMatch("source_url", sourceURL),
				},
			},
			Limit:       qdrant.PtrOf(batchSize),
			Offset:      offset,
			WithPayload: qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll passages: %w", err)
		}

		for _, result := range results {
			passages = append(passages, ScoredPassage{Chunk: chunkFromPayload(result.Payload)})
			if len(passages) == limit {
				return passages, nil
			}
		}

		if uint32(len(results)) < batchSize {
			return passages, nil
		}
		offset = results[len(results)-1].Id
	}
}

// chunkFromPayload rebuilds a chunk from Qdrant payload fields.
func chunkFromPayload(payload map[string]*qdrant.Value) chunk.Chunk {
	return chunk.Chunk{
		Text:       payload["text"].GetStringValue(),
		SourceURL:  payload["source_url"].GetStringValue(),
		PageNumber: int(payload["page_number"].GetIntegerValue()),
		LineFrom:   int(payload["line_from"].GetIntegerValue()),
		LineTo:     int(payload["line_to"].GetIntegerValue()),
		TotalPages: int(payload["total_pages"].GetIntegerValue()),
	}
}
