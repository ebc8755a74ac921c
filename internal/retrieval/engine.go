// Package retrieval implements the two-tier vector retrieval engine: it
// chunks and embeds page streams into a tier, answers similarity queries
// with per-document isolation, decides when durable embeddings can
// substitute for reprocessing, and fans large documents out over
// fixed-size page groups.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/docseek/docseek/internal/chunk"
	"github.com/docseek/docseek/internal/embedding"
	"github.com/docseek/docseek/internal/fetch"
	"github.com/docseek/docseek/internal/vectorstore"
)

const (
	// DefaultPageGroupSize bounds memory and embedding-batch size: a
	// document with more pages than this is processed as independent
	// page groups.
	DefaultPageGroupSize = 50

	// DefaultPoolSize caps concurrent page-group sub-runs, and with them
	// concurrent embedding batches.
	DefaultPoolSize = 4

	// bulkRetrieveLimit is the larger bound used when an empty query asks
	// for all of a document's stored vectors.
	bulkRetrieveLimit = 500
)

// Engine coordinates chunking, embedding, and the two retrieval tiers.
type Engine struct {
	embedder      embedding.Embedder
	splitter      *chunk.Splitter
	durable       vectorstore.Tier
	pool          *ants.Pool
	pageGroupSize int
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPageGroupSize overrides the page-group fan-out threshold.
func WithPageGroupSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.pageGroupSize = size
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine. durable may be nil when no cross-run tier
// is configured; the reuse decision then always answers "miss" and
// durable stores become no-ops.
func NewEngine(embedder embedding.Embedder, splitter *chunk.Splitter, durable vectorstore.Tier, opts ...Option) (*Engine, error) {
	if splitter == nil {
		splitter = chunk.NewSplitter(chunk.DefaultSize, chunk.DefaultOverlap)
	}

	e := &Engine{
		embedder:      embedder,
		splitter:      splitter,
		durable:       durable,
		pageGroupSize: DefaultPageGroupSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	pool, err := ants.NewPool(DefaultPoolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	e.pool = pool

	return e, nil
}

// Release frees the worker pool.
func (e *Engine) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// Store chunks the pages, embeds every chunk, and upserts them into the
// tier tagged with sourceURL. The upsert completes before Store returns,
// so a subsequent Retrieve in the same run sees the vectors.
func (e *Engine) Store(ctx context.Context, sourceURL string, pages []fetch.PageUnit, tier vectorstore.Tier) error {
	chunks := e.splitter.Split(pages)
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := e.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks for %s: %w", len(chunks), sourceURL, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	embedded := make([]vectorstore.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		c.SourceURL = sourceURL
		embedded[i] = vectorstore.EmbeddedChunk{
			ID:     uuid.New().String(),
			Chunk:  c,
			Vector: vectors[i],
		}
	}

	if err := tier.Upsert(ctx, embedded); err != nil {
		return fmt.Errorf("upsert %d chunks for %s: %w", len(embedded), sourceURL, err)
	}
	return nil
}

// Retrieve answers a query against the tier, restricted to sourceURL.
// With a non-empty query it returns up to topK matches by similarity; an
// empty query returns up to a larger bound of all stored vectors for the
// URL (bulk reuse checks). A tier with no data for the URL yields an
// empty slice, never an error.
func (e *Engine) Retrieve(ctx context.Context, sourceURL, query string, tier vectorstore.Tier, topK int) ([]vectorstore.ScoredPassage, error) {
	if query == "" {
		return tier.ListByURL(ctx, sourceURL, bulkRetrieveLimit)
	}

	vectors, err := e.embedder.GenerateEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return tier.Search(ctx, vectors[0], topK, sourceURL)
}

// ReuseFromDurable checks whether the durable tier already holds
// embeddings for sourceURL and, if so, answers the query from them. A
// non-empty result substitutes completely for refetching the document.
// The check never errors: any failure is logged and reported as a miss.
//
// Staleness is accepted: if the PDF behind the URL changed, the old
// embeddings are served until the collection is cleared.
func (e *Engine) ReuseFromDurable(ctx context.Context, sourceURL, query string, topK int) ([]vectorstore.ScoredPassage, bool) {
	if e.durable == nil {
		return nil, false
	}

	passages, err := e.Retrieve(ctx, sourceURL, query, e.durable, topK)
	if err != nil {
		e.logger.Warn("durable reuse check failed, reprocessing", "url", sourceURL, "error", err)
		return nil, false
	}
	if len(passages) == 0 {
		return nil, false
	}

	e.logger.Debug("reusing durable embeddings", "url", sourceURL, "passages", len(passages))
	return passages, true
}

// StoreDurable embeds and upserts pages into the durable tier so later
// runs can reuse them. Intended to be run as a background task off the
// response path.
func (e *Engine) StoreDurable(ctx context.Context, sourceURL string, pages []fetch.PageUnit) error {
	if e.durable == nil {
		return nil
	}
	return e.Store(ctx, sourceURL, pages, e.durable)
}

// ProcessPages runs the ephemeral store+retrieve path for one document. A
// document exceeding the page-group size is split into fixed-size groups,
// each routed through its own ephemeral index on the worker pool, and the
// per-group results are concatenated after the fan-in join. A failing
// group contributes nothing; the error is returned only when every group
// fails.
func (e *Engine) ProcessPages(ctx context.Context, sourceURL, query string, pages []fetch.PageUnit, topK int) ([]vectorstore.ScoredPassage, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	groups := pageGroups(pages, e.pageGroupSize)
	if len(groups) == 1 {
		return e.processGroup(ctx, sourceURL, query, groups[0], topK)
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		passages []vectorstore.ScoredPassage
		failures int
	)

	for _, group := range groups {
		group := group
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			result, err := e.processGroup(ctx, sourceURL, query, group, topK)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				e.logger.Warn("page group failed", "url", sourceURL,
					"first_page", group[0].PageNumber, "error", err)
				return
			}
			passages = append(passages, result...)
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			failures++
			mu.Unlock()
			e.logger.Warn("page group submit failed", "url", sourceURL, "error", err)
		}
	}
	wg.Wait()

	if failures == len(groups) {
		return nil, fmt.Errorf("all %d page groups failed for %s", len(groups), sourceURL)
	}

	// Each group contributed its own top-K; reduce to one document-level
	// top-K by score.
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if topK > 0 && len(passages) > topK {
		passages = passages[:topK]
	}
	return passages, nil
}

// processGroup stores one page group into a fresh ephemeral index and
// retrieves from it. Store completes before Retrieve is issued, so the
// search always sees the just-inserted vectors.
func (e *Engine) processGroup(ctx context.Context, sourceURL, query string, pages []fetch.PageUnit, topK int) ([]vectorstore.ScoredPassage, error) {
	mem := vectorstore.NewMemory()
	if err := e.Store(ctx, sourceURL, pages, mem); err != nil {
		return nil, err
	}
	return e.Retrieve(ctx, sourceURL, query, mem, topK)
}

// pageGroups splits pages into groups of at most size, preserving order.
func pageGroups(pages []fetch.PageUnit, size int) [][]fetch.PageUnit {
	if size <= 0 || len(pages) <= size {
		return [][]fetch.PageUnit{pages}
	}
	var groups [][]fetch.PageUnit
	for start := 0; start < len(pages); start += size {
		end := min(start+size, len(pages))
		groups = append(groups, pages[start:end])
	}
	return groups
}
