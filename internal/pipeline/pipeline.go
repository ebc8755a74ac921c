// Package pipeline orchestrates the query-to-ranked-passages flow:
// semantic key derivation, cache lookup, web search, candidate
// validation, per-document concurrent processing, aggregation, and cache
// write-back.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docseek/docseek/internal/fetch"
	"github.com/docseek/docseek/internal/querycache"
	"github.com/docseek/docseek/internal/retrieval"
	"github.com/docseek/docseek/internal/semkey"
	"github.com/docseek/docseek/internal/vectorstore"
	"github.com/docseek/docseek/internal/websearch"
)

const (
	// DefaultMaxCandidates caps search hits to bound fetch and embedding
	// cost per query.
	DefaultMaxCandidates = 3
	// DefaultTopK is the number of passages returned per document.
	DefaultTopK = 5
)

// Fetcher turns a URL into ordered page text. Fallible per document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]fetch.PageUnit, error)
}

// Validator confirms a candidate URL actually serves PDF content.
type Validator interface {
	Validate(ctx context.Context, url string) bool
}

// Config holds the pipeline's collaborators and tunables.
type Config struct {
	Search    websearch.Provider
	Validator Validator
	Fetcher   Fetcher
	Engine    *retrieval.Engine
	Cache     querycache.Store
	Logger    *slog.Logger

	MaxCandidates int           // defaults to DefaultMaxCandidates
	TopK          int           // defaults to DefaultTopK
	CacheTTL      time.Duration // defaults to querycache.DefaultTTL
	KeyOptions    semkey.Options
}

// Pipeline drives the end-to-end flow for one query at a time. Each
// invocation gets its own ephemeral retrieval state; only the durable
// tier and the query cache are shared across queries.
type Pipeline struct {
	search     websearch.Provider
	validator  Validator
	fetcher    Fetcher
	engine     *retrieval.Engine
	cache      querycache.Store
	logger     *slog.Logger
	bg         *background
	maxCand    int
	topK       int
	cacheTTL   time.Duration
	keyOptions semkey.Options
}

// New creates a pipeline from cfg, applying defaults for unset tunables.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxCand := cfg.MaxCandidates
	if maxCand <= 0 {
		maxCand = DefaultMaxCandidates
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = querycache.DefaultTTL
	}

	return &Pipeline{
		search:     cfg.Search,
		validator:  cfg.Validator,
		fetcher:    cfg.Fetcher,
		engine:     cfg.Engine,
		cache:      cfg.Cache,
		logger:     logger,
		bg:         newBackground(logger),
		maxCand:    maxCand,
		topK:       topK,
		cacheTTL:   ttl,
		keyOptions: cfg.KeyOptions,
	}
}

// Close drains background tasks. Call on shutdown.
func (p *Pipeline) Close() {
	p.bg.Close()
}

// ProcessQuery answers a natural-language query with ranked passages from
// candidate PDF documents.
//
// The call never fails: input errors, search failures, and per-document
// failures all degrade to a smaller (possibly empty) result list. This is
// a deliberate availability-over-visibility contract.
func (p *Pipeline) ProcessQuery(ctx context.Context, query string) []DocumentResult {
	results, _ := p.ProcessQueryStats(ctx, query)
	return results
}

// ProcessQueryStats is ProcessQuery plus run statistics for reporting.
func (p *Pipeline) ProcessQueryStats(ctx context.Context, query string) ([]DocumentResult, Stats) {
	start := time.Now()
	stats := Stats{}

	query = strings.TrimSpace(query)
	if query == "" {
		// Blank input short-circuits before any collaborator is called.
		return []DocumentResult{}, stats
	}

	key := semkey.Derive(query, p.keyOptions)
	p.bg.Go(ctx, "push recent", func(ctx context.Context) error {
		return p.cache.PushRecent(ctx, query)
	})

	if results, ok := p.cachedResults(ctx, key); ok {
		stats.CacheHit = true
		stats.Duration = time.Since(start)
		p.logger.Debug("query cache hit", "key", key)
		return results, stats
	}

	candidates, err := p.search.Search(ctx, query, p.maxCand)
	if err != nil {
		// A search-provider failure is pipeline-level, but it still stays
		// behind the boundary: log and answer empty.
		p.logger.Error("search provider failed", "query", query, "error", err)
		stats.Duration = time.Since(start)
		return []DocumentResult{}, stats
	}
	stats.Candidates = len(candidates)

	validated := p.validate(ctx, candidates)
	stats.Validated = len(validated)
	if len(validated) == 0 {
		stats.Duration = time.Since(start)
		return []DocumentResult{}, stats
	}

	results := p.processAll(ctx, query, validated, &stats)

	if data, err := json.Marshal(results); err != nil {
		p.logger.Warn("result serialization failed, skipping cache write", "key", key, "error", err)
	} else {
		p.bg.Go(ctx, "cache write", func(ctx context.Context) error {
			return p.cache.Set(ctx, key, data, p.cacheTTL)
		})
	}

	stats.Duration = time.Since(start)
	return results, stats
}

// GetRecentSearches returns up to limit recent queries, most recent
// first. Errors degrade to an empty list.
func (p *Pipeline) GetRecentSearches(ctx context.Context, limit int) []string {
	recent, err := p.cache.Recent(ctx, limit)
	if err != nil {
		p.logger.Warn("recent searches lookup failed", "error", err)
		return []string{}
	}
	return recent
}

// cachedResults loads and deserializes a cached result set. Any cache or
// decode failure is treated as a miss.
func (p *Pipeline) cachedResults(ctx context.Context, key string) ([]DocumentResult, bool) {
	data, err := p.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var results []DocumentResult
	if err := json.Unmarshal(data, &results); err != nil {
		p.logger.Warn("cached result corrupt, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return results, true
}

// validate probes all candidates concurrently and keeps only those that
// actually serve PDF content, preserving search order. Failures are
// dropped silently.
func (p *Pipeline) validate(ctx context.Context, candidates []websearch.Candidate) []websearch.Candidate {
	ok := make([]bool, len(candidates))

	var wg sync.WaitGroup
	for i, cand := range candidates {
		i, cand := i, cand
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok[i] = p.validator.Validate(ctx, cand.URL)
		}()
	}
	wg.Wait()

	validated := make([]websearch.Candidate, 0, len(candidates))
	for i, cand := range candidates {
		if ok[i] {
			validated = append(validated, cand)
		} else {
			p.logger.Debug("candidate dropped by validation", "url", cand.URL)
		}
	}
	return validated
}

// processAll fans out over validated candidates and joins before
// aggregation. One document's failure never cancels its siblings; it
// contributes an absent entry only for itself.
func (p *Pipeline) processAll(ctx context.Context, query string, candidates []websearch.Candidate, stats *Stats) []DocumentResult {
	type branch struct {
		result DocumentResult
		ok     bool
		reused bool
	}
	branches := make([]branch, len(candidates))

	var wg sync.WaitGroup
	for i, cand := range candidates {
		i, cand := i, cand
		wg.Add(1)
		go func() {
			defer wg.Done()
			passages, reused, err := p.processDocument(ctx, query, cand.URL)
			if err != nil {
				p.logger.Warn("document processing failed", "url", cand.URL, "error", err)
				return
			}
			if len(passages) == 0 {
				return
			}
			sortByPage(passages)
			branches[i] = branch{
				result: DocumentResult{Document: cand, Passages: passages, Reused: reused},
				ok:     true,
				reused: reused,
			}
		}()
	}
	wg.Wait()

	// Branches complete in arbitrary order; output order is the
	// deterministic search order.
	results := make([]DocumentResult, 0, len(candidates))
	for _, b := range branches {
		if !b.ok {
			stats.Failed++
			continue
		}
		if b.reused {
			stats.Reused++
		} else {
			stats.Fetched++
		}
		results = append(results, b.result)
	}
	return results
}

// processDocument runs the reuse-or-reprocess path for one document.
func (p *Pipeline) processDocument(ctx context.Context, query, url string) ([]vectorstore.ScoredPassage, bool, error) {
	if passages, ok := p.engine.ReuseFromDurable(ctx, url, query, p.topK); ok {
		return passages, true, nil
	}

	pages, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, false, fmt.Errorf("fetch: %w", err)
	}
	if len(pages) == 0 {
		return nil, false, nil
	}

	// Durable write happens off the response path: the caller never
	// waits on write confirmation, and a failure only means no durable
	// cache for this document.
	p.bg.Go(ctx, "durable store "+url, func(ctx context.Context) error {
		return p.engine.StoreDurable(ctx, url, pages)
	})

	passages, err := p.engine.ProcessPages(ctx, url, query, pages, p.topK)
	if err != nil {
		return nil, false, fmt.Errorf("process pages: %w", err)
	}
	return passages, false, nil
}

// sortByPage orders passages for presentation: page ascending, then line
// offset within the page.
func sortByPage(passages []vectorstore.ScoredPassage) {
	sort.SliceStable(passages, func(i, j int) bool {
		if passages[i].Chunk.PageNumber != passages[j].Chunk.PageNumber {
			return passages[i].Chunk.PageNumber < passages[j].Chunk.PageNumber
		}
		return passages[i].Chunk.LineFrom < passages[j].Chunk.LineFrom
	})
}
