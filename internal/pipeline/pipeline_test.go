package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docseek/docseek/internal/fetch"
	"github.com/docseek/docseek/internal/querycache"
	"github.com/docseek/docseek/internal/retrieval"
	"github.com/docseek/docseek/internal/vectorstore"
	"github.com/docseek/docseek/internal/websearch"
)

// stubEmbedder maps each text onto a deterministic small vector so that
// retrieval works without any network.
type stubEmbedder struct{}

func (stubEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		var sum float32
		for _, r := range text {
			sum += float32(r % 13)
		}
		vectors[i] = []float32{float32(len(text)), sum, 1}
	}
	return vectors, nil
}

type stubSearch struct {
	mu         sync.Mutex
	calls      int
	candidates []websearch.Candidate
	err        error
}

func (s *stubSearch) Search(_ context.Context, _ string, limit int) ([]websearch.Candidate, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.candidates) > limit {
		return s.candidates[:limit], nil
	}
	return s.candidates, nil
}

func (s *stubSearch) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubValidator rejects the URLs in its deny set and accepts the rest.
type stubValidator struct {
	deny map[string]bool
}

func (v *stubValidator) Validate(_ context.Context, url string) bool {
	return !v.deny[url]
}

// stubFetcher serves canned pages per URL and records which URLs were
// actually fetched.
type stubFetcher struct {
	mu      sync.Mutex
	pages   map[string][]fetch.PageUnit
	failing map[string]bool
	fetched []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]fetch.PageUnit, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	if f.failing[url] {
		return nil, errors.New("connection reset")
	}
	return f.pages[url], nil
}

func (f *stubFetcher) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func pagesFor(url string, count int) []fetch.PageUnit {
	pages := make([]fetch.PageUnit, count)
	for i := range pages {
		pages[i] = fetch.PageUnit{
			PageNumber: i + 1,
			Text:       fmt.Sprintf("reactor maintenance section %d of %s", i+1, url),
			TotalPages: count,
			SourceURL:  url,
		}
	}
	return pages
}

type fixture struct {
	pipeline *Pipeline
	search   *stubSearch
	fetcher  *stubFetcher
	cache    *querycache.Memory
	durable  *vectorstore.Memory
	engine   *retrieval.Engine
}

func newFixture(t *testing.T, search *stubSearch, validator *stubValidator, fetcher *stubFetcher) *fixture {
	t.Helper()

	durable := vectorstore.NewMemory()
	engine, err := retrieval.NewEngine(stubEmbedder{}, nil, durable)
	require.NoError(t, err)
	t.Cleanup(engine.Release)

	cache := querycache.NewMemory()
	p := New(Config{
		Search:    search,
		Validator: validator,
		Fetcher:   fetcher,
		Engine:    engine,
		Cache:     cache,
		Logger:    slog.Default(),
	})
	t.Cleanup(p.Close)

	return &fixture{pipeline: p, search: search, fetcher: fetcher, cache: cache, durable: durable, engine: engine}
}

func TestProcessQueryEmptyInput(t *testing.T) {
	search := &stubSearch{}
	fx := newFixture(t, search, &stubValidator{}, &stubFetcher{})

	results := fx.pipeline.ProcessQuery(context.Background(), "   \t\n")

	assert.Empty(t, results)
	assert.NotNil(t, results)
	assert.Equal(t, 0, search.callCount(), "blank input must not reach the search provider")
}

func TestProcessQuerySearchFailure(t *testing.T) {
	search := &stubSearch{err: errors.New("quota exceeded")}
	fx := newFixture(t, search, &stubValidator{}, &stubFetcher{})

	results, stats := fx.pipeline.ProcessQueryStats(context.Background(), "reactor cooling")

	assert.Empty(t, results)
	assert.False(t, stats.CacheHit)
	assert.Equal(t, 0, stats.Candidates)
}

func TestProcessQueryOrdering(t *testing.T) {
	first := "https://example.com/manual-a.pdf"
	second := "https://example.com/manual-b.pdf"
	search := &stubSearch{candidates: []websearch.Candidate{
		{URL: first, Title: "Manual A"},
		{URL: second, Title: "Manual B"},
	}}
	fetcher := &stubFetcher{pages: map[string][]fetch.PageUnit{
		first:  pagesFor(first, 4),
		second: pagesFor(second, 3),
	}}
	fx := newFixture(t, search, &stubValidator{}, fetcher)

	results, stats := fx.pipeline.ProcessQueryStats(context.Background(), "reactor maintenance")

	require.Len(t, results, 2)
	assert.Equal(t, "Manual A", results[0].Document.Title)
	assert.Equal(t, "Manual B", results[1].Document.Title)
	assert.Equal(t, 2, stats.Candidates)
	assert.Equal(t, 2, stats.Validated)
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 0, stats.Failed)

	for _, result := range results {
		require.NotEmpty(t, result.Passages)
		for i := 1; i < len(result.Passages); i++ {
			assert.LessOrEqual(t,
				result.Passages[i-1].Chunk.PageNumber,
				result.Passages[i].Chunk.PageNumber,
				"passages must be ordered by page, not score")
		}
	}
}

func TestProcessQueryPartialFailure(t *testing.T) {
	urls := []string{
		"https://example.com/a.pdf",
		"https://example.com/b.pdf",
		"https://example.com/c.pdf",
	}
	search := &stubSearch{candidates: []websearch.Candidate{
		{URL: urls[0], Title: "A"},
		{URL: urls[1], Title: "B"},
		{URL: urls[2], Title: "C"},
	}}
	fetcher := &stubFetcher{
		pages: map[string][]fetch.PageUnit{
			urls[0]: pagesFor(urls[0], 2),
			urls[2]: pagesFor(urls[2], 2),
		},
		failing: map[string]bool{urls[1]: true},
	}
	fx := newFixture(t, search, &stubValidator{}, fetcher)

	results, stats := fx.pipeline.ProcessQueryStats(context.Background(), "turbine schematics")

	require.Len(t, results, 2, "one failing document must not take the others down")
	assert.Equal(t, "A", results[0].Document.Title)
	assert.Equal(t, "C", results[1].Document.Title)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.Fetched)
}

func TestProcessQueryValidationFilters(t *testing.T) {
	good := "https://example.com/spec-sheet.pdf"
	bad := "https://example.com/landing-page"
	search := &stubSearch{candidates: []websearch.Candidate{
		{URL: bad, Title: "Landing"},
		{URL: good, Title: "Spec Sheet"},
	}}
	fetcher := &stubFetcher{pages: map[string][]fetch.PageUnit{
		good: pagesFor(good, 2),
	}}
	fx := newFixture(t, search, &stubValidator{deny: map[string]bool{bad: true}}, fetcher)

	results, stats := fx.pipeline.ProcessQueryStats(context.Background(), "pump specifications")

	require.Len(t, results, 1)
	assert.Equal(t, "Spec Sheet", results[0].Document.Title)
	assert.Equal(t, 1, stats.Validated)
	assert.NotContains(t, fetcher.fetchedURLs(), bad, "rejected candidates must never be fetched")
}

func TestProcessQueryCacheHit(t *testing.T) {
	url := "https://example.com/handbook.pdf"
	search := &stubSearch{candidates: []websearch.Candidate{{URL: url, Title: "Handbook"}}}
	fetcher := &stubFetcher{pages: map[string][]fetch.PageUnit{url: pagesFor(url, 3)}}
	fx := newFixture(t, search, &stubValidator{}, fetcher)

	first := fx.pipeline.ProcessQuery(context.Background(), "valve handbook")
	require.NotEmpty(t, first)
	fx.pipeline.bg.Flush()

	second, stats := fx.pipeline.ProcessQueryStats(context.Background(), "valve handbook")

	assert.True(t, stats.CacheHit)
	assert.Equal(t, 1, search.callCount(), "a cache hit must not trigger a new search")
	assert.Equal(t, first, second)
}

func TestProcessQueryRecentTracking(t *testing.T) {
	search := &stubSearch{}
	fx := newFixture(t, search, &stubValidator{}, &stubFetcher{})

	ctx := context.Background()
	for _, query := range []string{"first query", "second query", "first query"} {
		fx.pipeline.ProcessQuery(ctx, query)
		fx.pipeline.bg.Flush()
	}

	recent := fx.pipeline.GetRecentSearches(ctx, querycache.MaxRecent)
	assert.Equal(t, []string{"first query", "second query"}, recent,
		"repeats move to the front instead of duplicating")
}

func TestProcessQueryReusesDurableTier(t *testing.T) {
	url := "https://example.com/archive.pdf"
	search := &stubSearch{candidates: []websearch.Candidate{{URL: url, Title: "Archive"}}}
	fetcher := &stubFetcher{}
	fx := newFixture(t, search, &stubValidator{}, fetcher)

	require.NoError(t, fx.engine.StoreDurable(context.Background(), url, pagesFor(url, 3)))

	results, stats := fx.pipeline.ProcessQueryStats(context.Background(), "archived diagrams")

	require.Len(t, results, 1)
	assert.True(t, results[0].Reused)
	assert.Equal(t, 1, stats.Reused)
	assert.Equal(t, 0, stats.Fetched)
	assert.Empty(t, fetcher.fetchedURLs(), "durable reuse must skip the fetch entirely")
}

// errStore fails every operation, standing in for an unreachable Redis.
type errStore struct{}

func (errStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (errStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (errStore) Exists(context.Context, string) (bool, error)          { return false, errors.New("down") }
func (errStore) Delete(context.Context, string) error                  { return errors.New("down") }
func (errStore) UpdateTTL(context.Context, string, time.Duration) error { return errors.New("down") }
func (errStore) PushRecent(context.Context, string) error              { return errors.New("down") }
func (errStore) Recent(context.Context, int) ([]string, error)         { return nil, errors.New("down") }

func TestPipelineSurvivesCacheOutage(t *testing.T) {
	url := "https://example.com/resilient.pdf"
	search := &stubSearch{candidates: []websearch.Candidate{{URL: url, Title: "Resilient"}}}
	fetcher := &stubFetcher{pages: map[string][]fetch.PageUnit{url: pagesFor(url, 2)}}

	durable := vectorstore.NewMemory()
	engine, err := retrieval.NewEngine(stubEmbedder{}, nil, durable)
	require.NoError(t, err)
	t.Cleanup(engine.Release)

	p := New(Config{
		Search:    search,
		Validator: &stubValidator{},
		Fetcher:   fetcher,
		Engine:    engine,
		Cache:     errStore{},
		Logger:    slog.Default(),
	})
	t.Cleanup(p.Close)

	results := p.ProcessQuery(context.Background(), "resilience test")

	require.Len(t, results, 1, "cache failures degrade to uncached operation")
	assert.Empty(t, p.GetRecentSearches(context.Background(), 10))
}
