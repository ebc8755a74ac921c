// Package main provides the docseek CLI for running PDF passage searches
// from the terminal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docseek/docseek/internal/embedding"
	"github.com/docseek/docseek/internal/fetch"
	"github.com/docseek/docseek/internal/pipeline"
	"github.com/docseek/docseek/internal/querycache"
	"github.com/docseek/docseek/internal/retrieval"
	"github.com/docseek/docseek/internal/vectorstore"
	"github.com/docseek/docseek/internal/websearch"
)

var rootCmd = &cobra.Command{
	Use:   "docseek",
	Short: "PDF passage search tool",
	Long:  "CLI tool for answering natural-language queries from publicly available PDF documents",
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Answer a query with ranked passages from PDF documents",
	Long: `Runs the full search pipeline for one query.

This command:
1. Derives a semantic cache key and checks the query cache
2. Searches the web for candidate PDF documents
3. Validates, fetches, and chunks each candidate
4. Embeds chunks and retrieves the most relevant passages
5. Prints passages grouped by document, ordered by page

Environment variables:
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  REDIS_ADDR     Redis address (default: localhost:6379)
  OPENAI_API_KEY OpenAI API key for embeddings (required)
  GOOGLE_API_KEY Google API key for web search (required)
  GOOGLE_CSE_ID  Google custom search engine ID (required)`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently processed queries",
	RunE:  runRecent,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop and recreate the durable passage collection",
	RunE:  runClear,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(clearCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, cleanup, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("Searching for: %s\n", args[0])
	fmt.Println()

	results, stats := p.ProcessQueryStats(ctx, args[0])

	if len(results) == 0 {
		fmt.Println("No matching documents found.")
		return nil
	}

	for _, result := range results {
		fmt.Printf("%s\n", result.Document.Title)
		fmt.Printf("  %s", result.Document.URL)
		if result.Reused {
			fmt.Printf(" (reused)")
		}
		fmt.Println()
		for _, passage := range result.Passages {
			fmt.Printf("  [page %d, lines %d-%d, score %.3f]\n",
				passage.Chunk.PageNumber, passage.Chunk.LineFrom, passage.Chunk.LineTo, passage.Score)
			fmt.Printf("    %s\n", excerpt(passage.Chunk.Text, 200))
		}
		fmt.Println()
	}

	fmt.Println("Search complete!")
	if stats.CacheHit {
		fmt.Println("  Served from query cache")
	} else {
		fmt.Printf("  Candidates: %d (validated %d)\n", stats.Candidates, stats.Validated)
		fmt.Printf("  Fetched: %d  Reused: %d  Failed: %d\n", stats.Fetched, stats.Reused, stats.Failed)
	}
	fmt.Printf("  Duration: %s\n", stats.Duration.Round(time.Millisecond))

	return nil
}

func runRecent(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cache, err := querycache.NewRedis(ctx,
		getEnv("REDIS_ADDR", "localhost:6379"), getEnv("REDIS_PASSWORD", ""), getEnvInt("REDIS_DB", 0))
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer cache.Close()

	recent, err := cache.Recent(ctx, querycache.MaxRecent)
	if err != nil {
		return fmt.Errorf("failed to list recent queries: %w", err)
	}

	if len(recent) == 0 {
		fmt.Println("No recent queries.")
		return nil
	}
	for i, query := range recent {
		fmt.Printf("%2d. %s\n", i+1, query)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := vectorstore.NewQdrant(
		getEnv("QDRANT_HOST", "localhost"), getEnvInt("QDRANT_PORT", 6334))
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer store.Close()

	fmt.Println("Clearing passage collection...")
	if err := store.ClearCollection(ctx); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	fmt.Println("Collection cleared")
	return nil
}

// buildPipeline assembles the full pipeline from environment
// configuration. The returned cleanup closes every backend connection.
func buildPipeline(ctx context.Context) (*pipeline.Pipeline, func(), error) {
	googleAPIKey := os.Getenv("GOOGLE_API_KEY")
	googleCSEID := os.Getenv("GOOGLE_CSE_ID")
	if googleAPIKey == "" || googleCSEID == "" {
		return nil, nil, fmt.Errorf("GOOGLE_API_KEY and GOOGLE_CSE_ID are required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	durable, err := vectorstore.NewQdrant(
		getEnv("QDRANT_HOST", "localhost"), getEnvInt("QDRANT_PORT", 6334))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	if err := durable.EnsureCollection(ctx); err != nil {
		durable.Close()
		return nil, nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	cache, err := querycache.NewRedis(ctx,
		getEnv("REDIS_ADDR", "localhost:6379"), getEnv("REDIS_PASSWORD", ""), getEnvInt("REDIS_DB", 0))
	if err != nil {
		durable.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	embeddingClient, err := embedding.NewClient()
	if err != nil {
		durable.Close()
		cache.Close()
		return nil, nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewOpenAIEmbedder(embeddingClient, 0)

	search, err := websearch.NewGoogleProvider(ctx, googleAPIKey, googleCSEID)
	if err != nil {
		durable.Close()
		cache.Close()
		return nil, nil, fmt.Errorf("failed to create search provider: %w", err)
	}

	engine, err := retrieval.NewEngine(embedder, nil, durable, retrieval.WithLogger(logger))
	if err != nil {
		durable.Close()
		cache.Close()
		return nil, nil, fmt.Errorf("failed to create retrieval engine: %w", err)
	}

	p := pipeline.New(pipeline.Config{
		Search:    search,
		Validator: websearch.NewValidator(nil, 0, logger),
		Fetcher:   fetch.NewFetcher(nil, logger),
		Engine:    engine,
		Cache:     cache,
		Logger:    logger,
	})

	cleanup := func() {
		p.Close()
		engine.Release()
		cache.Close()
		durable.Close()
	}
	return p, cleanup, nil
}

func excerpt(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
