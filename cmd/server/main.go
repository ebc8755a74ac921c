// Package main provides the MCP server entry point for PDF passage search.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/docseek/docseek/internal/embedding"
	"github.com/docseek/docseek/internal/fetch"
	mcpserver "github.com/docseek/docseek/internal/mcp"
	"github.com/docseek/docseek/internal/pipeline"
	"github.com/docseek/docseek/internal/querycache"
	"github.com/docseek/docseek/internal/retrieval"
	"github.com/docseek/docseek/internal/vectorstore"
	"github.com/docseek/docseek/internal/websearch"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// Configuration from environment
	qdrantHost := getEnv("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	redisDB := getEnvInt("REDIS_DB", 0)
	googleAPIKey := os.Getenv("GOOGLE_API_KEY")
	googleCSEID := os.Getenv("GOOGLE_CSE_ID")
	port := getEnv("PORT", "8080")

	if googleAPIKey == "" || googleCSEID == "" {
		log.Fatal("GOOGLE_API_KEY and GOOGLE_CSE_ID are required")
	}

	// Initialize durable vector store
	durable, err := vectorstore.NewQdrant(qdrantHost, qdrantPort)
	if err != nil {
		log.Fatalf("failed to connect to Qdrant: %v", err)
	}
	defer durable.Close()

	if err := durable.EnsureCollection(ctx); err != nil {
		log.Fatalf("failed to ensure collection: %v", err)
	}

	// Initialize query cache
	cache, err := querycache.NewRedis(ctx, redisAddr, redisPassword, redisDB)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer cache.Close()

	// Initialize embedding client
	embeddingClient, err := embedding.NewClient()
	if err != nil {
		log.Fatalf("failed to create embedding client: %v", err)
	}
	embedder := embedding.NewOpenAIEmbedder(embeddingClient, 0) // Use default batch size

	// Initialize search provider
	search, err := websearch.NewGoogleProvider(ctx, googleAPIKey, googleCSEID)
	if err != nil {
		log.Fatalf("failed to create search provider: %v", err)
	}

	// Retrieval engine over the durable tier
	engine, err := retrieval.NewEngine(embedder, nil, durable, retrieval.WithLogger(logger))
	if err != nil {
		log.Fatalf("failed to create retrieval engine: %v", err)
	}
	defer engine.Release()

	p := pipeline.New(pipeline.Config{
		Search:    search,
		Validator: websearch.NewValidator(nil, 0, logger),
		Fetcher:   fetch.NewFetcher(nil, logger),
		Engine:    engine,
		Cache:     cache,
		Logger:    logger,
	})
	defer p.Close()

	// Create MCP server
	server := mcpserver.NewServer(p)

	// Create HTTP server with multiple endpoints
	mux := http.NewServeMux()
	mux.HandleFunc("/", mcpserver.NewLandingHandler())
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(durable, cache))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))

	// Check if running in server mode (HTTP) or stdio mode (local development)
	serverMode := getEnv("SERVER_MODE", "false") == "true"

	if serverMode {
		// HTTP mode: serve MCP over HTTP for remote clients
		addr := "0.0.0.0:" + port
		log.Printf("Starting HTTP server on %s (MCP at /mcp, health at /health)", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	} else {
		// Stdio mode: run MCP server over stdin/stdout for local clients
		// Also start HTTP health endpoint in background for local testing
		go func() {
			addr := "0.0.0.0:" + port
			log.Printf("Starting health server on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("Health server error: %v", err)
			}
		}()

		log.Println("Starting DocSeek MCP Server (stdio mode)...")
		if err := server.Run(ctx); err != nil {
			log.Printf("server error: %v", err)
			os.Exit(1)
		}
	}
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
