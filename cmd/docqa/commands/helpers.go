package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/docs"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/history"
	"github.com/54b3r/docqa-go/internal/index"
	"github.com/54b3r/docqa-go/internal/indexer"
	"github.com/54b3r/docqa-go/internal/metrics"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
)

// resolveSourceDir returns the absolute source folder: the --dir flag if set,
// else SOURCE_DIR. The folder must exist.
func resolveSourceDir(flagDir string) (string, error) {
	dir := flagDir
	if dir == "" {
		dir = os.Getenv("SOURCE_DIR")
	}
	if dir == "" {
		return "", fmt.Errorf("docqa: source folder required — pass --dir or set SOURCE_DIR")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("docqa: resolving %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("docqa: source folder %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("docqa: %s is not a directory", abs)
	}
	return abs, nil
}

// buildMetrics creates a fresh registry and the Metrics instance for this
// process. The registry is returned so watch mode can expose it over HTTP.
func buildMetrics() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	return reg, metrics.New(reg)
}

// buildChunker constructs the chunker from CHUNK_SIZE / CHUNK_OVERLAP.
func buildChunker() *chunker.Chunker {
	return chunker.New(
		getEnvInt("CHUNK_SIZE", chunker.DefaultMaxSize),
		getEnvInt("CHUNK_OVERLAP", chunker.DefaultOverlap),
	)
}

// buildEmbedder validates the embedding configuration, constructs the
// provider-backed embedder, and wraps it with retry and rate limiting.
func buildEmbedder(log *slog.Logger, m *metrics.Metrics) (rag.Embedder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, err
	}
	return embedder.NewRetrying(emb, embedder.RetryConfig{
		MaxRetries: getEnvInt("EMBEDDING_MAX_RETRIES", 0),
		RPS:        getEnvFloat("EMBEDDING_RPS", 0),
	}, m, log)
}

// embeddingDimensions resolves the vector size: explicit override, else the
// default for the configured embedding backend.
func embeddingDimensions() int {
	backend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	return getEnvInt("EMBEDDING_DIMENSIONS", embedder.DefaultDimensions(backend))
}

// buildIndex constructs the configured index backend for the source folder.
func buildIndex(ctx context.Context, sourceDir string) (rag.Index, error) {
	return index.NewFromEnv(ctx, sourceDir, embeddingDimensions())
}

// buildManager wires the full indexing pipeline for the source folder.
// The returned cleanup closes the index.
func buildManager(ctx context.Context, sourceDir string, log *slog.Logger, m *metrics.Metrics) (*indexer.Manager, *docs.Source, func(), error) {
	source, err := docs.NewSource(sourceDir, log)
	if err != nil {
		return nil, nil, nil, err
	}
	emb, err := buildEmbedder(log, m)
	if err != nil {
		return nil, nil, nil, err
	}
	idx, err := buildIndex(ctx, sourceDir)
	if err != nil {
		return nil, nil, nil, err
	}
	mgr, err := indexer.NewManager(source, buildChunker(), emb, idx, &indexer.Config{
		BatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 0),
	}, log, m)
	if err != nil {
		_ = idx.Close()
		return nil, nil, nil, err
	}
	return mgr, source, func() { _ = idx.Close() }, nil
}

// buildEngine constructs the retrieval engine from RETRIEVAL_* env vars.
func buildEngine(emb rag.Embedder, idx rag.Index, m *metrics.Metrics) (*rag.Engine, error) {
	return rag.NewEngine(emb, idx, rag.EngineConfig{
		TopK:          getEnvInt("RETRIEVAL_TOP_K", 0),
		ContextBudget: getEnvInt("RETRIEVAL_CONTEXT_BUDGET", 0),
		MinScore:      float32(getEnvFloat("RETRIEVAL_MIN_SCORE", 0)),
	}, m)
}

// buildHistory opens the Q&A history store. DOCQA_HISTORY_DB overrides the
// default path (~/.docqa/history.db); "disabled" turns history off. Failure
// to open is non-fatal: questions proceed stateless.
func buildHistory(log *slog.Logger) (history.Store, func()) {
	dbPath := os.Getenv("DOCQA_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via DOCQA_HISTORY_DB=disabled")
		return nil, func() {}
	}
	if dbPath == "" {
		var err error
		dbPath, err = history.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}
	hs, err := history.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// buildOrchestrator wires the full answering stack for the source folder:
// embedder, index, retrieval engine, chat model, and history. The returned
// cleanup closes the index and history store.
func buildOrchestrator(ctx context.Context, sourceDir string, log *slog.Logger, m *metrics.Metrics) (*answer.Orchestrator, func(), error) {
	source, err := docs.NewSource(sourceDir, log)
	if err != nil {
		return nil, nil, err
	}
	emb, err := buildEmbedder(log, m)
	if err != nil {
		return nil, nil, err
	}
	idx, err := buildIndex(ctx, sourceDir)
	if err != nil {
		return nil, nil, err
	}
	engine, err := buildEngine(emb, idx, m)
	if err != nil {
		_ = idx.Close()
		return nil, nil, err
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		_ = idx.Close()
		return nil, nil, fmt.Errorf("docqa: failed to initialise model provider: %w", err)
	}

	hist, closeHist := buildHistory(log)

	orch, err := answer.New(&answer.Config{
		Generator:         answer.NewGenerator(chatModel),
		Retriever:         engine,
		Source:            source,
		History:           hist,
		HistoryDepth:      getEnvInt("ANSWER_HISTORY_DEPTH", 0),
		MaxContextTokens:  getEnvInt("ANSWER_MAX_CONTEXT_TOKENS", 0),
		Timeout:           time.Duration(getEnvInt("ANSWER_TIMEOUT_SECONDS", 0)) * time.Second,
		TranslateLanguage: os.Getenv("ANSWER_TRANSLATE_LANGUAGE"),
	})
	if err != nil {
		closeHist()
		_ = idx.Close()
		return nil, nil, err
	}

	cleanup := func() {
		closeHist()
		_ = idx.Close()
	}
	return orch, cleanup, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float64 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
