// Package index provides the durable vector index implementations behind the
// rag.Index interface: an embedded SQLite store (the default — the whole
// knowledge base lives in one local file) and a Qdrant-backed store for
// deployments that already run a vector database. Both keep the manifest and
// the chunk vectors in the same store so the per-document apply is atomic.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/54b3r/docqa-go/internal/rag"
)

// rankHits orders hits by score descending, with equal scores broken by
// chunk ID ascending. Both backends rank through it so a query returns the
// same order regardless of the store behind it.
func rankHits(hits []rag.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
}

// ErrCorrupted marks an index read that failed in a way consistent with a
// damaged store. Operations surfacing it should be treated as fatal to the
// request; a forced full reindex rebuilds the store from the source folder.
var ErrCorrupted = errors.New("index: store corrupted — run `docqa reindex --force` to rebuild")

// NewFromEnv constructs the configured index backend.
//
// Environment variables:
//
//	INDEX_BACKEND = sqlite | qdrant   (default: sqlite)
//	INDEX_PATH    = SQLite database path (default: <source dir>/.docqa/index.db)
//	QDRANT_*      = Qdrant connection settings (qdrant backend only)
//
// dims is the embedding dimensionality, required by the qdrant backend for
// collection creation; sqlite stores vectors opaquely and ignores it.
func NewFromEnv(ctx context.Context, sourceDir string, dims int) (rag.Index, error) {
	backend := os.Getenv("INDEX_BACKEND")
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "sqlite":
		path := os.Getenv("INDEX_PATH")
		if path == "" {
			var err error
			path, err = DefaultSQLitePath(sourceDir)
			if err != nil {
				return nil, err
			}
		}
		return OpenSQLite(path)

	case "qdrant":
		return NewQdrant(ctx, &QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "docqa-chunks"),
			VectorSize: uint64(dims),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})

	default:
		return nil, fmt.Errorf("index: unknown backend %q — valid values: sqlite, qdrant", backend)
	}
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
	var i int
	if _, err := fmt.Sscanf(os.Getenv(key), "%d", &i); err == nil && i != 0 {
		return i
	}
	return fallback
}
