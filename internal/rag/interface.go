// Package rag defines the core types and interfaces for the retrieval
// pipeline: chunks, the vector index, the embedding gateway, and the
// retrieval engine. Concrete implementations (SQLite, Qdrant, Ollama, etc.)
// satisfy these interfaces so the orchestration layer never depends on a
// specific backend.
package rag

import (
	"context"
	"math"
)

// Chunk is the atomic indexed unit: a bounded span of one page of one
// document. Its ID is derived deterministically from the document identity,
// page number, and start offset, so re-chunking unchanged content yields the
// same IDs across runs.
type Chunk struct {
	// ID is the deterministic identifier for this chunk.
	ID string

	// DocumentID is the absolute path of the owning document.
	DocumentID string

	// Page is the 1-based page number the chunk was cut from.
	Page int

	// Start is the rune offset of the chunk within the page text (inclusive).
	Start int

	// End is the rune offset of the chunk within the page text (exclusive).
	End int

	// Text is the raw chunk text.
	Text string
}

// Hit is a single ranked search result.
type Hit struct {
	// Chunk is the matched chunk with its full metadata.
	Chunk Chunk

	// Score is the cosine similarity between the query and the chunk
	// embedding. Vectors are normalised on insert, so this is a plain dot
	// product in [-1, 1].
	Score float32
}

// Citation is a (document, page) pointer traceable back to the exact source
// of a retrieved chunk.
type Citation struct {
	// Document is the absolute path of the cited document.
	Document string

	// Page is the 1-based page number within the document.
	Page int
}

// QueryResult is the outcome of one retrieval: the ranked hits that made it
// into the context budget, the assembled context string, and the citation
// list aligned with that context. Every citation corresponds to a chunk whose
// text is actually present in Context.
type QueryResult struct {
	// Hits are the matches included in the context, in descending score
	// order (ties broken by chunk ID ascending).
	Hits []Hit

	// Context is the concatenated text of the included chunks.
	Context string

	// Citations lists (document, page) pairs deduplicated and ordered by
	// first appearance in Hits.
	Citations []Citation
}

// NoGrounding reports whether retrieval found nothing above the relevance
// floor. It is a distinct result variant, not an error: callers should return
// a deterministic "no grounding available" answer instead of generating from
// empty context.
func (q *QueryResult) NoGrounding() bool {
	return len(q.Hits) == 0
}

// ManifestEntry records what is currently indexed for one document.
type ManifestEntry struct {
	// Hash is the content hash of the document when it was last indexed.
	Hash string

	// ChunkIDs is the set of chunk IDs persisted for the document.
	ChunkIDs []string
}

// Manifest maps document identity (absolute path) to its last-indexed state.
// It is the single source of truth for "what has already been embedded".
type Manifest map[string]ManifestEntry

// Embedder is the gateway to the external embedding model. Given a batch of
// texts it returns one fixed-dimension vector per input, same order.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the durable vector store plus its manifest. All mutation happens
// in per-document atomic units: a crash can never leave orphaned vectors or
// phantom manifest entries for a document. Implementations must be safe for
// concurrent reads; writes are serialised by the index manager.
type Index interface {
	// ApplyDocument atomically replaces the chunk set and manifest entry for
	// one document: any prior chunks are removed, the given chunks and
	// vectors (parallel slices) are inserted, and the manifest entry
	// (hash + chunk IDs) is written, all in a single durable commit.
	ApplyDocument(ctx context.Context, docID, hash string, chunks []Chunk, vectors [][]float32) error

	// DeleteDocument removes all chunks and the manifest entry for the
	// document in one atomic unit. Deleting an unknown document is a no-op.
	DeleteDocument(ctx context.Context, docID string) error

	// Search returns at most topK hits ranked by descending similarity,
	// ties broken by chunk ID ascending. An empty index yields an empty
	// result, not an error.
	Search(ctx context.Context, queryVector []float32, topK int) ([]Hit, error)

	// Manifest returns the current manifest snapshot.
	Manifest(ctx context.Context) (Manifest, error)

	// Clear removes every chunk and manifest entry.
	Clear(ctx context.Context) error

	// Close releases any resources held by the index.
	Close() error
}

// Normalize returns v scaled to unit length so that dot-product search is
// equivalent to cosine similarity. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// Dot returns the dot product of two equal-length vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
