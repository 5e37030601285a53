package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

func openTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func testChunk(id, docID string, page int) rag.Chunk {
	return rag.Chunk{ID: id, DocumentID: docID, Page: page, Start: 0, End: 10, Text: "chunk " + id}
}

func Test_SQLite_ApplyAndSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	chunks := []rag.Chunk{
		testChunk("c1", "/docs/a.pdf", 1),
		testChunk("c2", "/docs/a.pdf", 2),
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
	}
	if err := idx.ApplyDocument(ctx, "/docs/a.pdf", "hash-a", chunks, vectors); err != nil {
		t.Fatalf("ApplyDocument: %v", err)
	}

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("want 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.ID != "c1" {
		t.Errorf("top hit = %s, want c1", hits[0].Chunk.ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("hits not sorted by score: %v then %v", hits[0].Score, hits[1].Score)
	}
	if hits[0].Chunk.Text != "chunk c1" || hits[0].Chunk.Page != 1 {
		t.Errorf("chunk round trip lost fields: %+v", hits[0].Chunk)
	}
}

func Test_SQLite_Search_TieBreakByChunkID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	// Identical vectors, identical scores: order must fall back to chunk ID.
	chunks := []rag.Chunk{
		testChunk("zz", "/docs/a.pdf", 1),
		testChunk("aa", "/docs/a.pdf", 2),
	}
	vectors := [][]float32{{1, 0}, {1, 0}}
	if err := idx.ApplyDocument(ctx, "/docs/a.pdf", "h", chunks, vectors); err != nil {
		t.Fatalf("ApplyDocument: %v", err)
	}

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits[0].Chunk.ID != "aa" || hits[1].Chunk.ID != "zz" {
		t.Errorf("tie not broken by chunk ID: got %s, %s", hits[0].Chunk.ID, hits[1].Chunk.ID)
	}
}

func Test_SQLite_Search_TopKAndEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	hits, err := idx.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search on empty index: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("empty index returned %d hits", len(hits))
	}

	chunks := []rag.Chunk{
		testChunk("c1", "/docs/a.pdf", 1),
		testChunk("c2", "/docs/a.pdf", 1),
		testChunk("c3", "/docs/a.pdf", 1),
	}
	vectors := [][]float32{{1, 0}, {0.5, 0.5}, {0, 1}}
	if err := idx.ApplyDocument(ctx, "/docs/a.pdf", "h", chunks, vectors); err != nil {
		t.Fatalf("ApplyDocument: %v", err)
	}

	hits, err = idx.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("topK=2 returned %d hits", len(hits))
	}

	hits, err = idx.Search(ctx, []float32{1, 0}, 0)
	if err != nil {
		t.Fatalf("Search topK=0: %v", err)
	}
	if hits != nil {
		t.Errorf("topK=0 returned %d hits, want none", len(hits))
	}
}

func Test_SQLite_Search_DimensionMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	chunks := []rag.Chunk{testChunk("c1", "/docs/a.pdf", 1)}
	if err := idx.ApplyDocument(ctx, "/docs/a.pdf", "h", chunks, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("ApplyDocument: %v", err)
	}

	_, err := idx.Search(ctx, []float32{1, 0}, 1)
	if err == nil {
		t.Fatal("want error for dimension mismatch, got nil")
	}
	if !errors.Is(err, ErrCorrupted) {
		t.Errorf("mismatch error not marked corrupted: %v", err)
	}
}

func Test_SQLite_ApplyDocument_ReplacesPriorChunks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	first := []rag.Chunk{testChunk("old1", "/docs/a.pdf", 1), testChunk("old2", "/docs/a.pdf", 2)}
	if err := idx.ApplyDocument(ctx, "/docs/a.pdf", "hash-1", first, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("first ApplyDocument: %v", err)
	}

	second := []rag.Chunk{testChunk("new1", "/docs/a.pdf", 1)}
	if err := idx.ApplyDocument(ctx, "/docs/a.pdf", "hash-2", second, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("second ApplyDocument: %v", err)
	}

	manifest, err := idx.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	entry, ok := manifest["/docs/a.pdf"]
	if !ok {
		t.Fatal("document missing from manifest")
	}
	if entry.Hash != "hash-2" {
		t.Errorf("manifest hash = %s, want hash-2", entry.Hash)
	}
	if len(entry.ChunkIDs) != 1 || entry.ChunkIDs[0] != "new1" {
		t.Errorf("manifest chunk IDs = %v, want [new1]", entry.ChunkIDs)
	}

	hits, err := idx.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		if h.Chunk.ID == "old1" || h.Chunk.ID == "old2" {
			t.Errorf("stale chunk %s survived re-apply", h.Chunk.ID)
		}
	}
}

func Test_SQLite_ApplyDocument_LengthMismatch(t *testing.T) {
	t.Parallel()
	idx := openTestIndex(t)
	chunks := []rag.Chunk{testChunk("c1", "/docs/a.pdf", 1)}
	if err := idx.ApplyDocument(context.Background(), "/docs/a.pdf", "h", chunks, nil); err == nil {
		t.Error("want error when chunk and vector counts differ, got nil")
	}
}

func Test_SQLite_DeleteDocument(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	if err := idx.ApplyDocument(ctx, "/docs/a.pdf", "ha",
		[]rag.Chunk{testChunk("ca", "/docs/a.pdf", 1)}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("ApplyDocument a: %v", err)
	}
	if err := idx.ApplyDocument(ctx, "/docs/b.pdf", "hb",
		[]rag.Chunk{testChunk("cb", "/docs/b.pdf", 1)}, [][]float32{{0, 1}}); err != nil {
		t.Fatalf("ApplyDocument b: %v", err)
	}

	if err := idx.DeleteDocument(ctx, "/docs/a.pdf"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	manifest, err := idx.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if _, ok := manifest["/docs/a.pdf"]; ok {
		t.Error("deleted document still in manifest")
	}
	if _, ok := manifest["/docs/b.pdf"]; !ok {
		t.Error("unrelated document vanished from manifest")
	}

	// Chunks must cascade with the manifest row.
	hits, err := idx.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		if h.Chunk.DocumentID == "/docs/a.pdf" {
			t.Errorf("orphaned chunk %s after delete", h.Chunk.ID)
		}
	}

	// Deleting an unknown document is a no-op.
	if err := idx.DeleteDocument(ctx, "/docs/never-indexed.pdf"); err != nil {
		t.Errorf("DeleteDocument unknown: %v", err)
	}
}

func Test_SQLite_Clear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	if err := idx.ApplyDocument(ctx, "/docs/a.pdf", "h",
		[]rag.Chunk{testChunk("c1", "/docs/a.pdf", 1)}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("ApplyDocument: %v", err)
	}
	if err := idx.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	manifest, err := idx.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if len(manifest) != 0 {
		t.Errorf("manifest has %d entries after clear", len(manifest))
	}
}

func Test_SQLite_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.ApplyDocument(ctx, "/docs/a.pdf", "hash-a",
		[]rag.Chunk{testChunk("c1", "/docs/a.pdf", 1)}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("ApplyDocument: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	manifest, err := reopened.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest after reopen: %v", err)
	}
	if got := manifest["/docs/a.pdf"].Hash; got != "hash-a" {
		t.Errorf("hash after reopen = %q, want hash-a", got)
	}
	hits, err := reopened.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search after reopen: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != "c1" {
		t.Errorf("search after reopen = %+v, want chunk c1", hits)
	}
}

func Test_SQLite_NormalisesVectorsOnInsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	// A scaled-up vector must score identically to its unit version.
	if err := idx.ApplyDocument(ctx, "/docs/a.pdf", "h",
		[]rag.Chunk{testChunk("c1", "/docs/a.pdf", 1)}, [][]float32{{10, 0}}); err != nil {
		t.Fatalf("ApplyDocument: %v", err)
	}

	hits, err := idx.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("want 1 hit, got %d", len(hits))
	}
	if diff := hits[0].Score - 1; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("score = %v, want 1 for parallel unit vectors", hits[0].Score)
	}
}
