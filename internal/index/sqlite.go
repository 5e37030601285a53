package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docqa-go/internal/rag"
)

// SQLiteIndex is a rag.Index backed by a single local SQLite database.
// Chunks, vectors, and the manifest live in the same file; each document is
// applied in one transaction, so a crash can never leave orphaned vectors or
// phantom manifest entries. Similarity search is a brute-force dot product
// over the stored vectors — vectors are normalised on insert, so this equals
// cosine similarity, and a folder of documents stays comfortably within
// brute-force range.
type SQLiteIndex struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultSQLitePath returns the default index location for a source folder:
// <dir>/.docqa/index.db, creating the directory if needed.
func DefaultSQLitePath(sourceDir string) (string, error) {
	dir := filepath.Join(sourceDir, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("index: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "index.db"), nil
}

// OpenSQLite opens (or creates) a SQLiteIndex at the given path and runs the
// schema migration. Use ":memory:" for an in-memory index in tests.
func OpenSQLite(path string) (*SQLiteIndex, error) {
	// WAL gives snapshot reads to concurrent searchers; synchronous=FULL makes
	// a committed document apply durable before the call returns.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	// Single writer connection avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteIndex{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteIndex) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    doc_id     TEXT PRIMARY KEY,  -- absolute file path
    hash       TEXT    NOT NULL,  -- content hash at last index time
    indexed_at INTEGER NOT NULL   -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS chunks (
    id        TEXT PRIMARY KEY,
    doc_id    TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
    page      INTEGER NOT NULL,
    start_off INTEGER NOT NULL,
    end_off   INTEGER NOT NULL,
    content   TEXT NOT NULL,
    embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks (doc_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("index: migrate: %w", err)
	}
	return nil
}

// ApplyDocument atomically replaces the chunk set and manifest entry for one
// document. Prior chunks are removed, the new chunks are inserted with their
// vectors normalised, and the manifest row is written — all in a single
// transaction.
func (s *SQLiteIndex) ApplyDocument(ctx context.Context, docID, hash string, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("index: %d chunks but %d vectors for %s", len(chunks), len(vectors), docID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin apply for %s: %w", docID, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	// Delete-then-reinsert: idempotent when the document was never indexed.
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("index: clearing prior state for %s: %w", docID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (doc_id, hash, indexed_at) VALUES (?, ?, unixepoch())`,
		docID, hash,
	); err != nil {
		return fmt.Errorf("index: writing manifest entry for %s: %w", docID, err)
	}

	const insert = `INSERT INTO chunks (id, doc_id, page, start_off, end_off, content, embedding)
	                VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i, c := range chunks {
		blob := vectorBlob(rag.Normalize(vectors[i]))
		if _, err := tx.ExecContext(ctx, insert, c.ID, docID, c.Page, c.Start, c.End, c.Text, blob); err != nil {
			return fmt.Errorf("index: inserting chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit apply for %s: %w", docID, err)
	}
	return nil
}

// DeleteDocument removes the document's chunks and manifest entry in one
// transaction. Unknown documents are a no-op.
func (s *SQLiteIndex) DeleteDocument(ctx context.Context, docID string) error {
	// chunks cascade from the documents row.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("index: deleting %s: %w", docID, err)
	}
	return nil
}

// Search scans every stored vector and returns the topK highest dot products,
// ties broken by chunk ID ascending. An empty index yields an empty result.
func (s *SQLiteIndex) Search(ctx context.Context, queryVector []float32, topK int) ([]rag.Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc_id, page, start_off, end_off, content, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("index: search query: %w: %w", err, ErrCorrupted)
	}
	defer rows.Close()

	var hits []rag.Hit
	for rows.Next() {
		var c rag.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Page, &c.Start, &c.End, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("index: search scan: %w: %w", err, ErrCorrupted)
		}
		vec, err := vectorFromBlob(blob)
		if err != nil {
			return nil, fmt.Errorf("index: chunk %s: %w: %w", c.ID, err, ErrCorrupted)
		}
		if len(vec) != len(queryVector) {
			return nil, fmt.Errorf("index: chunk %s has dimension %d, query has %d: %w",
				c.ID, len(vec), len(queryVector), ErrCorrupted)
		}
		hits = append(hits, rag.Hit{Chunk: c, Score: rag.Dot(queryVector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: search rows: %w: %w", err, ErrCorrupted)
	}

	rankHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Manifest returns the document → (hash, chunk IDs) snapshot.
func (s *SQLiteIndex) Manifest(ctx context.Context) (rag.Manifest, error) {
	manifest := rag.Manifest{}

	rows, err := s.db.QueryContext(ctx, `SELECT doc_id, hash FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: manifest query: %w: %w", err, ErrCorrupted)
	}
	defer rows.Close()
	for rows.Next() {
		var docID, hash string
		if err := rows.Scan(&docID, &hash); err != nil {
			return nil, fmt.Errorf("index: manifest scan: %w: %w", err, ErrCorrupted)
		}
		manifest[docID] = rag.ManifestEntry{Hash: hash}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: manifest rows: %w: %w", err, ErrCorrupted)
	}
	rows.Close()

	chunkRows, err := s.db.QueryContext(ctx, `SELECT id, doc_id FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("index: manifest chunks query: %w: %w", err, ErrCorrupted)
	}
	defer chunkRows.Close()
	for chunkRows.Next() {
		var id, docID string
		if err := chunkRows.Scan(&id, &docID); err != nil {
			return nil, fmt.Errorf("index: manifest chunks scan: %w: %w", err, ErrCorrupted)
		}
		entry := manifest[docID]
		entry.ChunkIDs = append(entry.ChunkIDs, id)
		manifest[docID] = entry
	}
	if err := chunkRows.Err(); err != nil {
		return nil, fmt.Errorf("index: manifest chunks rows: %w: %w", err, ErrCorrupted)
	}

	return manifest, nil
}

// Clear removes every chunk and manifest entry in one transaction.
func (s *SQLiteIndex) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin clear: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("index: clearing chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("index: clearing documents: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit clear: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("index: close: %w", err)
	}
	return nil
}

// vectorBlob converts a float32 vector to a little-endian byte slice for
// BLOB storage.
func vectorBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// vectorFromBlob converts a little-endian byte slice back to a float32 vector.
func vectorFromBlob(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
