package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docqa-go/internal/rag"
)

// pointNamespace seeds deterministic point UUIDs so the same chunk always
// maps to the same Qdrant point across reindex runs.
var pointNamespace = uuid.MustParse("8f1c2a40-5f0e-4f4d-9b6a-2d3c1e7a9b54")

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements rag.Index backed by a Qdrant collection. Every point
// carries its document ID and document hash in the payload, so the manifest is
// derived from the collection itself and a per-document upsert carries its own
// manifest entry.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrant creates a QdrantIndex, ensuring the target collection exists
// (creating it if necessary).
func NewQdrant(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "docqa"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return idx, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("index: qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("index: qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}

	return nil
}

// docFilter matches every point belonging to one document.
func docFilter(docID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("doc_id", docID)},
	}
}

// ApplyDocument replaces the document's points: prior points are removed by a
// doc_id filter, then the new chunks are upserted with normalised vectors.
// Unlike the SQLite backend this is two calls rather than one transaction; the
// manifest lives in the point payloads, so a retry after a crash converges to
// the same state.
func (q *QdrantIndex) ApplyDocument(ctx context.Context, docID, hash string, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("index: qdrant: %d chunks but %d vectors for %s", len(chunks), len(vectors), docID)
	}

	if err := q.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(c.ID)).String()),
			Vectors: qdrant.NewVectors(rag.Normalize(vectors[i])...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id": c.ID,
				"doc_id":   docID,
				"doc_hash": hash,
				"page":     int64(c.Page),
				"start":    int64(c.Start),
				"end":      int64(c.End),
				"content":  c.Text,
			}),
		})
	}

	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("index: qdrant: upsert for %s failed: %w", docID, err)
	}

	return nil
}

// DeleteDocument removes every point belonging to the document.
func (q *QdrantIndex) DeleteDocument(ctx context.Context, docID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: docFilter(docID)},
		},
	})
	if err != nil {
		return fmt.Errorf("index: qdrant: delete for %s failed: %w", docID, err)
	}
	return nil
}

// Search performs a cosine similarity search and returns the topK results.
func (q *QdrantIndex) Search(ctx context.Context, queryVector []float32, topK int) ([]rag.Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	limit := uint64(topK)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant: search failed: %w", err)
	}

	hits := make([]rag.Hit, 0, len(results))
	for _, r := range results {
		c, _, err := chunkFromPayload(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("index: qdrant: point %s: %w: %w", r.Id.GetUuid(), err, ErrCorrupted)
		}
		hits = append(hits, rag.Hit{Chunk: c, Score: r.Score})
	}

	// The server orders equal scores by point ID; re-break ties by chunk ID
	// so results match the SQLite backend.
	rankHits(hits)

	return hits, nil
}

// Manifest pages through the collection and reconstructs the document →
// (hash, chunk IDs) mapping from the point payloads.
func (q *QdrantIndex) Manifest(ctx context.Context) (rag.Manifest, error) {
	manifest := rag.Manifest{}

	limit := uint32(256)
	var offset *qdrant.PointId
	for {
		resp, err := q.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.cfg.Collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("index: qdrant: manifest scroll failed: %w", err)
		}

		for _, p := range resp.GetResult() {
			c, hash, err := chunkFromPayload(p.Payload)
			if err != nil {
				return nil, fmt.Errorf("index: qdrant: point %s: %w: %w", p.Id.GetUuid(), err, ErrCorrupted)
			}
			entry := manifest[c.DocumentID]
			entry.Hash = hash
			entry.ChunkIDs = append(entry.ChunkIDs, c.ID)
			manifest[c.DocumentID] = entry
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	return manifest, nil
}

// Clear drops the collection and recreates it empty.
func (q *QdrantIndex) Clear(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.cfg.Collection); err != nil {
		return fmt.Errorf("index: qdrant: failed to drop collection %q: %w", q.cfg.Collection, err)
	}
	return q.ensureCollection(ctx)
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// chunkFromPayload rebuilds a chunk and its document hash from a point payload.
func chunkFromPayload(payload map[string]*qdrant.Value) (rag.Chunk, string, error) {
	if payload == nil {
		return rag.Chunk{}, "", fmt.Errorf("missing payload")
	}

	var c rag.Chunk
	var hash string
	if v, ok := payload["chunk_id"]; ok {
		c.ID = v.GetStringValue()
	}
	if v, ok := payload["doc_id"]; ok {
		c.DocumentID = v.GetStringValue()
	}
	if v, ok := payload["doc_hash"]; ok {
		hash = v.GetStringValue()
	}
	if v, ok := payload["page"]; ok {
		c.Page = int(v.GetIntegerValue())
	}
	if v, ok := payload["start"]; ok {
		c.Start = int(v.GetIntegerValue())
	}
	if v, ok := payload["end"]; ok {
		c.End = int(v.GetIntegerValue())
	}
	if v, ok := payload["content"]; ok {
		c.Text = v.GetStringValue()
	}
	if c.ID == "" || c.DocumentID == "" {
		return rag.Chunk{}, "", fmt.Errorf("payload missing chunk_id or doc_id")
	}

	return c, hash, nil
}
