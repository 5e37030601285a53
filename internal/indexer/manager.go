// Package indexer implements the incremental indexing pipeline. It scans the
// source folder, diffs the findings against the index manifest, and applies
// the changes one document at a time: extract → chunk → embed → upsert.
// The pipeline is invoked by the `docqa reindex` CLI command and by watch mode.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/docs"
	"github.com/54b3r/docqa-go/internal/metrics"
	"github.com/54b3r/docqa-go/internal/rag"
)

// ErrReindexInProgress is returned when Reindex is called while another
// reindex run holds the pipeline. Callers should retry after the current run
// finishes rather than queue.
var ErrReindexInProgress = errors.New("indexer: reindex already in progress")

// State describes what the pipeline is currently doing.
type State int32

const (
	// StateIdle means no reindex run is active.
	StateIdle State = iota

	// StateScanning means the source folder is being enumerated and hashed.
	StateScanning

	// StateDiffing means the scan is being compared against the manifest.
	StateDiffing

	// StateApplying means changed documents are being extracted, embedded,
	// and written to the index.
	StateApplying
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDiffing:
		return "diffing"
	case StateApplying:
		return "applying"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds the configuration for the indexing pipeline.
type Config struct {
	// BatchSize is the maximum number of chunks sent to the embedder in one
	// call. Defaults to 32 if zero.
	BatchSize int
}

// DocumentFailure records a document that could not be indexed during a run.
type DocumentFailure struct {
	// Path is the document path, which doubles as the document ID.
	Path string

	// Err is the error that stopped this document.
	Err error
}

// Report summarises one reindex run.
type Report struct {
	// Indexed is the number of documents written to the index (new or changed).
	Indexed int

	// IndexedPaths lists the documents written during this run, in apply
	// order.
	IndexedPaths []string

	// Removed is the number of documents deleted because their file is gone.
	Removed int

	// Unchanged is the number of documents skipped because their hash matched
	// the manifest.
	Unchanged int

	// Failures lists documents that errored; the run continued past them.
	Failures []DocumentFailure

	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// Manager owns the reindex pipeline. At most one run is active at a time;
// concurrent Reindex calls are rejected with ErrReindexInProgress.
type Manager struct {
	// source scans and loads documents from the watched folder.
	source *docs.Source

	// chunker splits page text into overlapping chunks.
	chunker *chunker.Chunker

	// embedder converts chunk text into dense vectors.
	embedder rag.Embedder

	// index persists chunks, vectors, and the manifest.
	index rag.Index

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// log is the structured logger for pipeline progress.
	log *slog.Logger

	// metrics records pipeline counters and timings.
	metrics *metrics.Metrics

	// mu serialises reindex runs.
	mu sync.Mutex

	// state is the current pipeline state, readable without the lock.
	state atomic.Int32
}

// NewManager constructs a Manager from the provided dependencies and config.
func NewManager(source *docs.Source, ch *chunker.Chunker, embedder rag.Embedder, index rag.Index, cfg *Config, log *slog.Logger, m *metrics.Metrics) (*Manager, error) {
	if source == nil {
		return nil, fmt.Errorf("indexer: source must not be nil")
	}
	if ch == nil {
		return nil, fmt.Errorf("indexer: chunker must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("indexer: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("indexer: index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		source:   source,
		chunker:  ch,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}, nil
}

// State returns the pipeline's current state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Reindex runs one incremental indexing pass. With force set, the index is
// cleared first so every document is re-embedded from scratch.
//
// A failing document is recorded in the report and the run moves on; only
// scan errors, manifest errors, and context cancellation abort the run.
// Cancellation is honoured between documents and between embedding batches,
// never inside a document's apply, so the index stays consistent.
func (m *Manager) Reindex(ctx context.Context, force bool) (*Report, error) {
	if !m.mu.TryLock() {
		return nil, ErrReindexInProgress
	}
	defer m.mu.Unlock()
	defer m.state.Store(int32(StateIdle))

	start := time.Now()
	report := &Report{}

	if force {
		m.log.Info("clearing index before full rebuild")
		if err := m.index.Clear(ctx); err != nil {
			return nil, fmt.Errorf("indexer: clear before force reindex: %w", err)
		}
	}

	m.state.Store(int32(StateScanning))
	files, err := m.source.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexer: scan: %w", err)
	}

	m.state.Store(int32(StateDiffing))
	manifest, err := m.index.Manifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexer: reading manifest: %w", err)
	}

	toApply, removed, unchanged := diff(files, manifest)
	report.Unchanged = unchanged
	m.log.Info("reindex plan",
		slog.Int("scanned", len(files)),
		slog.Int("to_apply", len(toApply)),
		slog.Int("to_remove", len(removed)),
		slog.Int("unchanged", unchanged))

	m.state.Store(int32(StateApplying))
	for _, ref := range toApply {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("indexer: reindex cancelled: %w", err)
		}

		if err := m.applyDocument(ctx, ref); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				report.Duration = time.Since(start)
				return report, fmt.Errorf("indexer: reindex cancelled: %w", err)
			}
			m.log.Warn("document failed, continuing",
				slog.String("path", ref.Path),
				slog.String("error", err.Error()))
			m.metrics.ObserveDocument("failed")
			report.Failures = append(report.Failures, DocumentFailure{Path: ref.Path, Err: err})
			continue
		}
		m.metrics.ObserveDocument("indexed")
		report.Indexed++
		report.IndexedPaths = append(report.IndexedPaths, ref.Path)
	}

	for _, docID := range removed {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("indexer: reindex cancelled: %w", err)
		}
		if err := m.index.DeleteDocument(ctx, docID); err != nil {
			m.log.Warn("delete failed, continuing",
				slog.String("path", docID),
				slog.String("error", err.Error()))
			m.metrics.ObserveDocument("failed")
			report.Failures = append(report.Failures, DocumentFailure{Path: docID, Err: err})
			continue
		}
		m.metrics.ObserveDocument("removed")
		report.Removed++
	}

	report.Duration = time.Since(start)
	m.metrics.ObserveReindex(report.Duration)
	m.log.Info("reindex complete",
		slog.Int("indexed", report.Indexed),
		slog.Int("removed", report.Removed),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failed", len(report.Failures)),
		slog.Duration("duration", report.Duration))

	return report, nil
}

// applyDocument loads, chunks, embeds, and upserts one document. The final
// index write is a single apply, so a failure anywhere before it leaves the
// previous version of the document intact.
func (m *Manager) applyDocument(ctx context.Context, ref docs.FileRef) error {
	doc, err := m.source.Load(ctx, ref.Path)
	if err != nil {
		return fmt.Errorf("loading: %w", err)
	}

	var chunks []rag.Chunk
	for _, page := range doc.Pages {
		chunks = append(chunks, m.chunker.ChunkPage(doc.Path, page.Number, page.Text)...)
	}

	vectors, err := m.embedBatched(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	if err := m.index.ApplyDocument(ctx, doc.Path, doc.Hash, chunks, vectors); err != nil {
		return fmt.Errorf("applying: %w", err)
	}

	m.metrics.ObserveChunks(len(chunks))
	m.log.Debug("document indexed",
		slog.String("path", doc.Path),
		slog.Int("pages", len(doc.Pages)),
		slog.Int("chunks", len(chunks)))

	return nil
}

// embedBatched embeds chunk texts in batches of cfg.BatchSize, checking for
// cancellation between batches.
func (m *Manager) embedBatched(ctx context.Context, chunks []rag.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for base := 0; base < len(chunks); base += m.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := base + m.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-base)
		for _, c := range chunks[base:end] {
			texts = append(texts, c.Text)
		}

		batch, err := m.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// diff compares the scanned files against the manifest and splits them into
// documents to (re)index, document IDs to remove, and an unchanged count.
// Scan order is preserved for toApply so runs are deterministic.
func diff(files []docs.FileRef, manifest rag.Manifest) (toApply []docs.FileRef, removed []string, unchanged int) {
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.Path] = true
		if entry, ok := manifest[f.Path]; ok && entry.Hash == f.Hash {
			unchanged++
			continue
		}
		toApply = append(toApply, f)
	}

	for docID := range manifest {
		if !seen[docID] {
			removed = append(removed, docID)
		}
	}
	sort.Strings(removed)

	return toApply, removed, unchanged
}
