package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/metrics"
)

// EngineConfig holds the retrieval tuning parameters. All of them are
// configuration-level knobs — see the config package for their sources.
type EngineConfig struct {
	// TopK is the number of candidates requested from the index when the
	// caller passes 0.
	TopK int

	// ContextBudget is the maximum total character length of the assembled
	// context. Lowest-scoring chunks are dropped first when over budget.
	ContextBudget int

	// MinScore is the relevance floor: hits scoring below it are discarded.
	// Zero means no floor.
	MinScore float32
}

// Engine is the retrieval engine: it embeds the query, searches the index,
// and assembles a budgeted context string with an aligned citation list.
type Engine struct {
	// embedder converts the query text to a dense vector.
	embedder Embedder

	// index performs the vector similarity search.
	index Index

	// cfg holds the resolved retrieval configuration.
	cfg EngineConfig

	// metrics records retrieval counters; may be nil.
	metrics *metrics.Metrics
}

// NewEngine constructs an Engine from the given Embedder and Index.
func NewEngine(embedder Embedder, index Index, cfg EngineConfig, m *metrics.Metrics) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 4000
	}
	return &Engine{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		metrics:  m,
	}, nil
}

// Retrieve embeds the query, searches the index, and returns a QueryResult
// whose context and citations cover exactly the chunks that fit the budget.
// A blank query never reaches the embedder: it yields a NoGrounding result
// so callers get deterministic behaviour instead of a backend-dependent
// low-relevance match.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) (*QueryResult, error) {
	start := time.Now()
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	if strings.TrimSpace(query) == "" {
		return &QueryResult{}, nil
	}

	embeddings, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	hits, err := e.index.Search(ctx, Normalize(embeddings[0]), topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	hits = e.applyFloor(hits)
	hits = e.applyBudget(hits)

	result := &QueryResult{
		Hits:      hits,
		Context:   assembleContext(hits),
		Citations: citations(hits),
	}
	if e.metrics != nil {
		e.metrics.ObserveSearch(time.Since(start), len(result.Hits))
	}
	return result, nil
}

// applyFloor drops hits below the configured relevance floor. Hits arrive
// ranked, so the first sub-floor hit ends the slice.
func (e *Engine) applyFloor(hits []Hit) []Hit {
	if e.cfg.MinScore == 0 {
		return hits
	}
	for i, h := range hits {
		if h.Score < e.cfg.MinScore {
			return hits[:i]
		}
	}
	return hits
}

// applyBudget trims the ranked hits so their total character length fits the
// context budget, dropping lowest-scoring hits first. A citation only exists
// for a chunk whose text survives this cut.
func (e *Engine) applyBudget(hits []Hit) []Hit {
	total := 0
	for i, h := range hits {
		total += len(h.Chunk.Text)
		if i > 0 {
			total += len(contextSeparator)
		}
		if total > e.cfg.ContextBudget {
			return hits[:i]
		}
	}
	return hits
}

// contextSeparator joins chunk texts in the assembled context.
const contextSeparator = "\n\n---\n\n"

// assembleContext concatenates the included chunk texts in rank order.
func assembleContext(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteString(contextSeparator)
		}
		sb.WriteString(h.Chunk.Text)
	}
	return sb.String()
}

// citations derives the deduplicated (document, page) list from the included
// hits, ordered by first appearance in the ranked sequence rather than by raw
// score, so the list reads in a stable, human-friendly order.
func citations(hits []Hit) []Citation {
	seen := make(map[Citation]struct{}, len(hits))
	var out []Citation
	for _, h := range hits {
		c := Citation{Document: h.Chunk.DocumentID, Page: h.Chunk.Page}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
