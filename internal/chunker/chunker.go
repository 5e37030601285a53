// Package chunker splits page text into overlapping bounded segments, the
// unit of embedding and retrieval. Every chunk carries its page number and
// rune offset range so a retrieved chunk can always be traced back to the
// exact location it was cut from.
package chunker

import (
	"crypto/sha256"
	"fmt"
	"unicode"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Default chunking parameters, matching the RecursiveCharacterTextSplitter
// settings the knowledge base was originally tuned with.
const (
	// DefaultMaxSize is the maximum chunk length in runes.
	DefaultMaxSize = 1000

	// DefaultOverlap is the number of runes consecutive chunks share.
	DefaultOverlap = 200
)

// Chunker cuts page text into left-to-right ordered chunks of at most
// maxSize runes, with consecutive chunks on the same page sharing exactly
// overlap runes (bounded by remaining text). It is stateless and safe for
// concurrent use.
type Chunker struct {
	// maxSize is the maximum chunk length in runes.
	maxSize int

	// overlap is the shared run length between consecutive chunks.
	overlap int
}

// New constructs a Chunker, applying defaults for out-of-range parameters.
func New(maxSize, overlap int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize / 5
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}
}

// ChunkPage splits one page into chunks. Splits land on whitespace or
// sentence boundaries where possible, falling back to a hard cut when no
// boundary exists in the tail half of the window. A page shorter than the
// maximum size yields exactly one chunk spanning the whole page; an empty
// page yields none.
func (c *Chunker) ChunkPage(docID string, page int, text string) []rag.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []rag.Chunk
	start := 0
	for start < len(runes) {
		end := start + c.maxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = splitPoint(runes, start, end)
		}

		chunks = append(chunks, rag.Chunk{
			ID:         ChunkID(docID, page, start),
			DocumentID: docID,
			Page:       page,
			Start:      start,
			End:        end,
			Text:       string(runes[start:end]),
		})

		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			// Overlap would stall the scan; advance past the chunk instead.
			next = end
		}
		start = next
	}
	return chunks
}

// ChunkID derives the deterministic identifier for the chunk starting at the
// given rune offset of the given page. Reindexing unchanged content therefore
// yields identical IDs across runs.
func ChunkID(docID string, page, start int) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s#%d#%d", docID, page, start))
	return fmt.Sprintf("%x", h[:16])
}

// splitPoint returns the cut position for a window ending at hardEnd,
// preferring the rune after the last whitespace or sentence terminator in the
// tail half of the window. If the window contains no boundary there, the hard
// cut stands — a single token longer than the window is split mid-word.
func splitPoint(runes []rune, start, hardEnd int) int {
	soft := start + (hardEnd-start)/2
	for i := hardEnd; i > soft; i-- {
		if isBoundary(runes[i-1]) {
			return i
		}
	}
	return hardEnd
}

// isBoundary reports whether r ends a natural split point.
func isBoundary(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '.', '!', '?', ';', '。', '！', '？', '；':
		return true
	}
	return false
}
