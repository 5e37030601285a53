package chunker

import (
	"strings"
	"testing"
)

func Test_ChunkPage_Empty(t *testing.T) {
	t.Parallel()
	c := New(100, 20)
	if got := c.ChunkPage("doc", 1, ""); got != nil {
		t.Errorf("empty page: want nil, got %d chunks", len(got))
	}
}

func Test_ChunkPage_SingleChunk(t *testing.T) {
	t.Parallel()
	c := New(100, 20)
	text := "short page text"
	chunks := c.ChunkPage("doc", 3, text)
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	ch := chunks[0]
	if ch.Text != text {
		t.Errorf("chunk text = %q, want %q", ch.Text, text)
	}
	if ch.Page != 3 || ch.Start != 0 || ch.End != len([]rune(text)) {
		t.Errorf("chunk span = (page %d, %d..%d), want (page 3, 0..%d)",
			ch.Page, ch.Start, ch.End, len([]rune(text)))
	}
}

func Test_ChunkPage_CoversAllText(t *testing.T) {
	t.Parallel()
	c := New(50, 10)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)
	runes := []rune(text)

	chunks := c.ChunkPage("doc", 1, text)
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}

	// Every rune of the page must be covered by at least one chunk, with
	// chunks ordered left to right.
	if chunks[0].Start != 0 {
		t.Errorf("first chunk starts at %d, want 0", chunks[0].Start)
	}
	if last := chunks[len(chunks)-1]; last.End != len(runes) {
		t.Errorf("last chunk ends at %d, want %d", last.End, len(runes))
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start > chunks[i-1].End {
			t.Errorf("gap between chunk %d (ends %d) and chunk %d (starts %d)",
				i-1, chunks[i-1].End, i, chunks[i].Start)
		}
		if chunks[i].Start <= chunks[i-1].Start {
			t.Errorf("chunk %d does not advance: start %d after start %d",
				i, chunks[i].Start, chunks[i-1].Start)
		}
	}
	for _, ch := range chunks {
		if got := string(runes[ch.Start:ch.End]); got != ch.Text {
			t.Errorf("chunk text does not match its offsets: %q vs %q", ch.Text, got)
		}
		if n := len([]rune(ch.Text)); n > 50 {
			t.Errorf("chunk length %d exceeds max 50", n)
		}
	}
}

func Test_ChunkPage_Overlap(t *testing.T) {
	t.Parallel()
	c := New(40, 10)
	// No boundaries anywhere, so every cut is a hard cut at exactly maxSize
	// and every step back is exactly the configured overlap.
	text := strings.Repeat("x", 200)
	chunks := c.ChunkPage("doc", 1, text)
	for i := 1; i < len(chunks); i++ {
		shared := chunks[i-1].End - chunks[i].Start
		if chunks[i].End < len([]rune(text)) && shared != 10 {
			t.Errorf("chunks %d/%d share %d runes, want 10", i-1, i, shared)
		}
	}
}

func Test_ChunkPage_Deterministic(t *testing.T) {
	t.Parallel()
	c := New(60, 15)
	text := strings.Repeat("alpha beta gamma delta. ", 15)
	a := c.ChunkPage("doc", 2, text)
	b := c.ChunkPage("doc", 2, text)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs across runs", i)
		}
	}
}

func Test_ChunkPage_MultiByteRunes(t *testing.T) {
	t.Parallel()
	c := New(10, 2)
	// CJK text with sentence terminators; offsets must count runes, not bytes.
	text := strings.Repeat("這是一句測試。", 5)
	chunks := c.ChunkPage("doc", 1, text)
	runes := []rune(text)
	for _, ch := range chunks {
		if got := string(runes[ch.Start:ch.End]); got != ch.Text {
			t.Errorf("offsets are not rune-based: %q vs %q", ch.Text, got)
		}
	}
}

func Test_ChunkID_Stable(t *testing.T) {
	t.Parallel()
	a := ChunkID("/docs/manual.pdf", 4, 800)
	b := ChunkID("/docs/manual.pdf", 4, 800)
	if a != b {
		t.Errorf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if c := ChunkID("/docs/manual.pdf", 4, 801); c == a {
		t.Errorf("different offsets produced identical ID %s", a)
	}
	if len(a) != 32 {
		t.Errorf("ID length = %d, want 32", len(a))
	}
}

func Test_New_Defaults(t *testing.T) {
	t.Parallel()
	c := New(0, -1)
	if c.maxSize != DefaultMaxSize {
		t.Errorf("maxSize = %d, want %d", c.maxSize, DefaultMaxSize)
	}
	if c.overlap != 0 {
		t.Errorf("overlap = %d, want 0", c.overlap)
	}
	// Overlap at or above the window collapses to a fifth of it.
	c = New(100, 100)
	if c.overlap != 20 {
		t.Errorf("overlap = %d, want 20", c.overlap)
	}
}
