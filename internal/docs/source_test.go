package docs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// fixedExtractor returns canned pages and records the last path it was
// asked to extract.
type fixedExtractor struct {
	pages []Page
	err   error
	last  string
}

func (e *fixedExtractor) Extract(_ context.Context, path string) ([]Page, error) {
	e.last = path
	if e.err != nil {
		return nil, e.err
	}
	return e.pages, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func Test_Scan_SupportedFilesSorted(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "zebra.pdf", "z")
	writeFile(t, dir, "alpha.docx", "a")
	writeFile(t, dir, "middle.PDF", "m") // extension match is case-insensitive
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "data.csv", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	s, err := NewSource(dir, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	refs, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("scanned %d files, want 3: %v", len(refs), refs)
	}
	want := []string{"alpha.docx", "middle.PDF", "zebra.pdf"}
	for i, ref := range refs {
		if filepath.Base(ref.Path) != want[i] {
			t.Errorf("refs[%d] = %s, want %s", i, filepath.Base(ref.Path), want[i])
		}
		if ref.Hash == "" {
			t.Errorf("refs[%d] has no hash", i)
		}
		if ref.ModTime.IsZero() {
			t.Errorf("refs[%d] has no mod time", i)
		}
	}
}

func Test_Scan_HashTracksContent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "a.pdf", "version one")

	s, err := NewSource(dir, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	first, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	again, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if first[0].Hash != again[0].Hash {
		t.Error("hash changed without a content change")
	}

	writeFile(t, dir, "a.pdf", "version two")
	changed, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("third Scan: %v", err)
	}
	if changed[0].Hash == first[0].Hash {
		t.Error("hash did not change with the content")
	}
}

func Test_Scan_Cancelled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "a.pdf", "x")

	s, err := NewSource(dir, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan on cancelled context: %v, want context.Canceled", err)
	}
}

func Test_Scan_MissingDir(t *testing.T) {
	t.Parallel()
	s, err := NewSource(filepath.Join(t.TempDir(), "does-not-exist"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if _, err := s.Scan(context.Background()); err == nil {
		t.Error("Scan over a missing directory succeeded")
	}
}

func Test_Load(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "manual.pdf", "binary-ish content")

	ext := &fixedExtractor{pages: []Page{
		{Number: 1, Text: "first page"},
		{Number: 2, Text: "second page"},
	}}
	s, err := NewSource(dir, slog.New(slog.DiscardHandler), WithExtractor(".pdf", ext))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	doc, err := s.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Path != path {
		t.Errorf("doc path = %s, want %s", doc.Path, path)
	}
	if doc.Hash == "" {
		t.Error("doc has no hash")
	}
	if len(doc.Pages) != 2 || doc.Pages[1].Text != "second page" {
		t.Errorf("pages = %+v", doc.Pages)
	}
	if ext.last != path {
		t.Errorf("extractor asked for %s, want %s", ext.last, path)
	}
}

func Test_Load_UnsupportedExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "plain text")

	s, err := NewSource(dir, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if _, err := s.Load(context.Background(), path); err == nil {
		t.Error("Load of unsupported extension succeeded")
	}
}

func Test_Load_ExtractionError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.pdf", "x")

	wantErr := errors.New("malformed file")
	s, err := NewSource(dir, slog.New(slog.DiscardHandler),
		WithExtractor(".pdf", &fixedExtractor{err: wantErr}))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if _, err := s.Load(context.Background(), path); !errors.Is(err, wantErr) {
		t.Errorf("Load error = %v, want wrapped %v", err, wantErr)
	}
}

func Test_Supported(t *testing.T) {
	t.Parallel()
	s, err := NewSource(t.TempDir(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	cases := map[string]bool{
		"/a/b.pdf":  true,
		"/a/b.PDF":  true,
		"/a/b.docx": true,
		"/a/b.DOCX": true,
		"/a/b.txt":  false,
		"/a/b.doc":  false,
		"/a/b":      false,
	}
	for path, want := range cases {
		if got := s.Supported(path); got != want {
			t.Errorf("Supported(%q) = %v, want %v", path, got, want)
		}
	}
}

func Test_NewSource_EmptyDir(t *testing.T) {
	t.Parallel()
	if _, err := NewSource("", slog.New(slog.DiscardHandler)); err == nil {
		t.Error("empty directory accepted")
	}
}
