// Package docs implements the document source: it enumerates the watched
// folder, exposes each file's identity (path, content hash, modification
// time), and extracts page text through an external extraction collaborator.
// The core never parses PDF or DOCX binary formats itself — extraction is
// delegated through the Extractor boundary.
package docs

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Page is one extracted page of a document. Pages are immutable once
// extracted within a given indexing pass.
type Page struct {
	// Number is the 1-based page number.
	Number int

	// Text is the raw extracted page text.
	Text string
}

// FileRef identifies one file discovered in the watched folder.
type FileRef struct {
	// Path is the absolute path of the file — the document identity.
	Path string

	// Hash is the SHA-256 content hash, used for change detection.
	Hash string

	// ModTime is the file's last modification time.
	ModTime time.Time
}

// Document is a fully loaded file: identity plus its ordered pages.
// Documents are transient values reconstructed per indexing pass; the index
// owns the persisted state.
type Document struct {
	// Path is the absolute path of the file.
	Path string

	// Hash is the SHA-256 content hash.
	Hash string

	// ModTime is the file's last modification time.
	ModTime time.Time

	// Pages holds the extracted pages in order.
	Pages []Page
}

// Extractor converts one file into its page texts. Implementations wrap
// external extraction collaborators (pdftotext, pandoc, a test fake).
type Extractor interface {
	// Extract returns the ordered pages of the file at path.
	Extract(ctx context.Context, path string) ([]Page, error)
}

// Source enumerates and loads documents from a single watched folder.
// It is safe for concurrent reads.
type Source struct {
	// dir is the absolute path of the watched folder.
	dir string

	// extractors maps a lowercase file extension (with dot) to the
	// collaborator that extracts it. Extensions without an entry are ignored.
	extractors map[string]Extractor

	// log receives skip warnings for unreadable files.
	log *slog.Logger
}

// Option customises a Source during construction.
type Option func(*Source)

// WithExtractor registers (or replaces) the extractor for the given
// extension, e.g. ".pdf".
func WithExtractor(ext string, e Extractor) Option {
	return func(s *Source) {
		s.extractors[strings.ToLower(ext)] = e
	}
}

// NewSource constructs a Source over dir. By default `.pdf` and `.docx` are
// handled by the command extractors in this package; tests and embedders of
// the core override them with WithExtractor.
func NewSource(dir string, log *slog.Logger, opts ...Option) (*Source, error) {
	if dir == "" {
		return nil, fmt.Errorf("docs: source directory must not be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("docs: resolving %s: %w", dir, err)
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Source{
		dir: abs,
		extractors: map[string]Extractor{
			".pdf":  NewPDFExtractor(),
			".docx": NewDocxExtractor(),
		},
		log: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the absolute path of the watched folder.
func (s *Source) Dir() string {
	return s.dir
}

// Supported reports whether the file would be picked up by a scan.
func (s *Source) Supported(path string) bool {
	_, ok := s.extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scan enumerates the supported files currently in the folder, sorted by
// path for deterministic diffing. Unsupported extensions are ignored;
// unreadable files are logged and skipped, never fatal to the scan.
func (s *Source) Scan(ctx context.Context) ([]FileRef, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("docs: reading %s: %w", s.dir, err)
	}

	var refs []FileRef
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("docs: scan cancelled: %w", err)
		}
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if !s.Supported(path) {
			continue
		}
		ref, err := s.stat(path)
		if err != nil {
			s.log.Warn("docs: skipping unreadable file",
				slog.String("path", path),
				slog.Any("error", err),
			)
			continue
		}
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}

// Load hashes the file and extracts its pages through the registered
// collaborator. The returned Document is a transient snapshot.
func (s *Source) Load(ctx context.Context, path string) (*Document, error) {
	if !s.Supported(path) {
		return nil, fmt.Errorf("docs: unsupported file type %q", filepath.Ext(path))
	}
	ref, err := s.stat(path)
	if err != nil {
		return nil, fmt.Errorf("docs: reading %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	pages, err := s.extractors[ext].Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("docs: extracting %s: %w", path, err)
	}
	return &Document{
		Path:    ref.Path,
		Hash:    ref.Hash,
		ModTime: ref.ModTime,
		Pages:   pages,
	}, nil
}

// stat hashes the file contents and captures its modification time.
func (s *Source) stat(path string) (FileRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileRef{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileRef{}, err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return FileRef{}, err
	}

	return FileRef{
		Path:    path,
		Hash:    fmt.Sprintf("%x", h.Sum(nil)),
		ModTime: info.ModTime(),
	}, nil
}
