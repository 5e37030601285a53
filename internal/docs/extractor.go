package docs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// pathPlaceholder marks where the file path is substituted into a command
// extractor's argument list.
const pathPlaceholder = "{file}"

// CommandExtractor delegates text extraction to an external command that
// writes plain text to stdout. When paged is true, form feeds in the output
// are treated as page separators — the convention used by pdftotext.
type CommandExtractor struct {
	// name is the command to run (resolved via PATH).
	name string

	// args is the argument list; occurrences of {file} are replaced with the
	// document path.
	args []string

	// paged splits stdout on form feeds into individual pages.
	paged bool
}

// NewCommandExtractor constructs an extractor around an arbitrary external
// command. The command must accept the file path (substituted for {file})
// and print plain text to stdout.
func NewCommandExtractor(name string, args []string, paged bool) *CommandExtractor {
	return &CommandExtractor{name: name, args: args, paged: paged}
}

// NewPDFExtractor returns the default PDF collaborator: poppler's pdftotext,
// which separates pages with form feeds.
func NewPDFExtractor() *CommandExtractor {
	return NewCommandExtractor("pdftotext", []string{pathPlaceholder, "-"}, true)
}

// NewDocxExtractor returns the default DOCX collaborator: pandoc plain-text
// conversion. DOCX has no page structure before layout, so the whole document
// is exposed as a single page.
func NewDocxExtractor() *CommandExtractor {
	return NewCommandExtractor("pandoc", []string{"-t", "plain", pathPlaceholder}, false)
}

// Extract runs the command and converts its stdout into pages.
func (e *CommandExtractor) Extract(ctx context.Context, path string) ([]Page, error) {
	args := make([]string, len(e.args))
	for i, a := range e.args {
		args[i] = strings.ReplaceAll(a, pathPlaceholder, path)
	}

	cmd := exec.CommandContext(ctx, e.name, args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("docs: %s failed: %s", e.name, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("docs: running %s: %w", e.name, err)
	}

	return splitPages(string(out), e.paged), nil
}

// splitPages converts extractor output into 1-based pages. Non-paged output
// becomes a single page. A trailing empty segment after the final form feed
// is discarded, but interior blank pages are kept so page numbers line up
// with the source document.
func splitPages(text string, paged bool) []Page {
	if !paged {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []Page{{Number: 1, Text: text}}
	}

	parts := strings.Split(text, "\f")
	if n := len(parts); n > 0 && strings.TrimSpace(parts[n-1]) == "" {
		parts = parts[:n-1]
	}

	pages := make([]Page, 0, len(parts))
	for i, p := range parts {
		pages = append(pages, Page{Number: i + 1, Text: p})
	}
	return pages
}
