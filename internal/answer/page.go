package answer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Mode selects what InspectPage does with the page text.
type Mode string

const (
	// ModeRaw returns the extracted page text verbatim, no LLM call.
	ModeRaw Mode = "raw"

	// ModeExplain asks the LLM to explain the page's content.
	ModeExplain Mode = "explain"

	// ModeTranslate asks the LLM to translate the page.
	ModeTranslate Mode = "translate"
)

// ErrPageOutOfRange is returned when the requested page number does not exist
// in the document.
var ErrPageOutOfRange = errors.New("answer: page out of range")

// PageResult is one inspected page. Raw is always populated so callers can
// show the source text next to any transformation of it.
type PageResult struct {
	// Raw is the extracted page text, verbatim.
	Raw string

	// Transformed is the LLM's explanation or translation of the page.
	// Empty in ModeRaw.
	Transformed string
}

// InspectPage loads one page of a document and returns its raw text plus,
// for ModeExplain and ModeTranslate, the transformed text. Page numbers are
// 1-based. language applies to ModeTranslate only; empty means the
// configured default.
func (o *Orchestrator) InspectPage(ctx context.Context, path string, page int, mode Mode, language string) (*PageResult, error) {
	doc, err := o.source.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("answer: loading %s: %w", path, err)
	}
	if page < 1 || page > len(doc.Pages) {
		return nil, fmt.Errorf("answer: %s has %d pages, requested page %d: %w",
			filepath.Base(path), len(doc.Pages), page, ErrPageOutOfRange)
	}
	text := doc.Pages[page-1].Text

	var prompt string
	switch mode {
	case ModeRaw:
		return &PageResult{Raw: text}, nil
	case ModeExplain:
		prompt = fmt.Sprintf(
			"Explain the content of the following page (page %d of %s) clearly and concisely.\n\n%s",
			page, filepath.Base(path), text)
	case ModeTranslate:
		if language == "" {
			language = o.translateLanguage
		}
		prompt = fmt.Sprintf(
			"Translate the following page (page %d of %s) into %s. Output only the translation.\n\n%s",
			page, filepath.Base(path), language, text)
	default:
		return nil, fmt.Errorf("answer: unknown page mode %q — valid values: raw, explain, translate", mode)
	}

	gctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	msg, err := o.generator.Generate(gctx, []*schema.Message{
		schema.SystemMessage("You help readers understand documents. Work only from the page text you are given."),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return nil, err
	}
	return &PageResult{Raw: text, Transformed: strings.TrimSpace(msg.Content)}, nil
}
