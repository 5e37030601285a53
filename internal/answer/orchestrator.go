// Package answer turns retrieval results into grounded natural-language
// answers. The Orchestrator runs the full question flow: retrieve relevant
// chunks, build the prompt with prior history, call the LLM, and return the
// answer with its citations. It never lets the model answer from its own
// knowledge: when retrieval finds nothing, the deterministic no-grounding
// answer is returned without an LLM call.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/docs"
	"github.com/54b3r/docqa-go/internal/history"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// systemPrompt is the base system prompt injected into every question.
// It pins the model to the retrieved excerpts so answers stay grounded.
const systemPrompt = `You are a document assistant. Answer the user's question using ONLY the
provided document excerpts.

Rules:
- If the excerpts do not contain the answer, say you cannot find it in the
  documents. Never guess and never use outside knowledge.
- Be concise and factual. Short paragraphs, no filler.
- When the excerpts disagree, say so and cite both.
- Answer in the language the question was asked in.`

// noGroundingAnswer is returned when retrieval produces no usable context.
const noGroundingAnswer = "I could not find anything relevant to that question in the indexed documents."

// DefaultTranslateLanguage is the target language for page translation when
// none is given.
const DefaultTranslateLanguage = "Traditional Chinese"

// Generator is the narrow LLM surface the orchestrator needs. It is satisfied
// by NewGenerator's adapter over an eino chat model; tests supply fakes.
type Generator interface {
	// Generate produces the assistant message for the given conversation.
	Generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error)
}

// einoGenerator adapts an eino chat model to the Generator interface.
type einoGenerator struct {
	model model.BaseChatModel
}

// NewGenerator wraps an eino chat model as a Generator.
func NewGenerator(m model.BaseChatModel) Generator {
	return &einoGenerator{model: m}
}

func (g *einoGenerator) Generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	msg, err := g.model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("answer: generate: %w", err)
	}
	return msg, nil
}

// Retriever is the retrieval surface the orchestrator needs.
type Retriever interface {
	// Retrieve returns the chunks, assembled context, and citations for a query.
	Retrieve(ctx context.Context, query string, topK int) (*rag.QueryResult, error)
}

// Config holds the dependencies required to construct an Orchestrator.
type Config struct {
	// Generator is the LLM backend used to produce answers.
	Generator Generator

	// Retriever supplies grounded context for each question.
	Retriever Retriever

	// Source loads documents for page inspection.
	Source *docs.Source

	// History is the optional Q&A store used to persist and replay prior
	// turns. If nil, each question is stateless.
	History history.Store

	// HistoryDepth is the number of prior turns (user+assistant pairs) to
	// inject per question. Defaults to 5 if zero.
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// context. History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int

	// Timeout bounds each LLM call. Defaults to 2 minutes if zero.
	Timeout time.Duration

	// TranslateLanguage is the default target language for page translation.
	// Defaults to DefaultTranslateLanguage if empty.
	TranslateLanguage string
}

// Orchestrator runs the question and page-inspection flows.
type Orchestrator struct {
	generator         Generator
	retriever         Retriever
	source            *docs.Source
	history           history.Store
	historyDepth      int
	maxContextTokens  int
	timeout           time.Duration
	translateLanguage string
}

// New constructs an Orchestrator from the provided Config.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("answer: Generator must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("answer: Retriever must not be nil")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("answer: Source must not be nil")
	}

	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 5
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	lang := cfg.TranslateLanguage
	if lang == "" {
		lang = DefaultTranslateLanguage
	}

	return &Orchestrator{
		generator:         cfg.Generator,
		retriever:         cfg.Retriever,
		source:            cfg.Source,
		history:           cfg.History,
		historyDepth:      depth,
		maxContextTokens:  maxCtx,
		timeout:           timeout,
		translateLanguage: lang,
	}, nil
}

// Result is one answered question.
type Result struct {
	// Answer is the model's response text, or the no-grounding answer.
	Answer string

	// Citations lists the documents and pages the answer is grounded on,
	// in first-appearance order. Empty when NoGrounding is set.
	Citations []rag.Citation

	// NoGrounding is set when retrieval found nothing relevant and no LLM
	// call was made.
	NoGrounding bool
}

// CitationLine renders the citations as "(file, Page N) (file, Page M)".
func (r *Result) CitationLine() string {
	if len(r.Citations) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.Citations))
	for _, c := range r.Citations {
		parts = append(parts, fmt.Sprintf("(%s, Page %d)", filepath.Base(c.Document), c.Page))
	}
	return strings.Join(parts, " ")
}

// Ask answers a question against the indexed documents. Retrieval failure is
// fatal; history load and persist failures are logged and the question
// proceeds without them.
func (o *Orchestrator) Ask(ctx context.Context, folder, question string) (*Result, error) {
	qr, err := o.retriever.Retrieve(ctx, question, 0)
	if err != nil {
		return nil, fmt.Errorf("answer: retrieval failed: %w", err)
	}

	if qr.NoGrounding() {
		res := &Result{Answer: noGroundingAnswer, NoGrounding: true}
		o.persistTurn(ctx, folder, question, res.Answer)
		return res, nil
	}

	messages := o.buildMessages(ctx, folder, question, qr)

	gctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	msg, err := o.generator.Generate(gctx, messages)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Answer:    strings.TrimSpace(msg.Content),
		Citations: qr.Citations,
	}
	o.persistTurn(ctx, folder, question, res.Answer)
	return res, nil
}

// buildMessages constructs the message slice: system prompt, trimmed history,
// retrieved excerpts, then the user's question.
func (o *Orchestrator) buildMessages(ctx context.Context, folder, question string, qr *rag.QueryResult) []*schema.Message {
	var historyMsgs []*schema.Message
	if o.history != nil {
		prior, err := o.history.Recent(ctx, folder, o.historyDepth*2)
		if err != nil {
			logging.FromContext(ctx).Warn("history: failed to load prior turns", slog.Any("error", err))
		} else {
			for _, m := range prior {
				switch m.Role {
				case history.RoleUser:
					historyMsgs = append(historyMsgs, schema.UserMessage(m.Content))
				case history.RoleAssistant:
					historyMsgs = append(historyMsgs, schema.AssistantMessage(m.Content, nil))
				}
			}
		}
	}

	fixed := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.SystemMessage(buildExcerpts(qr)),
		schema.UserMessage(question),
	}

	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(fixed, historyMsgs, o.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history turns to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", o.maxContextTokens),
		)
	}

	result := make([]*schema.Message, 0, 2+len(historyMsgs)+1)
	result = append(result, fixed[0])
	result = append(result, historyMsgs...)
	result = append(result, fixed[1], fixed[2])
	return result
}

// buildExcerpts formats the retrieved chunks into a system message, one
// excerpt per chunk with its source file and page.
func buildExcerpts(qr *rag.QueryResult) string {
	var sb strings.Builder
	sb.WriteString("## Document excerpts\n\n")
	sb.WriteString("Answer the question using only the excerpts below.\n\n")
	for i, hit := range qr.Hits {
		fmt.Fprintf(&sb, "### Excerpt %d: %s (Page %d)\n%s\n\n",
			i+1, filepath.Base(hit.Chunk.DocumentID), hit.Chunk.Page, hit.Chunk.Text)
	}
	return sb.String()
}

// persistTurn writes the user question and assistant answer to the history
// store. Failures are logged, never fatal.
func (o *Orchestrator) persistTurn(ctx context.Context, folder, question, answer string) {
	if o.history == nil {
		return
	}
	if err := o.history.Append(ctx, folder, history.RoleUser, question); err != nil {
		logging.FromContext(ctx).Warn("history: failed to persist question", slog.Any("error", err))
	}
	if err := o.history.Append(ctx, folder, history.RoleAssistant, answer); err != nil {
		logging.FromContext(ctx).Warn("history: failed to persist answer", slog.Any("error", err))
	}
}
