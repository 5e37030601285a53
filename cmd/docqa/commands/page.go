package commands

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewPageCmd constructs the `docqa page` command, which reads back a single
// page of a document raw, explained, or translated.
func NewPageCmd() *cobra.Command {
	var dir string
	var mode string
	var language string

	cmd := &cobra.Command{
		Use:   "page [file] [page-number]",
		Short: "Show, explain, or translate one page of a document",
		Long: `Extract one page of a document and print it raw, explained, or translated.

The file argument is resolved relative to the source folder unless absolute.
Page numbers are 1-based. DOCX files have a single page.

Modes:
  raw        print the extracted page text verbatim (no LLM call)
  explain    ask the LLM to explain the page's content
  translate  ask the LLM to translate the page (--language, default Traditional Chinese)

Examples:
  docqa page manual.pdf 3
  docqa page manual.pdf 3 --mode explain
  docqa page contract.docx 1 --mode translate --language Japanese`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
			}

			sourceDir, err := resolveSourceDir(dir)
			if err != nil {
				return err
			}

			pageNum, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("page: invalid page number %q", args[1])
			}

			path := args[0]
			if !filepath.IsAbs(path) {
				path = filepath.Join(sourceDir, path)
			}

			_, m := buildMetrics()
			orch, cleanup, err := buildOrchestrator(ctx, sourceDir, log, m)
			if err != nil {
				return fmt.Errorf("page: %w", err)
			}
			defer cleanup()

			res, err := orch.InspectPage(ctx, path, pageNum, answer.Mode(mode), language)
			if err != nil {
				return fmt.Errorf("page: %w", err)
			}

			if res.Transformed != "" {
				fmt.Println(res.Transformed)
				fmt.Println("\n--- Raw page text ---")
			}
			fmt.Println(res.Raw)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Source folder (default: SOURCE_DIR)")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(answer.ModeRaw), "Page mode: raw, explain, translate")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Target language for --mode translate (default: ANSWER_TRANSLATE_LANGUAGE or Traditional Chinese)")

	return cmd
}
