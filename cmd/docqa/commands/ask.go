package commands

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// natural language question grounded in the indexed documents.
func NewAskCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed documents",
		Long: `Ask a natural language question about the documents in the source folder.

The answer is grounded exclusively in the indexed content: relevant passages
are retrieved, handed to the LLM as the only allowed context, and the source
file and page of every passage is cited. If nothing relevant is found, docqa
says so instead of letting the model guess.

Run 'docqa reindex' first so the index reflects the folder.

Examples:
  docqa ask "what is the warranty period?"
  docqa ask --dir ./manuals "how do I reset the device to factory settings?"
  docqa ask "保固期限是多久？"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Langfuse tracing is opt-in, no-op if keys are absent.
			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			sourceDir, err := resolveSourceDir(dir)
			if err != nil {
				return err
			}

			_, m := buildMetrics()
			orch, cleanup, err := buildOrchestrator(ctx, sourceDir, log, m)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer cleanup()

			question := strings.Join(args, " ")
			result, err := orch.Ask(ctx, sourceDir, question)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(result.Answer)
			if line := result.CitationLine(); line != "" {
				fmt.Printf("\nSources: %s\n", line)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Source folder to query (default: SOURCE_DIR)")

	return cmd
}
