package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewReindexCmd constructs the `docqa reindex` command, which brings the
// vector index up to date with the source folder.
func NewReindexCmd() *cobra.Command {
	var dir string
	var force bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Index new and changed documents in the source folder",
		Long: `Scan the source folder and update the vector index incrementally.

Unchanged documents (same content hash) are skipped. Changed documents are
re-extracted, re-chunked, and re-embedded; documents whose files are gone
are removed from the index. A failing document is reported and skipped —
the rest of the run continues.

With --force the index is cleared first and every document is rebuilt from
scratch. Use this after changing the embedding model or chunking settings,
or when the index is corrupted.

Examples:
  docqa reindex --dir ./manuals
  docqa reindex --force
  SOURCE_DIR=~/docs docqa reindex`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			sourceDir, err := resolveSourceDir(dir)
			if err != nil {
				return err
			}

			_, m := buildMetrics()
			mgr, _, cleanup, err := buildManager(ctx, sourceDir, log, m)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			defer cleanup()

			report, err := mgr.Reindex(ctx, force)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}

			fmt.Printf("indexed %d, removed %d, unchanged %d (%s)\n",
				report.Indexed, report.Removed, report.Unchanged, report.Duration.Round(time.Millisecond))
			for _, path := range report.IndexedPaths {
				fmt.Printf("indexed: %s\n", path)
			}
			for _, f := range report.Failures {
				fmt.Printf("failed: %s: %v\n", f.Path, f.Err)
			}
			if len(report.Failures) > 0 {
				return fmt.Errorf("reindex: %d document(s) failed", len(report.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Source folder to index (default: SOURCE_DIR)")
	cmd.Flags().BoolVar(&force, "force", false, "Clear the index and rebuild every document")

	return cmd
}
