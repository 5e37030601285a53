package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewClearCmd constructs the `docqa clear` command, which empties the vector
// index for the source folder.
func NewClearCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every document from the vector index",
		Long: `Empty the vector index for the source folder.

Source documents are not touched — only the index and its manifest are
cleared. Run 'docqa reindex' to rebuild.

Examples:
  docqa clear --dir ./manuals`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			sourceDir, err := resolveSourceDir(dir)
			if err != nil {
				return err
			}

			idx, err := buildIndex(ctx, sourceDir)
			if err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			defer idx.Close()

			if err := idx.Clear(ctx); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			fmt.Println("index cleared")
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Source folder whose index to clear (default: SOURCE_DIR)")

	return cmd
}
