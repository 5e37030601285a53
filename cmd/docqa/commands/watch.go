package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/watch"
)

// NewWatchCmd constructs the `docqa watch` command, which keeps the index in
// sync with the source folder until interrupted.
func NewWatchCmd() *cobra.Command {
	var dir string
	var debounce time.Duration
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the source folder and reindex on change",
		Long: `Run an initial reindex, then watch the source folder and reindex
incrementally whenever documents are added, changed, or removed. Bursts of
filesystem events are debounced so editors and sync clients trigger one run,
not dozens.

With --metrics-addr, Prometheus metrics for the indexing pipeline are served
at /metrics on the given address.

Examples:
  docqa watch --dir ./manuals
  docqa watch --debounce 10s
  docqa watch --metrics-addr 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			sourceDir, err := resolveSourceDir(dir)
			if err != nil {
				return err
			}

			reg, m := buildMetrics()
			mgr, source, cleanup, err := buildManager(ctx, sourceDir, log, m)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer cleanup()

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					log.Info("metrics listening", slog.String("addr", metricsAddr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("metrics server failed", slog.Any("error", err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			w, err := watch.New(source, mgr, &watch.Config{Debounce: debounce}, log)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}

			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Source folder to watch (default: SOURCE_DIR)")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before reindexing after a change (default: 2s)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (disabled when empty)")

	return cmd
}
