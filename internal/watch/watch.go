// Package watch keeps the index in sync with the source folder. It listens
// for filesystem events, debounces bursts (editors and sync clients touch a
// file several times in quick succession), and triggers an incremental
// reindex once the folder settles.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/54b3r/docqa-go/internal/docs"
	"github.com/54b3r/docqa-go/internal/indexer"
)

// Config holds watcher tuning knobs.
type Config struct {
	// Debounce is how long the folder must stay quiet before a reindex is
	// triggered. Defaults to 2s if zero.
	Debounce time.Duration

	// RetryInterval is how long to wait before retrying when a reindex run
	// is already in progress. Defaults to 5s if zero.
	RetryInterval time.Duration
}

// Watcher triggers incremental reindex runs in response to folder changes.
type Watcher struct {
	// source identifies the folder to watch and which files matter.
	source *docs.Source

	// manager runs the reindex passes.
	manager *indexer.Manager

	// cfg holds the resolved watcher configuration.
	cfg *Config

	// log is the structured logger for watch events.
	log *slog.Logger
}

// New constructs a Watcher from the provided dependencies and config.
func New(source *docs.Source, manager *indexer.Manager, cfg *Config, log *slog.Logger) (*Watcher, error) {
	if source == nil {
		return nil, fmt.Errorf("watch: source must not be nil")
	}
	if manager == nil {
		return nil, fmt.Errorf("watch: manager must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{source: source, manager: manager, cfg: cfg, log: log}, nil
}

// Run watches the source folder until ctx is cancelled. It runs one initial
// reindex so the index is current before the first event arrives.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.reindex(ctx); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.source.Dir()); err != nil {
		return fmt.Errorf("watch: watching %s: %w", w.source.Dir(), err)
	}
	w.log.Info("watching folder", slog.String("dir", w.source.Dir()))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("folder changed",
				slog.String("path", ev.Name),
				slog.String("op", ev.Op.String()))
			pending = time.After(w.cfg.Debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", slog.Any("error", err))

		case <-pending:
			pending = nil
			if err := w.reindex(ctx); errors.Is(err, indexer.ErrReindexInProgress) {
				// Another run holds the pipeline; try again once it finishes.
				pending = time.After(w.cfg.RetryInterval)
			} else if err != nil && ctx.Err() != nil {
				return err
			}
		}
	}
}

// relevant reports whether an event should trigger a reindex: create, write,
// remove, or rename of a supported document type.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	const ops = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
	return ev.Op&ops != 0 && w.source.Supported(ev.Name)
}

// reindex runs one incremental pass and logs the outcome. Reindex failures
// other than cancellation are logged, not fatal: the watcher keeps running
// and the next event retries.
func (w *Watcher) reindex(ctx context.Context) error {
	report, err := w.manager.Reindex(ctx, false)
	if err != nil {
		if errors.Is(err, indexer.ErrReindexInProgress) || ctx.Err() != nil {
			return err
		}
		w.log.Error("reindex failed", slog.Any("error", err))
		return nil
	}
	w.log.Info("index updated",
		slog.Int("indexed", report.Indexed),
		slog.Int("removed", report.Removed),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failed", len(report.Failures)))
	return nil
}
