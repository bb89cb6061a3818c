package pipeline

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/casebook/internal/storage"
)

// DefaultDebounce is how long the watcher waits for the inbox to go quiet
// before ingesting.
const DefaultDebounce = 500 * time.Millisecond

// InboxCallback is called after each watcher-driven ingestion.
type InboxCallback func(rep BatchReport, err error)

// WatchInbox ingests documents dropped into the inbox directory at root until
// ctx is cancelled. Files already present are ingested on start. Bursts of
// file events are debounced into a single IngestInbox run, which also sweeps
// orphans when link-after-sync is on.
//
// New directories created at runtime are added to the watch list; the
// processed/ and failed/ folders and hidden directories are never watched.
func (e *Engine) WatchInbox(ctx context.Context, tenantID string, inbox storage.Provider, root string, debounce time.Duration, cb InboxCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	e.logger.Info("watcher: started", slog.String("root", root))

	timer := time.NewTimer(0) // initial pass over existing files
	defer timer.Stop()
	schedule := func() {
		timer.Stop()
		timer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("watcher: stopped")
			return nil

		case <-timer.C:
			rep, err := e.IngestInbox(ctx, tenantID, inbox)
			if err != nil {
				e.logger.Error("watcher: ingest failed", slog.String("error", err.Error()))
			} else if rep.Processed+rep.Failed > 0 {
				e.logger.Info("watcher: ingested",
					slog.Int("processed", rep.Processed),
					slog.Int("linked", rep.Linked),
					slog.Int("failed", rep.Failed))
			}
			if cb != nil && (err != nil || rep.Processed+rep.Failed > 0) {
				cb(rep, err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if skipDir(info.Name()) {
						continue
					}
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						e.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") || !storage.IsDocument(name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func skipDir(name string) bool {
	return name == storage.ProcessedDir || name == storage.FailedDir || strings.HasPrefix(name, ".")
}

// addDirsRecursive adds root and its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
