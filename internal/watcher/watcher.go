// Package watcher turns on-disk edits of vault documents into
// document-modified passes.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period a document must see before its
// modification is reported.
const DefaultDebounce = 250 * time.Millisecond

// Handler is called with the vault-relative, slash-separated path of a
// modified document once its burst of events has settled.
type Handler func(ctx context.Context, path string)

// Options tune which events reach the handler.
type Options struct {
	Debounce time.Duration
	// Active, when set, limits reports to the document it returns. An empty
	// return value suppresses every report.
	Active func() string
}

// Watch starts an fsnotify watcher on the vault root and reports modified
// .md files until ctx is cancelled. Directories created at runtime are
// added to the watch list; hidden directories are never watched.
func Watch(ctx context.Context, vaultRoot string, logger *slog.Logger, opts Options, h Handler) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot), slog.Duration("debounce", opts.Debounce))

	deb := newDebouncer(opts.Debounce, ctx.Done())

	for {
		select {
		case <-ctx.Done():
			deb.stop()
			logger.Info("watcher: stopped")
			return nil

		case f := <-deb.out:
			if !deb.accept(f) {
				continue
			}
			rel := f.rel
			if opts.Active != nil && opts.Active() != rel {
				logger.Debug("watcher: not active", slog.String("path", rel))
				continue
			}
			logger.Debug("watcher: modified", slog.String("path", rel))
			h(ctx, rel)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if hidden(info.Name()) {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".md") {
				continue
			}
			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				deb.schedule(rel)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path; the new one arrives as Create.
				deb.cancel(rel)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
