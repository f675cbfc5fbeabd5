// Package watcher reports session logs that were created or appended to
// under a directory tree, one settled Change per burst of writes.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/anthropic/codexlog/internal/sessionparser"
)

// DefaultQuietWindow is how long a log must stay untouched before its
// Change is emitted.
const DefaultQuietWindow = 500 * time.Millisecond

// Watcher watches a directory tree for .jsonl logs.
type Watcher struct {
	root     string
	filter   *Filter
	window   time.Duration
	onChange func(Change)
	log      zerolog.Logger

	fsw       *fsnotify.Watcher
	debouncer *Debouncer
}

// New creates a Watcher for root. onChange is called from timer goroutines,
// one call per settled Change.
func New(root string, filter *Filter, window time.Duration, onChange func(Change), log zerolog.Logger) *Watcher {
	if filter == nil {
		filter = NewFilter(nil)
	}
	if window <= 0 {
		window = DefaultQuietWindow
	}
	return &Watcher{
		root:     root,
		filter:   filter,
		window:   window,
		onChange: onChange,
		log:      log,
	}
}

// Run watches until ctx is cancelled, then flushes pending changes.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.debouncer = NewDebouncer(w.window, w.onChange)
	defer w.stop()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.log.Info().Str("root", w.root).Msg("watching for session logs")

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

func (w *Watcher) stop() {
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}

	// New session directories (codex nests logs by date) are watched too.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name)
			return
		}
	}

	if !sessionparser.IsLogFile(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		w.debouncer.Touch(ev.Name, time.Now())
	}
}

// addRecursive adds dir and every non-ignored directory below it.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.log.Warn().Err(err).Str("dir", path).Msg("cannot watch directory")
		}
		return nil
	})
}

// ignored matches path relative to the watch root, so the root's own
// components never trigger a pattern.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	if rel == "." {
		return false
	}
	return w.filter.ShouldIgnore(rel)
}
