// Package watch re-runs a fragment file after edits settle.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last edit before a run.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches one file. Editors often replace a file instead of writing
// it in place, so the parent directory is watched and events are filtered by
// name.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

func New(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolving %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: abs, debounce: debounce, logger: logger.With(slog.String("file", abs))}, nil
}

// Run calls onChange with the file's contents once at start and then after
// every burst of edits, never concurrently. It blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, code string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: creating watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch: watching %s: %w", filepath.Dir(w.path), err)
	}

	w.fire(ctx, onChange)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		case <-timer.C:
			w.fire(ctx, onChange)
		}
	}
}

func (w *Watcher) fire(ctx context.Context, onChange func(ctx context.Context, code string)) {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		// Mid-rename; the Create that follows re-arms the timer.
		return
	}
	if err != nil {
		w.logger.Warn("reading file", slog.String("error", err.Error()))
		return
	}
	onChange(ctx, string(data))
}
