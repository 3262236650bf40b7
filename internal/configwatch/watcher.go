// Package configwatch reloads the configuration when its file changes on disk.
package configwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay coalesces the burst of events an editor produces on save.
const DefaultDelay = 150 * time.Millisecond

type Options struct {
	Path  string
	Delay time.Duration
	// OnChange runs on its own goroutine after the file settles. Calls never
	// overlap.
	OnChange func()
}

// Watcher watches the directory holding Path, so editors that save by
// renaming a temp file over the config are still seen.
type Watcher struct {
	path     string
	delay    time.Duration
	onChange func()

	mu    sync.Mutex
	timer *time.Timer
	// fireMu keeps OnChange calls from overlapping.
	fireMu sync.Mutex
}

func New(opts Options) (*Watcher, error) {
	if opts.Path == "" {
		return nil, errors.New("configwatch: path required")
	}
	if opts.OnChange == nil {
		return nil, errors.New("configwatch: OnChange required")
	}
	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("configwatch: %w", err)
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	return &Watcher{path: abs, delay: opts.Delay, onChange: opts.OnChange}, nil
}

// Run watches until ctx is done. It returns an error if the watch cannot be
// set up or fsnotify shuts down underneath it.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("configwatch: new watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("configwatch: mkdir %s: %w", dir, err)
	}
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("configwatch: watch %s: %w", dir, err)
	}
	slog.Debug("[DEBUG-CONFIG] watching config", "path", w.path)
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return errors.New("configwatch: event channel closed")
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op == fsnotify.Chmod {
				continue
			}
			slog.Debug("[DEBUG-CONFIG] config file event", "op", ev.Op.String())
			w.schedule()
		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("configwatch: error channel closed")
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.delay)
		return
	}
	w.timer = time.AfterFunc(w.delay, w.fire)
}

func (w *Watcher) fire() {
	w.fireMu.Lock()
	defer w.fireMu.Unlock()
	w.onChange()
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
