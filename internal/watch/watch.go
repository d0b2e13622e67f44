// Package watch re-runs a callback whenever a plan file changes on disk.
package watch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is how long the watcher waits for writes to settle.
const DefaultDelay = 300 * time.Millisecond

// Handler receives the new file content. Errors are logged, never fatal.
type Handler func(ctx context.Context, data []byte) error

// FileWatcher watches one file. It watches the parent directory so that
// editors that save by rename are still seen.
type FileWatcher struct {
	path    string
	delay   time.Duration
	handler Handler
	log     *slog.Logger

	mu       sync.Mutex
	lastHash [sha256.Size]byte
	seen     bool
}

// New creates a watcher for path. A nil logger discards output.
func New(path string, handler Handler, log *slog.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FileWatcher{path: abs, delay: DefaultDelay, handler: handler, log: log}, nil
}

// SetDelay overrides the debounce delay.
func (w *FileWatcher) SetDelay(d time.Duration) { w.delay = d }

// Run calls the handler once with the current content, then again after
// every change that alters the bytes. It blocks until ctx is done.
func (w *FileWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.fire(ctx)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !relevant(event.Op) {
				continue
			}
			w.log.Debug("plan file event", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.delay)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.fire(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func relevant(op fsnotify.Op) bool {
	return op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// fire reads the file and calls the handler when its content changed.
func (w *FileWatcher) fire(ctx context.Context) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.log.Warn("read plan file", "path", w.path, "error", err)
		}
		return
	}
	if !w.changed(data) {
		w.log.Debug("skip unchanged plan file", "path", w.path)
		return
	}
	if err := w.handler(ctx, data); err != nil {
		w.log.Warn("plan file handler failed", "path", w.path, "error", err)
	}
}

// changed reports whether data differs from the last content handled.
func (w *FileWatcher) changed(data []byte) bool {
	sum := sha256.Sum256(data)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen && sum == w.lastHash {
		return false
	}
	w.lastHash, w.seen = sum, true
	return true
}
