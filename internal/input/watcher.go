package input

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher counts edits to the input file. The cycle prompt compares
// generations to tell the operator the list changed since the last cycle.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger

	generation atomic.Uint64
	ready      chan struct{}
}

func NewWatcher(path string, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   logger.Named("input_watcher"),
		ready:    make(chan struct{}),
	}
}

// Generation increases once per settled burst of changes.
func (w *Watcher) Generation() uint64 { return w.generation.Load() }

// Ready is closed once the watch is installed.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx is done. The parent directory is watched because
// editors often replace the file instead of writing it in place.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating input watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	close(w.ready)
	w.logger.Debug("Watching input list.", zap.String("path", w.path))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Input watcher error.", zap.Error(err))

		case <-timer.C:
			gen := w.generation.Add(1)
			w.logger.Info("Input list changed; it will be re-read at the next cycle.",
				zap.String("path", w.path), zap.Uint64("generation", gen))
		}
	}
}
