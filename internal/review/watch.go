package review

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events one editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-runs consolidation whenever the review log changes.
type Watcher struct {
	opts     Options
	debounce time.Duration
	onResult func(Result, error)
}

// NewWatcher returns a watcher for opts.LogPath. onResult receives the
// outcome of every pass, including the initial one; it may be nil.
func NewWatcher(opts Options, debounce time.Duration, onResult func(Result, error)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if onResult == nil {
		onResult = func(Result, error) {}
	}
	return &Watcher{opts: opts, debounce: debounce, onResult: onResult}
}

// Run consolidates once, then again after each change to the log, until
// ctx is done. The log's directory is watched so saves that replace the
// file by rename are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "review: create watcher")
	}
	defer fw.Close() //nolint:errcheck

	dir := filepath.Dir(w.opts.LogPath)
	if err := fw.Add(dir); err != nil {
		return eris.Wrapf(err, "review: watch %s", dir)
	}
	target := filepath.Clean(w.opts.LogPath)

	w.pass()

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
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("review: watcher error", zap.Error(err))
		case <-timer.C:
			w.pass()
		}
	}
}

func (w *Watcher) pass() {
	res, err := Consolidate(w.opts)
	if err != nil {
		zap.L().Warn("review: consolidation failed", zap.String("log", w.opts.LogPath), zap.Error(err))
	}
	w.onResult(res, err)
}
