package lua

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultReloadDebounce coalesces editor write bursts into one reload.
const DefaultReloadDebounce = 500 * time.Millisecond

// Watcher reloads the runtime's script when the file changes on disk.
type Watcher struct {
	runtime  *Runtime
	debounce time.Duration
	onReload func(error)
	watcher  *fsnotify.Watcher
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithReloadHandler sets a callback invoked after every reload attempt with
// its result. If not set, results are only logged.
func WithReloadHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// NewWatcher creates a watcher for the runtime's script.
func NewWatcher(r *Runtime, debounce time.Duration, opts ...WatcherOption) *Watcher {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	w := &Watcher{runtime: r, debounce: debounce}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. The directory is watched rather than the file so
// editors that replace the file on save are still picked up.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.runtime.ScriptPath())
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	log.Info().Str("path", w.runtime.ScriptPath()).Dur("debounce", w.debounce).Msg("Script watcher started")
	go w.watch(ctx)
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	name := filepath.Clean(w.runtime.ScriptPath())

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			log.Debug().Msg("Script watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				log.Debug().Str("op", event.Op.String()).Msg("Script change detected")
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			}

		case <-timerC:
			timerC = nil
			err := w.runtime.Reload(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Script reload failed, keeping previous handlers")
			} else {
				log.Info().Msg("Script reloaded")
			}
			if w.onReload != nil {
				w.onReload(err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Script watcher error")
		}
	}
}
