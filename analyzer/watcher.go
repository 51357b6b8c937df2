package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the model whenever the artifact is replaced on disk by
// another process. It returns once the watch is established; the watch ends
// when ctx is done.
func (a *Analyzer) Watch(ctx context.Context) error {
	dir := filepath.Dir(a.cfg.ModelPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// the artifact is replaced by rename, so watch the directory
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(a.cfg.ModelPath)
	a.log.Info("watching model file", zap.String("path", target))

	go func() {
		defer w.Close()

		var (
			mu    sync.Mutex
			timer *time.Timer
		)
		schedule := func() {
			mu.Lock()
			defer mu.Unlock()
			if timer != nil {
				timer.Reset(reloadDebounce)
				return
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				reloaded, err := a.ReloadIfChanged()
				if err != nil {
					a.log.Warn("model reload failed", zap.Error(err))
					return
				}
				if reloaded {
					a.log.Info("model reloaded from disk", zap.String("path", target))
				}
			})
		}

		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
					schedule()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				a.log.Warn("model watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
