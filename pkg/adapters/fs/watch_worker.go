package fs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/fsnotify/fsnotify"
)

// watchWorker turns filesystem events on the data directory into change sets
// for one subscriber.
type watchWorker struct {
	*worker.BaseWorker
	store     *Store
	sub       *subscriber
	debouncer *debouncer
	cancel    context.CancelFunc

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

func newWatchWorker(store *Store, sub *subscriber) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("fs-watcher"),
		store:      store,
		sub:        sub,
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Join(w.store.Path, dataDir)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch store: %w", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()
	w.debouncer = newDebouncer(w.store.config.Debounce)
	w.store.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	// Writes that landed between the baseline snapshot and the watch.
	w.reconcile(runCtx)

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}

	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

func (w *watchWorker) fsWatcher() *fsnotify.Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watcher
}

// reconcile diffs the whole directory against the subscriber baseline.
func (w *watchWorker) reconcile(ctx context.Context) {
	current, err := w.store.snapshot(ctx)
	if err != nil {
		w.store.reportError(fmt.Errorf("reconcile failed: %w", err))
		return
	}
	for _, key := range w.sub.keys() {
		if _, ok := current[key]; !ok {
			current[key] = nil
		}
	}
	for key, env := range current {
		w.deliver(ctx, key, env)
	}
	w.store.recordReconcile()
}

// flush reads the settled state of keys and reports what changed.
func (w *watchWorker) flush(ctx context.Context, keys []string) {
	for _, key := range keys {
		env, err := w.store.readEnvelope(key)
		if err != nil {
			w.store.reportError(err)
			continue
		}
		w.deliver(ctx, key, env)
	}
}

func (w *watchWorker) deliver(ctx context.Context, key string, env *envelope) {
	origin := ""
	at := time.Now().UnixMilli()
	if env != nil {
		origin = env.Origin
		if env.UpdatedAt > 0 {
			at = time.Unix(0, env.UpdatedAt).UnixMilli()
		}
	}
	w.sub.apply(ctx, map[string]*envelope{key: env}, origin, at)
}

// processFilesystemEvent maps an fsnotify event to a store key and queues it.
func (w *watchWorker) processFilesystemEvent(ctx context.Context, event fsnotify.Event) bool {
	w.store.config.Logger.Debug("event received", "name", event.Name, "op", event.Op.String())

	if event.Op == fsnotify.Chmod {
		return false
	}
	key, ok := w.store.keyForPath(event.Name)
	if !ok {
		return false
	}

	w.debouncer.add(key, func(keys []string) {
		if ctx.Err() != nil {
			return
		}
		w.flush(ctx, keys)
	})
	return true
}

// run is the main event loop for the watcher worker.
func (w *watchWorker) run(ctx context.Context) (err error) {
	logger := w.store.config.Logger
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			if logger.Enabled(ctx, slog.LevelDebug) {
				logger.Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			} else {
				logger.Error("watcher panic", "error", err)
			}
		}
	}()
	watcher := w.fsWatcher()
	defer w.store.setWatcherActive(false)
	defer watcher.Close()

	err = w.mainEventLoop(ctx, watcher)

	w.debouncer.stopAndWait(5 * time.Second)
	return err
}

func (w *watchWorker) mainEventLoop(ctx context.Context, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.processFilesystemEvent(ctx, event)

		case wErr, ok := <-watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.store.config.Logger.Error("fsnotify error", "error", wErr)
			if w.store.config.ErrorHandler != nil {
				w.store.config.ErrorHandler(wErr)
			}
		}
	}
}
