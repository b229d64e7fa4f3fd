package schedule

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/fsnotify/fsnotify"
)

// idleWait bounds the sleep when nothing is armed; fsnotify wakes us earlier.
const idleWait = time.Minute

// runner is the worker that sleeps until the earliest timer and fires it.
type runner struct {
	*worker.BaseWorker
	sched   *Scheduler
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewWorker returns a fresh worker delivering this scheduler's timers.
// Use it as a supervisor factory; each restart needs a new instance.
func (s *Scheduler) NewWorker() worker.Worker {
	return &runner{
		BaseWorker: worker.NewBaseWorker("alarm-scheduler"),
		sched:      s,
	}
}

func (r *runner) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := r.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("scheduler already started (status: %s)", status)
	}

	if err := r.sched.Initialize(ctx); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Join(r.sched.Path, entriesDir)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch alarms: %w", err)
	}
	r.watcher = watcher

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.SetStatus(worker.StatusRunning)
	return r.StartFunc(runCtx, r.run)
}

func (r *runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.StopRequested = true
		r.cancel()
	}
	return r.BaseWorker.Stop(ctx)
}

func (r *runner) State() worker.State {
	return r.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

func (r *runner) run(ctx context.Context) error {
	r.sched.setRunning(1)
	defer r.sched.setRunning(-1)
	defer r.watcher.Close()

	logger := r.sched.config.Logger
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
		case <-r.sched.wake:
		case event, ok := <-r.watcher.Events:
			if !ok {
				if r.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op == fsnotify.Chmod || event.Has(fsnotify.Remove) {
				continue
			}
		case wErr, ok := <-r.watcher.Errors:
			if !ok {
				if r.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Error("fsnotify error", "error", wErr)
			continue
		}

		next, err := r.sched.fireDue(ctx)
		if err != nil {
			logger.Error("failed to scan alarms", "error", err)
		}

		wait := idleWait
		if !next.IsZero() {
			wait = time.Until(next)
			if wait < 0 {
				wait = 0
			}
			if wait > idleWait {
				wait = idleWait
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
	}
}
