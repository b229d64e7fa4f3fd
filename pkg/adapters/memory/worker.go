package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"

	"github.com/aretw0/notely/pkg/core"
)

const defaultTick = time.Second

// ticker fires due alarms of a Scheduler on a fixed interval.
type ticker struct {
	*worker.BaseWorker
	sched  *Scheduler
	every  time.Duration
	clock  core.Clock
	cancel context.CancelFunc
}

// NewWorker returns a worker that calls FireDue every second with the wall
// clock, so the scheduler can run unattended inside a host.
func (s *Scheduler) NewWorker() worker.Worker {
	return s.NewTicker(defaultTick, core.SystemClock)
}

// NewTicker is NewWorker with an explicit interval and clock.
func (s *Scheduler) NewTicker(every time.Duration, clock core.Clock) worker.Worker {
	if every <= 0 {
		every = defaultTick
	}
	if clock == nil {
		clock = core.SystemClock
	}
	return &ticker{
		BaseWorker: worker.NewBaseWorker("memory-scheduler"),
		sched:      s,
		every:      every,
		clock:      clock,
	}
}

func (t *ticker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	status := t.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("scheduler already started (status: %s)", status)
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.SetStatus(worker.StatusRunning)
	return t.StartFunc(runCtx, t.run)
}

func (t *ticker) Stop(ctx context.Context) error {
	if t.cancel != nil {
		t.StopRequested = true
		t.cancel()
	}
	return t.BaseWorker.Stop(ctx)
}

func (t *ticker) State() worker.State {
	return t.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

func (t *ticker) run(ctx context.Context) error {
	tick := time.NewTicker(t.every)
	defer tick.Stop()
	for {
		t.sched.FireDue(ctx, t.clock())
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
