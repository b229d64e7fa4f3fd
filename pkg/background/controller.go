// Package background hosts the always-available context: it owns the reminder
// firing handler and dispatches the global keyboard command.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"

	"github.com/aretw0/notely/pkg/core"
	"github.com/aretw0/notely/pkg/notes"
)

// WorkerScheduler is a scheduler that needs a running worker to fire timers.
type WorkerScheduler interface {
	core.Scheduler
	NewWorker() worker.Worker
}

// PendingLister is implemented by schedulers able to list armed timers.
type PendingLister interface {
	Pending(ctx context.Context) ([]core.Alarm, error)
}

// Config wires the controller to the host.
type Config struct {
	Service      *core.Service
	Scheduler    core.Scheduler
	Sink         core.Sink
	Bridge       core.Bridge
	Tabs         core.TabQuery
	Capabilities core.Capabilities
	Logger       *slog.Logger

	// Backoff overrides the restart policy of the scheduler worker.
	Backoff *supervisor.Backoff
}

type unit interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Controller is the background context.
type Controller struct {
	cfg       Config
	logger    *slog.Logger
	reminders *notes.Reminders

	mu      sync.Mutex
	started bool
	sup     unit
	sub     *core.Subscription
}

// New creates a controller. Nothing runs until Start.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		cfg:       cfg,
		logger:    logger,
		reminders: notes.NewReminders(cfg.Service, cfg.Sink, logger),
	}
}

// Reminders returns the firing handler registered with the scheduler.
func (c *Controller) Reminders() *notes.Reminders {
	return c.reminders
}

// Start registers the reminder handler when timers are available, runs the
// scheduler worker under supervision and traces store changes.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	if c.cfg.Capabilities.Scheduler && c.cfg.Scheduler != nil {
		c.cfg.Scheduler.OnAlarm(c.reminders.HandleAlarm)

		if ws, ok := c.cfg.Scheduler.(WorkerScheduler); ok {
			sup := supervisor.New("background", supervisor.StrategyOneForOne, c.schedulerSpec(ws))
			if err := sup.Start(ctx); err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}
			c.sup = sup
		}
		c.reportOrphans(ctx)
	} else {
		c.logger.Warn("scheduler unavailable, reminders will not fire")
	}

	if c.cfg.Capabilities.Storage && c.cfg.Service != nil {
		sub, err := c.cfg.Service.Subscribe(ctx, "*", func(cs core.ChangeSet) {
			c.logger.Debug("store changed", "keys", cs.Keys(), "origin", cs.Origin)
		})
		if err != nil {
			c.logger.Debug("store changes not observable", "error", err)
		} else {
			c.sub = sub
		}
	}

	c.started = true
	c.logger.Info("background started", "capabilities", c.cfg.Capabilities)
	return nil
}

func (c *Controller) schedulerSpec(ws WorkerScheduler) supervisor.Spec {
	backoff := supervisor.Backoff{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		ResetDuration:   time.Minute,
		MaxRestarts:     10,
		MaxDuration:     10 * time.Minute,
	}
	if c.cfg.Backoff != nil {
		backoff = *c.cfg.Backoff
	}
	return supervisor.Spec{
		Name: "alarm-scheduler",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return ws.NewWorker(), nil
		},
		Backoff:       backoff,
		RestartPolicy: supervisor.RestartOnFailure,
	}
}

func (c *Controller) reportOrphans(ctx context.Context) {
	lister, ok := c.cfg.Scheduler.(PendingLister)
	if !ok || c.cfg.Service == nil {
		return
	}
	pending, err := lister.Pending(ctx)
	if err != nil {
		c.logger.Debug("cannot list pending alarms", "error", err)
		return
	}
	orphans, err := c.reminders.Orphans(ctx, pending)
	if err != nil {
		c.logger.Debug("cannot check reminder payloads", "error", err)
		return
	}
	if len(orphans) > 0 {
		c.logger.Warn("reminder payloads without a pending timer", "alarms", orphans)
	}
}

// HandleCommand dispatches a global keyboard command. toggle_note_form opens
// the capture form of the active page; without an active page it does nothing.
func (c *Controller) HandleCommand(ctx context.Context, name string) {
	if name != core.CommandToggleForm {
		c.logger.Debug("unknown command", "command", name)
		return
	}
	if !c.cfg.Capabilities.Bridge || c.cfg.Bridge == nil || c.cfg.Tabs == nil {
		c.logger.Debug("bridge unavailable, command ignored", "command", name)
		return
	}
	target, ok := c.cfg.Tabs.ActiveTarget(ctx)
	if !ok {
		return
	}
	c.cfg.Bridge.Send(ctx, target, core.Message{Type: core.MessageOpenForm})
}

// Stop tears the controller down. It does not depend on any other context.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false

	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	var errs []error
	if c.sup != nil {
		if err := c.sup.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
		c.sup = nil
	}
	c.logger.Info("background stopped")
	return errors.Join(errs...)
}
