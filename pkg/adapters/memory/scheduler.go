package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/notely/pkg/core"
)

// Scheduler is a core.Scheduler driven by an explicit clock. Nothing fires on
// its own; FireDue delivers every alarm whose time has come.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]time.Time
	handler core.AlarmHandler
	down    error
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerUnavailable makes Arm fail with err.
func WithSchedulerUnavailable(err error) SchedulerOption {
	return func(s *Scheduler) {
		s.down = err
	}
}

// NewScheduler creates an empty Scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{pending: make(map[string]time.Time)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available implements core.Prober.
func (s *Scheduler) Available(ctx context.Context) error {
	return s.down
}

// Arm implements core.Scheduler. Re-arming an id overwrites its fire time.
func (s *Scheduler) Arm(ctx context.Context, id string, fireAt time.Time) error {
	if s.down != nil {
		return s.down
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = fireAt
	return nil
}

// OnAlarm implements core.Scheduler.
func (s *Scheduler) OnAlarm(handler core.AlarmHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Pending returns the armed alarms ordered by fire time.
func (s *Scheduler) Pending() []core.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedAlarms(s.pending, time.Time{})
}

// FireDue removes every alarm due at now and invokes the handler for each one,
// earliest first. It returns the fired alarms.
func (s *Scheduler) FireDue(ctx context.Context, now time.Time) []core.Alarm {
	s.mu.Lock()
	due := sortedAlarms(s.pending, now)
	for _, a := range due {
		delete(s.pending, a.ID)
	}
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		for _, a := range due {
			handler(ctx, a)
		}
	}
	return due
}

// Fire delivers id immediately as if it were due, even when it was never armed.
// It is meant for tests exercising duplicate deliveries.
func (s *Scheduler) Fire(ctx context.Context, id string) {
	s.mu.Lock()
	at, ok := s.pending[id]
	delete(s.pending, id)
	handler := s.handler
	s.mu.Unlock()

	if !ok {
		at = time.Now()
	}
	if handler != nil {
		handler(ctx, core.Alarm{ID: id, ScheduledAt: at})
	}
}

// ComponentType implements introspection.Component.
func (s *Scheduler) ComponentType() string {
	return "memory-scheduler"
}

// State implements introspection.Introspectable.
func (s *Scheduler) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"pending":     len(s.pending),
		"has_handler": s.handler != nil,
	}
}

// sortedAlarms lists the alarms due at cutoff; a zero cutoff lists all of them.
func sortedAlarms(pending map[string]time.Time, cutoff time.Time) []core.Alarm {
	out := make([]core.Alarm, 0, len(pending))
	for id, at := range pending {
		if !cutoff.IsZero() && at.After(cutoff) {
			continue
		}
		out = append(out, core.Alarm{ID: id, ScheduledAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}
