package schedule

import (
	"context"
	"time"

	"github.com/aretw0/introspection"
)

// SchedulerState exposes internal state for observability.
type SchedulerState struct {
	Path       string     `json:"path"`
	Pending    int        `json:"pending"`
	Fired      int        `json:"fired"`
	Running    bool       `json:"running"`
	HasHandler bool       `json:"has_handler"`
	LastFire   *time.Time `json:"last_fire,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Scheduler) State() any {
	pending, _ := s.Pending(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerState{
		Path:       s.Path,
		Pending:    len(pending),
		Fired:      s.fired,
		Running:    s.running > 0,
		HasHandler: s.handler != nil,
		LastFire:   s.lastFire,
	}
}

// ComponentType implements introspection.Component.
func (s *Scheduler) ComponentType() string {
	return "scheduler"
}

var _ introspection.Introspectable = (*Scheduler)(nil)
var _ introspection.Component = (*Scheduler)(nil)
