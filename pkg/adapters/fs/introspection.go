package fs

import (
	"context"
	"time"

	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Path           string     `json:"path"`
	Keys           int        `json:"keys"`
	ReadOnly       bool       `json:"read_only"`
	LockTimeout    string     `json:"lock_timeout"`
	WatcherActive  bool       `json:"watcher_active"`
	ActiveWatchers int        `json:"active_watchers"`
	Subscribers    int        `json:"subscribers"`
	LastReconcile  *time.Time `json:"last_reconcile,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	keys, _ := s.Keys(context.Background())

	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreState{
		Path:           s.Path,
		Keys:           len(keys),
		ReadOnly:       s.config.ReadOnly,
		LockTimeout:    s.config.LockTimeout.String(),
		WatcherActive:  s.activeWatchers > 0,
		ActiveWatchers: s.activeWatchers,
		Subscribers:    len(s.subscribers),
		LastReconcile:  s.lastReconcile,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "fs-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)

func (s *Store) setWatcherActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.activeWatchers++
	} else if s.activeWatchers > 0 {
		s.activeWatchers--
	}
}

func (s *Store) recordReconcile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.lastReconcile = &now
}
