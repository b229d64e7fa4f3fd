// Package memory provides in-process implementations of the store and scheduler
// ports. Several core.Service values may share one Store to emulate contexts
// living in the same host process.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notely/pkg/core"
)

type entry struct {
	value json.RawMessage
	rev   uint64
}

type watcher struct {
	pattern string
	ch      chan core.ChangeSet
	ctx     context.Context
}

// Store is an in-memory core.Store with change fan-out and per-key revisions.
type Store struct {
	mu       sync.Mutex
	items    map[string]entry
	removed  map[string]uint64 // revision of removed keys
	watchers map[int]*watcher
	nextID   int
	clock    core.Clock
	down     error

	// publishMu orders deliveries by commit without holding mu while sending.
	publishMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to timestamp change sets.
func WithClock(clock core.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithUnavailable makes every operation fail with err, emulating a missing host API.
func WithUnavailable(err error) Option {
	return func(s *Store) {
		s.down = err
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		items:    make(map[string]entry),
		removed:  make(map[string]uint64),
		watchers: make(map[int]*watcher),
		clock:    core.SystemClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize implements core.Store.
func (s *Store) Initialize(ctx context.Context) error {
	return s.down
}

// Available implements core.Prober.
func (s *Store) Available(ctx context.Context) error {
	return s.down
}

// Get implements core.Store.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if s.down != nil {
		return nil, s.down
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if e, ok := s.items[k]; ok {
			out[k] = clone(e.value)
		}
	}
	return out, nil
}

// Set implements core.Store.
func (s *Store) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if s.down != nil {
		return s.down
	}
	s.mu.Lock()
	changes := make(map[string]core.Change, len(items))
	for k, v := range items {
		prev, existed := s.items[k]
		if existed && bytes.Equal(prev.value, v) {
			continue
		}
		s.items[k] = entry{value: clone(v), rev: s.revLocked(k) + 1}
		delete(s.removed, k)
		c := core.Change{New: clone(v)}
		if existed {
			c.Old = clone(prev.value)
		}
		changes[k] = c
	}
	s.publishLocked(ctx, changes)
	return nil
}

// Remove implements core.Store.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if s.down != nil {
		return s.down
	}
	s.mu.Lock()
	changes := make(map[string]core.Change, len(keys))
	for _, k := range keys {
		prev, ok := s.items[k]
		if !ok {
			continue
		}
		delete(s.items, k)
		s.removed[k] = prev.rev + 1
		changes[k] = core.Change{Old: clone(prev.value)}
	}
	s.publishLocked(ctx, changes)
	return nil
}

// Keys implements core.Enumerable.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if s.down != nil {
		return nil, s.down
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Revision implements core.Versioned. A removal counts as a revision, and a
// recreated key continues from there.
func (s *Store) Revision(ctx context.Context, key string) (uint64, error) {
	if s.down != nil {
		return 0, s.down
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revLocked(key), nil
}

func (s *Store) revLocked(key string) uint64 {
	if e, ok := s.items[key]; ok {
		return e.rev
	}
	return s.removed[key]
}

// CompareAndSet implements core.Versioned.
func (s *Store) CompareAndSet(ctx context.Context, key string, rev uint64, value json.RawMessage) error {
	if s.down != nil {
		return s.down
	}
	s.mu.Lock()
	prev, existed := s.items[key]
	current := s.revLocked(key)
	if current != rev {
		s.mu.Unlock()
		return core.ErrConflict
	}
	s.items[key] = entry{value: clone(value), rev: current + 1}
	delete(s.removed, key)
	c := core.Change{New: clone(value)}
	if existed {
		c.Old = clone(prev.value)
	}
	s.publishLocked(ctx, map[string]core.Change{key: c})
	return nil
}

// publishLocked is called with mu held and releases it. Delivery happens under
// publishMu so watchers observe change sets in commit order.
func (s *Store) publishLocked(ctx context.Context, changes map[string]core.Change) {
	if len(changes) == 0 {
		s.mu.Unlock()
		return
	}
	cs := core.ChangeSet{
		Changes:   changes,
		Area:      core.AreaLocal,
		Origin:    core.OriginFrom(ctx),
		Timestamp: s.clock().UnixMilli(),
	}
	targets := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		targets = append(targets, w)
	}
	s.publishMu.Lock()
	s.mu.Unlock()
	defer s.publishMu.Unlock()

	for _, w := range targets {
		filtered, ok := cs.Filter(w.pattern)
		if !ok {
			continue
		}
		select {
		case w.ch <- filtered:
		case <-w.ctx.Done():
		}
	}
}

// Watch implements core.Watchable.
func (s *Store) Watch(ctx context.Context, pattern string) (<-chan core.ChangeSet, error) {
	if s.down != nil {
		return nil, s.down
	}
	w := &watcher{pattern: pattern, ch: make(chan core.ChangeSet, 16), ctx: ctx}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = w
	s.mu.Unlock()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()

		s.publishMu.Lock()
		close(w.ch)
		s.publishMu.Unlock()
		return nil
	})
	return w.ch, nil
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "memory-store"
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"keys":      len(s.items),
		"watchers":  len(s.watchers),
		"available": s.down == nil,
	}
}

func clone(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
