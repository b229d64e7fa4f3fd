package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/lifecycle"
)

const defaultEventBuffer = 100

// Service is a context's handle on the shared store. Every write it performs is
// tagged with the context name, and availability is decided once at construction.
type Service struct {
	store           Store
	name            string
	available       bool
	eventBufferSize int
	logger          *slog.Logger

	mu sync.RWMutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEventBuffer sets the size of the broker buffer between the store and watchers.
func WithEventBuffer(size int) ServiceOption {
	return func(s *Service) {
		if size > 0 {
			s.eventBufferSize = size
		}
	}
}

// WithAvailability overrides the storage capability of the service.
func WithAvailability(available bool) ServiceOption {
	return func(s *Service) {
		s.available = available
	}
}

// WithServiceLogger sets the logger used for broker diagnostics.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service for the context called name.
func NewService(store Store, name string, opts ...ServiceOption) *Service {
	s := &Service{
		store:           store,
		name:            name,
		available:       store != nil,
		eventBufferSize: defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.available = false
	}
	return s
}

// Name returns the context name used as write origin.
func (s *Service) Name() string {
	return s.name
}

// Available reports whether the storage capability is present.
func (s *Service) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

func (s *Service) originCtx(ctx context.Context) context.Context {
	if OriginFrom(ctx) != "" {
		return ctx
	}
	return WithOrigin(ctx, s.name)
}

func unavailable(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Get reads keys from the store.
func (s *Service) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if !s.Available() {
		return nil, ErrStoreUnavailable
	}
	items, err := s.store.Get(ctx, keys...)
	if err != nil {
		return nil, unavailable("get", err)
	}
	if items == nil {
		items = map[string]json.RawMessage{}
	}
	return items, nil
}

// GetValue decodes a single key into v. It reports false when the key is absent.
func (s *Service) GetValue(ctx context.Context, key string, v any) (bool, error) {
	items, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	raw, ok := items[key]
	if !ok || raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set writes raw items to the store.
func (s *Service) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if !s.Available() {
		return ErrStoreUnavailable
	}
	if len(items) == 0 {
		return nil
	}
	if err := s.store.Set(s.originCtx(ctx), items); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// SetValue encodes v and writes it under key.
func (s *Service) SetValue(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, map[string]json.RawMessage{key: data})
}

// Remove deletes keys from the store.
func (s *Service) Remove(ctx context.Context, keys ...string) error {
	if !s.Available() {
		return ErrStoreUnavailable
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.store.Remove(s.originCtx(ctx), keys...); err != nil {
		return unavailable("remove", err)
	}
	return nil
}

// Keys lists every stored key when the store can enumerate them.
func (s *Service) Keys(ctx context.Context) ([]string, error) {
	if !s.Available() {
		return nil, ErrStoreUnavailable
	}
	e, ok := s.store.(Enumerable)
	if !ok {
		return nil, errors.New("store does not support listing keys")
	}
	keys, err := e.Keys(ctx)
	if err != nil {
		return nil, unavailable("keys", err)
	}
	return keys, nil
}

// Versioned returns the revision API of the store, if it has one.
func (s *Service) Versioned() (Versioned, bool) {
	v, ok := s.store.(Versioned)
	return v, ok && s.Available()
}

// CompareAndSet writes key only when it is still at rev.
func (s *Service) CompareAndSet(ctx context.Context, key string, rev uint64, value json.RawMessage) error {
	v, ok := s.Versioned()
	if !ok {
		return errors.New("store does not support revisions")
	}
	err := v.CompareAndSet(s.originCtx(ctx), key, rev, value)
	if err != nil && !errors.Is(err, ErrConflict) {
		return unavailable("compare-and-set", err)
	}
	return err
}

// Watch observes changes in the store if supported.
// Events are buffered so a slow consumer never stalls the store's watcher.
func (s *Service) Watch(ctx context.Context, pattern string) (<-chan ChangeSet, error) {
	if !s.Available() {
		return nil, ErrStoreUnavailable
	}
	w, ok := s.store.(Watchable)
	if !ok {
		return nil, errors.New("store does not support watching")
	}
	upstream, err := w.Watch(ctx, pattern)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	size := s.eventBufferSize
	s.mu.RUnlock()

	out := make(chan ChangeSet, size)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cs, ok := <-upstream:
				if !ok {
					return nil
				}
				select {
				case out <- cs:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		if s.logger != nil {
			s.logger.Error("change broker failed", "context", s.name, "error", err)
		}
	}))
	return out, nil
}

// Subscription is an active change handler registered with Subscribe.
type Subscription struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Unsubscribe stops delivery. It is safe to call more than once and from the handler.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(sub.cancel)
}

// Done is closed once the handler will not be invoked anymore.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Subscribe invokes handler for every change matching pattern, in commit order,
// until ctx is done or the subscription is cancelled.
func (s *Service) Subscribe(ctx context.Context, pattern string, handler func(ChangeSet)) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	events, err := s.Watch(subCtx, pattern)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	lifecycle.Go(subCtx, func(ctx context.Context) error {
		defer close(sub.done)
		for cs := range events {
			if ctx.Err() != nil {
				return nil
			}
			handler(cs)
		}
		return nil
	})
	return sub, nil
}
