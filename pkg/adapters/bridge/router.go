// Package bridge routes fire-and-forget messages between contexts of one host.
package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notely/pkg/core"
)

// Router implements core.Bridge and core.TabQuery in process.
// Each target has at most one listener; delivery runs on its own goroutine.
type Router struct {
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[string]*registration
	active    string
	wg        sync.WaitGroup
}

type registration struct {
	listener core.Listener
}

// NewRouter creates an empty Router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		logger:    logger,
		listeners: make(map[string]*registration),
	}
}

// Register installs listener for target, replacing any previous one.
// The returned func removes it; calling it after a replacement is a no-op.
func (r *Router) Register(target string, listener core.Listener) func() {
	reg := &registration{listener: listener}
	r.mu.Lock()
	r.listeners[target] = reg
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.listeners[target] == reg {
			delete(r.listeners, target)
		}
	}
}

// Send implements core.Bridge. Messages without a listener are dropped.
func (r *Router) Send(ctx context.Context, target string, msg core.Message) {
	r.mu.RLock()
	reg, ok := r.listeners[target]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("message dropped, no listener", "target", target, "type", msg.Type)
		return
	}

	r.wg.Add(1)
	lifecycle.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		defer r.wg.Done()
		reg.listener(ctx, msg)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		r.logger.Error("listener failed", "target", target, "error", err)
	}))
}

// SetActive records the page that has focus. An empty target means none.
func (r *Router) SetActive(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = target
}

// ActiveTarget implements core.TabQuery.
func (r *Router) ActiveTarget(ctx context.Context) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, r.active != ""
}

// Wait blocks until every message sent so far was handled.
func (r *Router) Wait() {
	r.wg.Wait()
}
