package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/notely/pkg/core"
)

// options holds the internal configuration of a notely host.
type options struct {
	store        core.Store
	scheduler    core.Scheduler
	sink         core.Sink
	logger       *slog.Logger
	clock        core.Clock
	adapter      string
	capabilities *core.Capabilities
	config       map[string]interface{}
}

// Option defines a functional option for configuring a host.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter: "fs",
		clock:   core.SystemClock,
		config:  make(map[string]interface{}),
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStore injects a storage adapter. The adapter option is ignored then.
func WithStore(store core.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithScheduler injects a timer implementation instead of the durable one.
func WithScheduler(s core.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithSink sets where reminders are presented. Defaults to the log.
func WithSink(s core.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithClock replaces the wall clock.
func WithClock(c core.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithAdapter selects the storage adapter by name: "fs" (default) or "memory".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithCapabilities overrides the probed host capabilities, for instance to
// simulate a host without a storage or timer API.
func WithCapabilities(c core.Capabilities) Option {
	return func(o *options) {
		o.capabilities = &c
	}
}

// WithEventBuffer sets the size of the change broker buffer.
// Zero means default (100).
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.config["event_buffer"] = size
	}
}

// WithOptimisticConcurrency turns note writes into compare-and-set cycles
// retried up to retries times. By default concurrent writes may lose updates.
func WithOptimisticConcurrency(retries int) Option {
	return func(o *options) {
		o.config["optimistic"] = true
		o.config["retries"] = retries
	}
}

// WithLockTimeout bounds how long a write waits for the store lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.config["lock_timeout"] = d
	}
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithMustExist requires the store directory to exist already.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithWatcherErrorHandler registers a callback for runtime watcher failures
// (e.g. permission denied) which are otherwise only logged.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.config["watcher_error_handler"] = fn
	}
}

// WithReadOnly enables read-only mode.
// In this mode:
// 1. Set and Remove return ErrReadOnly.
// 2. Initialization (Mkdir) is skipped.
// 3. Dev Safety Lock (go run temp dir) is BYPASSED (uses real path).
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

// WithDevSafety controls the "Sandbox" safety mechanism when running via `go run`.
// By default (true), notely forces a temporary directory to prevent accidental data loss.
// Setting this to false allows operating on the real store even during `go run`.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}
