package notely

import (
	"log/slog"
	"time"

	"github.com/aretw0/notely/internal/platform"
	"github.com/aretw0/notely/pkg/core"
)

// Version exposes the version of the library.
// See version.go for the implementation using go:embed.

// --- Types ---

// Host is one notely process: a store, a scheduler, a sink and a bridge
// shared by every context it creates.
type Host = platform.Host

// Note is a user note as persisted under the "notes" key.
type Note = core.Note

// Capabilities reports which host APIs were found usable.
type Capabilities = core.Capabilities

// --- Errors ---

var (
	ErrStoreUnavailable     = core.ErrStoreUnavailable
	ErrSchedulerUnavailable = core.ErrSchedulerUnavailable
	ErrConflict             = core.ErrConflict
	ErrReadOnly             = core.ErrReadOnly
)

// --- Configuration ---

// Option defines a functional option for configuring a host.
type Option = platform.Option

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithAdapter selects the storage adapter by name ("fs" or "memory").
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithStore allows injecting a custom storage adapter.
func WithStore(store core.Store) Option {
	return platform.WithStore(store)
}

// WithScheduler allows injecting a custom timer implementation.
func WithScheduler(s core.Scheduler) Option {
	return platform.WithScheduler(s)
}

// WithSink sets where reminders are presented.
func WithSink(s core.Sink) Option {
	return platform.WithSink(s)
}

// WithClock replaces the wall clock.
func WithClock(c core.Clock) Option {
	return platform.WithClock(c)
}

// WithCapabilities overrides the probed capabilities.
func WithCapabilities(c Capabilities) Option {
	return platform.WithCapabilities(c)
}

// WithEventBuffer allows specifying the size of the change broker buffer.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithOptimisticConcurrency makes note list writes compare-and-set.
func WithOptimisticConcurrency(retries int) Option {
	return platform.WithOptimisticConcurrency(retries)
}

// WithLockTimeout bounds how long a write waits for the store lock.
func WithLockTimeout(d time.Duration) Option {
	return platform.WithLockTimeout(d)
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithMustExist ensures the store directory must already exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithReadOnly opens the store without write access.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithDevSafety toggles the dev sandbox for go run and go test binaries.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// --- Factory ---

// New creates a host around the store at path.
func New(path string, opts ...Option) (*Host, error) {
	return platform.New(path, opts...)
}

// Init opens a store explicitly, without the rest of the host.
func Init(path string, opts ...Option) (core.Store, error) {
	return platform.Init(path, opts...)
}

// --- Safety & Utils ---

// ResolveStorePath determines the actual store path based on safety rules.
func ResolveStorePath(userPath string, forceTemp bool) string {
	return platform.ResolveStorePath(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// FindStoreRoot recursively looks upwards for a store root indicator.
func FindStoreRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}
