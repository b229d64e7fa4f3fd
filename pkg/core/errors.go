package core

import "errors"

// Common errors.
var (
	// ErrStoreUnavailable is returned when the host storage API is absent or denied.
	ErrStoreUnavailable = errors.New("storage unavailable")
	// ErrSchedulerUnavailable is returned when timers cannot be armed.
	ErrSchedulerUnavailable = errors.New("scheduler unavailable")
	// ErrSinkUnavailable is returned when alerts cannot be presented.
	ErrSinkUnavailable = errors.New("notifications unavailable")
	// ErrConflict is returned by CompareAndSet when the key changed since it was read.
	ErrConflict = errors.New("revision conflict")
	// ErrLockTimeout is returned when a store lock could not be acquired in time.
	ErrLockTimeout = errors.New("lock timeout")
	// ErrReadOnly is returned by write operations on a read-only store.
	ErrReadOnly = errors.New("store is in read-only mode")
)
