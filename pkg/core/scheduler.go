package core

import (
	"context"
	"time"
)

// Alarm is a named timer that became due.
type Alarm struct {
	ID          string
	ScheduledAt time.Time
}

// AlarmHandler is the single global handler invoked when a timer fires.
type AlarmHandler func(ctx context.Context, alarm Alarm)

// Scheduler arms named one-shot timers that fire at or after an absolute time.
// A timer fires at most once per id; lateness is unbounded.
type Scheduler interface {
	// Arm schedules id to fire at fireAt. Re-arming a pending id overwrites it.
	Arm(ctx context.Context, id string, fireAt time.Time) error

	// OnAlarm registers the global handler. The last registration wins.
	OnAlarm(handler AlarmHandler)
}

// Clock returns the current time. It is swapped in tests.
type Clock func() time.Time

// SystemClock is the default Clock.
func SystemClock() time.Time {
	return time.Now()
}
