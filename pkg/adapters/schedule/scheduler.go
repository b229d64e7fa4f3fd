// Package schedule implements a durable core.Scheduler. Timers are files in a
// directory shared by every process, so a reminder armed by a short-lived
// process fires in whichever process runs the scheduler worker.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/peterbourgon/diskv/v3"

	"github.com/aretw0/notely/pkg/core"
)

const (
	entriesDir = "alarms"
	tempDir    = "alarms.tmp"
)

// entry is the persisted form of an armed timer.
type entry struct {
	ID      string `json:"id"`
	FireAt  int64  `json:"fireAt"`  // epoch ms
	ArmedAt int64  `json:"armedAt"` // epoch ms
}

// Config holds the configuration of the durable scheduler.
type Config struct {
	Path   string
	Logger *slog.Logger
	Clock  core.Clock
}

// Scheduler persists timers and delivers them through the registered handler
// while a worker created by NewWorker is running.
type Scheduler struct {
	Path   string
	d      *diskv.Diskv
	config Config

	mu       sync.Mutex
	handler  core.AlarmHandler
	wake     chan struct{}
	fired    int
	lastFire *time.Time
	running  int
}

// New creates a Scheduler rooted at config.Path.
func New(config Config) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Clock == nil {
		config.Clock = core.SystemClock
	}
	return &Scheduler{
		Path: config.Path,
		d: diskv.New(diskv.Options{
			BasePath: filepath.Join(config.Path, entriesDir),
			TempDir:  filepath.Join(config.Path, tempDir),
			AdvancedTransform: func(key string) *diskv.PathKey {
				return &diskv.PathKey{Path: []string{}, FileName: key}
			},
			InverseTransform: func(pk *diskv.PathKey) string {
				return pk.FileName
			},
		}),
		config: config,
		wake:   make(chan struct{}, 1),
	}
}

// Initialize creates the entry directories.
func (s *Scheduler) Initialize(ctx context.Context) error {
	for _, dir := range []string{entriesDir, tempDir} {
		if err := os.MkdirAll(filepath.Join(s.Path, dir), 0755); err != nil {
			return fmt.Errorf("failed to create scheduler directory: %w", err)
		}
	}
	return nil
}

// Available reports whether timers can be persisted.
func (s *Scheduler) Available(ctx context.Context) error {
	info, err := os.Stat(filepath.Join(s.Path, entriesDir))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("scheduler path is not a directory: %s", info.Name())
	}
	return nil
}

func validateID(id string) error {
	if id == "" || strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid alarm id %q", id)
	}
	return nil
}

// Arm implements core.Scheduler. It works without a running worker.
func (s *Scheduler) Arm(ctx context.Context, id string, fireAt time.Time) error {
	if err := validateID(id); err != nil {
		return err
	}
	data, err := json.Marshal(entry{
		ID:      id,
		FireAt:  fireAt.UnixMilli(),
		ArmedAt: s.config.Clock().UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := s.d.Write(id, data); err != nil {
		return fmt.Errorf("failed to arm %s: %w", id, err)
	}
	s.config.Logger.Debug("alarm armed", "id", id, "fire_at", fireAt)
	s.poke()
	return nil
}

// OnAlarm implements core.Scheduler.
func (s *Scheduler) OnAlarm(handler core.AlarmHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Pending lists the armed timers ordered by fire time.
func (s *Scheduler) Pending(ctx context.Context) ([]core.Alarm, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Alarm, 0, len(entries))
	for _, e := range entries {
		out = append(out, core.Alarm{ID: e.ID, ScheduledAt: time.UnixMilli(e.FireAt)})
	}
	return out, nil
}

func (s *Scheduler) entries(ctx context.Context) ([]entry, error) {
	if _, err := os.Stat(filepath.Join(s.Path, entriesDir)); os.IsNotExist(err) {
		return nil, nil
	}
	var out []entry
	for key := range s.d.Keys(ctx.Done()) {
		if validateID(key) != nil {
			continue
		}
		data, err := s.d.Read(key)
		if errors.Is(err, os.ErrNotExist) {
			continue // claimed meanwhile
		}
		if err != nil {
			return nil, err
		}
		var e entry
		if err := json.Unmarshal(data, &e); err != nil {
			s.config.Logger.Warn("skipping unreadable alarm", "id", key, "error", err)
			continue
		}
		e.ID = key
		out = append(out, e)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt == out[j].FireAt {
			return out[i].ID < out[j].ID
		}
		return out[i].FireAt < out[j].FireAt
	})
	return out, nil
}

// fireDue claims and delivers every due timer. It returns the fire time of
// the earliest timer still pending, zero when there is none.
func (s *Scheduler) fireDue(ctx context.Context) (time.Time, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return time.Time{}, err
	}

	now := s.config.Clock().UnixMilli()
	for _, e := range entries {
		if e.FireAt > now {
			return time.UnixMilli(e.FireAt), nil
		}
		// Erasing is the claim: only one process succeeds.
		if err := s.d.Erase(e.ID); err != nil {
			s.config.Logger.Debug("alarm claimed elsewhere", "id", e.ID)
			continue
		}
		s.deliver(ctx, core.Alarm{ID: e.ID, ScheduledAt: time.UnixMilli(e.FireAt)})
	}
	return time.Time{}, nil
}

func (s *Scheduler) deliver(ctx context.Context, alarm core.Alarm) {
	s.mu.Lock()
	handler := s.handler
	s.fired++
	now := time.Now()
	s.lastFire = &now
	s.mu.Unlock()

	s.config.Logger.Debug("alarm fired", "id", alarm.ID, "scheduled_at", alarm.ScheduledAt)
	if handler == nil {
		s.config.Logger.Warn("alarm fired without handler", "id", alarm.ID)
		return
	}
	handler(ctx, alarm)
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) setRunning(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running += delta
}
