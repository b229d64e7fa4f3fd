package fs

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

	"github.com/aretw0/lifecycle"
	"github.com/peterbourgon/diskv/v3"

	"github.com/aretw0/notely/pkg/core"
)

const (
	dataDir  = "data"
	tempDir  = "tmp"
	lockFile = "notely.lock"

	defaultLockTimeout = 2 * time.Second
	defaultDebounce    = 50 * time.Millisecond
)

// Store implements core.Store on a directory shared by every process of the host.
// Each key is one file holding an envelope with the value and its revision.
type Store struct {
	Path   string
	d      *diskv.Diskv
	lock   *fileLock
	config Config

	mu             sync.RWMutex
	subscribers    map[*subscriber]struct{}
	activeWatchers int
	lastReconcile  *time.Time
}

// Config holds the configuration for the filesystem store.
type Config struct {
	Path         string
	ReadOnly     bool
	MustExist    bool
	LockTimeout  time.Duration // zero means 2s
	Debounce     time.Duration // zero means 50ms
	Logger       *slog.Logger
	ErrorHandler func(error)
	Clock        core.Clock
}

// NewStore creates a filesystem-backed store rooted at config.Path.
func NewStore(config Config) *Store {
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaultLockTimeout
	}
	if config.Debounce <= 0 {
		config.Debounce = defaultDebounce
	}
	if config.Clock == nil {
		config.Clock = core.SystemClock
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	return &Store{
		Path: config.Path,
		d: diskv.New(diskv.Options{
			BasePath:          filepath.Join(config.Path, dataDir),
			TempDir:           filepath.Join(config.Path, tempDir),
			AdvancedTransform: flatTransform,
			InverseTransform:  flatInverseTransform,
			CacheSizeMax:      0, // other processes write behind our back
		}),
		lock:        newFileLock(filepath.Join(config.Path, lockFile), config.LockTimeout),
		config:      config,
		subscribers: make(map[*subscriber]struct{}),
	}
}

func flatTransform(key string) *diskv.PathKey {
	return &diskv.PathKey{Path: []string{}, FileName: key}
}

func flatInverseTransform(pk *diskv.PathKey) string {
	return pk.FileName
}

// Initialize creates the store directories.
func (s *Store) Initialize(ctx context.Context) error {
	if s.config.MustExist || s.config.ReadOnly {
		info, err := os.Stat(s.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("store path does not exist: %s", s.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", s.Path)
		}
		if s.config.ReadOnly {
			return nil
		}
	}

	for _, dir := range []string{dataDir, tempDir} {
		if err := os.MkdirAll(filepath.Join(s.Path, dir), 0755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return nil
}

// Available implements core.Prober.
func (s *Store) Available(ctx context.Context) error {
	info, err := os.Stat(filepath.Join(s.Path, dataDir))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("store data path is not a directory: %s", info.Name())
	}
	return nil
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid store key %q", key)
	}
	return nil
}

// readEnvelope returns nil without error when key is absent.
func (s *Store) readEnvelope(key string) (*envelope, error) {
	data, err := s.d.Read(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return decodeEnvelope(data), nil
}

func (s *Store) writeEnvelope(key string, env *envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.d.Write(key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Get implements core.Store.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		if err := validateKey(key); err != nil {
			return nil, err
		}
		env, err := s.readEnvelope(key)
		if err != nil {
			return nil, err
		}
		if env != nil {
			out[key] = env.Value
		}
	}
	return out, nil
}

// Set implements core.Store. Each key gets its revision bumped under the store lock.
func (s *Store) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if s.config.ReadOnly {
		return core.ErrReadOnly
	}
	for key := range items {
		if err := validateKey(key); err != nil {
			return err
		}
	}

	unlock, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	origin := core.OriginFrom(ctx)
	written := make(map[string]*envelope, len(items))
	for _, key := range sortedKeys(items) {
		prev, err := s.readEnvelope(key)
		if err != nil {
			unlock()
			return err
		}
		env := s.nextEnvelope(prev, origin, items[key])
		if err := s.writeEnvelope(key, env); err != nil {
			unlock()
			return err
		}
		written[key] = env
	}
	unlock()

	s.publish(ctx, written)
	return nil
}

// Remove implements core.Store.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if s.config.ReadOnly {
		return core.ErrReadOnly
	}
	unlock, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	removed := make(map[string]*envelope, len(keys))
	for _, key := range keys {
		if err := validateKey(key); err != nil {
			unlock()
			return err
		}
		if !s.d.Has(key) {
			continue
		}
		if err := s.d.Erase(key); err != nil && !errors.Is(err, os.ErrNotExist) {
			unlock()
			return fmt.Errorf("failed to remove %s: %w", key, err)
		}
		removed[key] = nil
	}
	unlock()

	s.publish(ctx, removed)
	return nil
}

// Keys implements core.Enumerable.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(filepath.Join(s.Path, dataDir)); os.IsNotExist(err) {
		return []string{}, nil
	}
	keys := make([]string, 0)
	for key := range s.d.Keys(ctx.Done()) {
		if validateKey(key) == nil {
			keys = append(keys, key)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Revision implements core.Versioned.
func (s *Store) Revision(ctx context.Context, key string) (uint64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	env, err := s.readEnvelope(key)
	if err != nil || env == nil {
		return 0, err
	}
	return env.Rev, nil
}

// CompareAndSet implements core.Versioned.
func (s *Store) CompareAndSet(ctx context.Context, key string, rev uint64, value json.RawMessage) error {
	if s.config.ReadOnly {
		return core.ErrReadOnly
	}
	if err := validateKey(key); err != nil {
		return err
	}

	unlock, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	prev, err := s.readEnvelope(key)
	if err != nil {
		unlock()
		return err
	}
	current := uint64(0)
	if prev != nil {
		current = prev.Rev
	}
	if current != rev {
		unlock()
		return fmt.Errorf("%s at revision %d, expected %d: %w", key, current, rev, core.ErrConflict)
	}
	env := s.nextEnvelope(prev, core.OriginFrom(ctx), value)
	if err := s.writeEnvelope(key, env); err != nil {
		unlock()
		return err
	}
	unlock()

	s.publish(ctx, map[string]*envelope{key: env})
	return nil
}

func (s *Store) nextEnvelope(prev *envelope, origin string, value json.RawMessage) *envelope {
	rev := uint64(1)
	if prev != nil {
		rev = prev.Rev + 1
	}
	return &envelope{
		Rev:       rev,
		Origin:    origin,
		UpdatedAt: s.config.Clock().UnixNano(),
		Value:     value,
	}
}

// snapshot reads every envelope currently on disk.
func (s *Store) snapshot(ctx context.Context) (map[string]*envelope, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*envelope, len(keys))
	for _, key := range keys {
		env, err := s.readEnvelope(key)
		if err != nil {
			return nil, err
		}
		if env != nil {
			out[key] = env
		}
	}
	return out, nil
}

// publish hands the outcome of an own write to every in-process watcher.
// The later filesystem echo is suppressed by the watcher baseline.
func (s *Store) publish(ctx context.Context, written map[string]*envelope) {
	if len(written) == 0 {
		return
	}
	s.mu.RLock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	origin := core.OriginFrom(ctx)
	now := s.config.Clock().UnixMilli()
	for _, sub := range subs {
		sub.apply(ctx, written, origin, now)
	}
}

// Watch implements core.Watchable. Every call runs its own watch worker.
func (s *Store) Watch(ctx context.Context, pattern string) (<-chan core.ChangeSet, error) {
	baseline, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	sub := newSubscriber(pattern, baseline, s.config.Logger)
	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	w := newWatchWorker(s, sub)
	if err := w.Start(ctx); err != nil {
		s.dropSubscriber(sub)
		return nil, err
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := w.Stop(stopCtx)
		s.dropSubscriber(sub)
		return err
	}, lifecycle.WithErrorHandler(s.reportError))

	return sub.events(), nil
}

func (s *Store) dropSubscriber(sub *subscriber) {
	s.mu.Lock()
	delete(s.subscribers, sub)
	s.mu.Unlock()
	sub.close()
}

func (s *Store) reportError(err error) {
	if s.config.ErrorHandler != nil {
		s.config.ErrorHandler(err)
		return
	}
	s.config.Logger.Error("fs store error", "error", err)
}

// keyForPath maps a file below the data directory back to its key.
func (s *Store) keyForPath(path string) (string, bool) {
	rel, err := filepath.Rel(filepath.Join(s.Path, dataDir), path)
	if err != nil || rel == "." || strings.ContainsRune(rel, filepath.Separator) {
		return "", false
	}
	if validateKey(rel) != nil {
		return "", false
	}
	return rel, true
}

func sortedKeys(items map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
