package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// AreaLocal is the only storage area notely writes to.
const AreaLocal = "local"

// Store defines the contract of the asynchronous persistent key-value store.
// Values are JSON documents; concurrent calls from different contexts are not
// serialized by the store.
type Store interface {
	// Get returns the values of the requested keys. Absent keys are omitted.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)

	// Set writes every item of the mapping.
	Set(ctx context.Context, items map[string]json.RawMessage) error

	// Remove deletes keys. Removing an absent key is not an error.
	Remove(ctx context.Context, keys ...string) error

	// Initialize ensures the underlying storage is ready (directories, handles).
	Initialize(ctx context.Context) error
}

// Watchable is implemented by stores with a change-notification channel.
type Watchable interface {
	// Watch streams every committed change whose key matches pattern until ctx is done.
	Watch(ctx context.Context, pattern string) (<-chan ChangeSet, error)
}

// Versioned is implemented by stores that keep a per-key revision counter,
// which enables optimistic concurrency on read-modify-write cycles.
type Versioned interface {
	// Revision returns the current revision of key (0 when absent).
	Revision(ctx context.Context, key string) (uint64, error)

	// CompareAndSet writes value only if key is still at rev, otherwise ErrConflict.
	CompareAndSet(ctx context.Context, key string, rev uint64, value json.RawMessage) error
}

// Enumerable is implemented by stores able to list their keys (used by snapshots).
type Enumerable interface {
	Keys(ctx context.Context) ([]string, error)
}

// Prober is implemented by stores able to report availability without side effects.
type Prober interface {
	Available(ctx context.Context) error
}

// Change is the before/after pair of a single key. A nil New means removal.
type Change struct {
	Old json.RawMessage `json:"oldValue,omitempty"`
	New json.RawMessage `json:"newValue,omitempty"`
}

// Removed reports whether the change deleted the key.
func (c Change) Removed() bool {
	return c.New == nil
}

// ChangeSet groups the changes committed by one write.
type ChangeSet struct {
	Changes   map[string]Change
	Area      string
	Origin    string // context that performed the write, empty if unknown
	Timestamp int64  // Unix milliseconds
}

// Has reports whether key is part of the change set.
func (cs ChangeSet) Has(key string) bool {
	_, ok := cs.Changes[key]
	return ok
}

// Keys returns the changed keys in lexical order.
func (cs ChangeSet) Keys() []string {
	keys := make([]string, 0, len(cs.Changes))
	for k := range cs.Changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String implements lifecycle.Event.
func (cs ChangeSet) String() string {
	return fmt.Sprintf("%s change [%s] from %q", cs.Area, strings.Join(cs.Keys(), ","), cs.Origin)
}

// Filter keeps the changes whose key matches pattern.
// The second return value is false when nothing matched.
func (cs ChangeSet) Filter(pattern string) (ChangeSet, bool) {
	if matchAll(pattern) {
		return cs, len(cs.Changes) > 0
	}
	out := cs
	out.Changes = make(map[string]Change, len(cs.Changes))
	for k, c := range cs.Changes {
		if MatchKey(pattern, k) {
			out.Changes[k] = c
		}
	}
	return out, len(out.Changes) > 0
}

// MatchKey reports whether key matches the doublestar pattern.
// An empty pattern matches everything; malformed patterns match nothing.
func MatchKey(pattern, key string) bool {
	if matchAll(pattern) {
		return true
	}
	ok, err := doublestar.Match(pattern, key)
	return err == nil && ok
}

func matchAll(pattern string) bool {
	return pattern == "" || pattern == "*" || pattern == "**" || pattern == "**/*"
}

type contextKey string

// OriginKey is the context key carrying the name of the writing context.
const OriginKey contextKey = "origin"

// WithOrigin tags ctx with the writing context's name.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, OriginKey, origin)
}

// OriginFrom extracts the writing context's name, if any.
func OriginFrom(ctx context.Context) string {
	if v, ok := ctx.Value(OriginKey).(string); ok {
		return v
	}
	return ""
}
