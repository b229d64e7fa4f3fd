// Package snapshot exports and imports the whole store, for backups and for
// loading data captured elsewhere.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/notely/pkg/adapters/fs"
	"github.com/aretw0/notely/pkg/core"
)

// Version is the snapshot format version.
const Version = 1

// Snapshot is a point-in-time copy of stored items.
type Snapshot struct {
	Version    int                        `json:"version"`
	ExportedAt int64                      `json:"exportedAt"` // epoch ms
	Items      map[string]json.RawMessage `json:"items"`
}

// Keys returns the item keys in lexical order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Items))
	for k := range s.Items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Options narrows what Export and Import touch.
type Options struct {
	// Pattern selects keys (doublestar glob). Empty means every key.
	Pattern string
	// Replace removes matching stored keys that are absent from the snapshot.
	Replace bool
	Clock   core.Clock
}

// Export reads every matching key through svc.
func Export(ctx context.Context, svc *core.Service, opts Options) (*Snapshot, error) {
	keys, err := svc.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	selected := keys[:0:0]
	for _, k := range keys {
		if core.MatchKey(opts.Pattern, k) {
			selected = append(selected, k)
		}
	}

	items := map[string]json.RawMessage{}
	if len(selected) > 0 {
		items, err = svc.Get(ctx, selected...)
		if err != nil {
			return nil, err
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = core.SystemClock
	}
	return &Snapshot{Version: Version, ExportedAt: clock().UnixMilli(), Items: items}, nil
}

// Import writes the matching snapshot items in a single Set.
func Import(ctx context.Context, svc *core.Service, s *Snapshot, opts Options) (int, error) {
	if s.Version > Version {
		return 0, fmt.Errorf("snapshot version %d is newer than supported %d", s.Version, Version)
	}
	items := make(map[string]json.RawMessage, len(s.Items))
	for k, v := range s.Items {
		if core.MatchKey(opts.Pattern, k) {
			items[k] = v
		}
	}

	if opts.Replace {
		keys, err := svc.Keys(ctx)
		if err != nil {
			return 0, fmt.Errorf("list keys: %w", err)
		}
		var stale []string
		for _, k := range keys {
			if _, keep := items[k]; !keep && core.MatchKey(opts.Pattern, k) {
				stale = append(stale, k)
			}
		}
		if err := svc.Remove(ctx, stale...); err != nil {
			return 0, err
		}
	}

	if err := svc.Set(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// SerializerFor picks a serializer by file extension, defaulting to JSON.
func SerializerFor(path string) (Serializer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return JSONSerializer{}, nil
	}
	s, ok := DefaultSerializers()[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported snapshot format %q", ext)
	}
	return s, nil
}

// WriteFile exports into path atomically.
func WriteFile(ctx context.Context, svc *core.Service, path string, opts Options) (*Snapshot, error) {
	ser, err := SerializerFor(path)
	if err != nil {
		return nil, err
	}
	s, err := Export(ctx, svc, opts)
	if err != nil {
		return nil, err
	}
	data, err := ser.Encode(*s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := fs.WriteFileAtomic(path, data, 0644); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadFile imports the snapshot stored at path.
func ReadFile(ctx context.Context, svc *core.Service, path string, opts Options) (int, error) {
	ser, err := SerializerFor(path)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s, err := ser.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return Import(ctx, svc, s, opts)
}
