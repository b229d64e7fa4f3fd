package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/notely/pkg/core"
)

// envelope is the on-disk form of a single key.
type envelope struct {
	Rev       uint64          `json:"rev"`
	Origin    string          `json:"origin,omitempty"`
	UpdatedAt int64           `json:"updatedAt"` // Unix nanoseconds
	Value     json.RawMessage `json:"value"`
}

// decodeEnvelope accepts files edited by hand: anything that is not an
// envelope is taken as the raw value at revision 0.
func decodeEnvelope(data []byte) *envelope {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Value != nil {
		return &env
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return &envelope{Value: bytes.TrimSpace(raw)}
}

// stale reports whether next is not newer than prev.
func stale(prev, next *envelope) bool {
	if prev == nil || next == nil || next.Rev == 0 {
		return false
	}
	if next.UpdatedAt != prev.UpdatedAt {
		return next.UpdatedAt < prev.UpdatedAt
	}
	return next.Rev <= prev.Rev
}

// subscriber is the receiving end of one Watch call. It keeps the last
// envelope it reported per key and diffs every observation against it.
// Change sets queue without bound; a pump goroutine hands them to ch in order.
type subscriber struct {
	pattern string
	logger  *slog.Logger

	mu       sync.Mutex
	baseline map[string]*envelope
	queue    []core.ChangeSet
	closed   bool

	wake chan struct{}
	done chan struct{}
	ch   chan core.ChangeSet
}

func newSubscriber(pattern string, baseline map[string]*envelope, logger *slog.Logger) *subscriber {
	sub := &subscriber{
		pattern:  pattern,
		logger:   logger,
		baseline: baseline,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		ch:       make(chan core.ChangeSet),
	}
	go sub.pump()
	return sub
}

func (sub *subscriber) events() <-chan core.ChangeSet {
	return sub.ch
}

// pump delivers queued change sets in order until close.
func (sub *subscriber) pump() {
	defer close(sub.ch)
	for {
		select {
		case <-sub.wake:
		case <-sub.done:
			return
		}
		for {
			sub.mu.Lock()
			if len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			cs := sub.queue[0]
			sub.queue[0] = core.ChangeSet{}
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()

			select {
			case sub.ch <- cs:
			case <-sub.done:
				return
			}
		}
	}
}

func (sub *subscriber) pending() int {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return len(sub.queue)
}

// apply records observations (nil means the key is gone) and delivers the
// resulting changes. Observations older than the baseline are dropped.
func (sub *subscriber) apply(_ context.Context, observed map[string]*envelope, origin string, at int64) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}

	changes := make(map[string]core.Change, len(observed))
	for key, next := range observed {
		prev := sub.baseline[key]
		switch {
		case next == nil && prev == nil:
			continue
		case next == nil:
			delete(sub.baseline, key)
			changes[key] = core.Change{Old: prev.Value}
		case stale(prev, next):
			continue
		default:
			sub.baseline[key] = next
			c := core.Change{New: next.Value}
			if prev != nil {
				if bytes.Equal(prev.Value, next.Value) {
					continue
				}
				c.Old = prev.Value
			}
			changes[key] = c
		}
	}

	cs, ok := core.ChangeSet{
		Changes:   changes,
		Area:      core.AreaLocal,
		Origin:    origin,
		Timestamp: at,
	}.Filter(sub.pattern)
	if !ok {
		return
	}

	sub.queue = append(sub.queue, cs)
	if n := len(sub.queue); n%1024 == 0 {
		sub.logger.Warn("watcher falling behind", "queued", n)
	}
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		sub.queue = nil
		close(sub.done)
	}
}

func (sub *subscriber) keys() []string {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	keys := make([]string, 0, len(sub.baseline))
	for k := range sub.baseline {
		keys = append(keys, k)
	}
	return keys
}
