package fs

import (
	"sort"
	"sync"
	"time"
)

// debouncer coalesces bursts of filesystem events on the same keys so the
// watcher reads each file once per burst.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending map[string]struct{}
	stopped bool
	wg      sync.WaitGroup
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		pending: make(map[string]struct{}),
	}
}

// add queues key and schedules flush after the quiet period.
func (d *debouncer) add(key string, flush func(keys []string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[key] = struct{}{}
	if d.timer != nil {
		return
	}
	d.wg.Add(1)
	d.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		keys := make([]string, 0, len(d.pending))
		for k := range d.pending {
			keys = append(keys, k)
		}
		d.pending = make(map[string]struct{})
		d.timer = nil
		d.mu.Unlock()

		sort.Strings(keys)
		flush(keys)
	})
}

// stopAndWait drops pending keys and waits up to timeout for a running flush.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil && d.timer.Stop() {
		d.timer = nil
		d.wg.Done()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
