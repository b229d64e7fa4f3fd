// Package notes implements the note repository shared by every context and the
// handler that turns fired reminder timers into notifications.
package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aretw0/notely/pkg/core"
)

// Concurrency selects how the read-modify-write of the notes sequence behaves.
type Concurrency int

const (
	// ConcurrencyRacy reads, modifies and writes back without coordination.
	// Concurrent writers may lose updates.
	ConcurrencyRacy Concurrency = iota
	// ConcurrencyOptimistic uses revision compare-and-set and retries on conflict.
	ConcurrencyOptimistic
)

const defaultRetries = 8

// maxReminderMinutes keeps the reminder delay within time.Duration.
const maxReminderMinutes = math.MaxInt64 / int64(time.Minute)

// Repository reads and mutates the "notes" key.
type Repository struct {
	svc       *core.Service
	scheduler core.Scheduler
	clock     core.Clock
	logger    *slog.Logger
	mode      Concurrency
	retries   int
}

// Option configures a Repository.
type Option func(*Repository)

// WithScheduler enables reminder arming. Without it, reminder notes are stored
// but no timer is armed.
func WithScheduler(s core.Scheduler) Option {
	return func(r *Repository) {
		r.scheduler = s
	}
}

// WithClock replaces the wall clock used for createdAt and fire times.
func WithClock(c core.Clock) Option {
	return func(r *Repository) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOptimisticConcurrency makes every mutation a compare-and-set retried up
// to retries times. Stores without revisions keep the racy behaviour.
func WithOptimisticConcurrency(retries int) Option {
	return func(r *Repository) {
		r.mode = ConcurrencyOptimistic
		if retries > 0 {
			r.retries = retries
		}
	}
}

// NewRepository creates a repository acting through svc.
func NewRepository(svc *core.Service, opts ...Option) *Repository {
	r := &Repository{
		svc:     svc,
		clock:   core.SystemClock,
		logger:  slog.New(slog.DiscardHandler),
		retries: defaultRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the effective concurrency mode.
func (r *Repository) Mode() Concurrency {
	if r.mode == ConcurrencyOptimistic {
		if _, ok := r.svc.Versioned(); ok {
			return ConcurrencyOptimistic
		}
	}
	return ConcurrencyRacy
}

// AddResult reports what AddNote achieved. Reminder steps are best-effort, so a
// nil error may come with Armed or PayloadStored false.
type AddResult struct {
	Index         int
	Note          core.Note
	AlarmID       string
	Armed         bool
	PayloadStored bool
}

// AddNote appends note to the sequence. Reminder notes with minutes > 0 also
// arm a timer and store the alert payload once the append succeeded. Delays
// beyond the representable range are clamped.
func (r *Repository) AddNote(ctx context.Context, note core.Note, minutes int) (AddResult, error) {
	if note.CreatedAt == nil {
		note.CreatedAt = core.Millis(r.clock().UnixMilli())
	}
	if note.Type == "" {
		note.Type = core.NoteJournal
	}
	note.Legacy = false

	encoded, err := json.Marshal(note)
	if err != nil {
		return AddResult{}, fmt.Errorf("encode note: %w", err)
	}

	var res AddResult
	err = r.mutate(ctx, func(list []json.RawMessage) ([]json.RawMessage, bool) {
		res.Index = len(list)
		return append(list, encoded), true
	})
	if err != nil {
		return AddResult{}, err
	}
	res.Note = note

	if note.Type != core.NoteNotification || minutes <= 0 {
		return res, nil
	}

	res.AlarmID = core.AlarmID(*note.CreatedAt)
	if r.scheduler != nil {
		delay := int64(minutes)
		if delay > maxReminderMinutes {
			delay = maxReminderMinutes
		}
		fireAt := r.clock().Add(time.Duration(delay) * time.Minute)
		if err := r.scheduler.Arm(ctx, res.AlarmID, fireAt); err != nil {
			r.logger.Warn("failed to arm reminder", "alarm", res.AlarmID, "error", err)
		} else {
			res.Armed = true
		}
	} else {
		r.logger.Warn("scheduler unavailable, reminder not armed", "alarm", res.AlarmID)
	}

	payload := core.ReminderPayload{Title: note.Title, Text: note.Text}
	if err := r.svc.SetValue(ctx, core.PayloadKey(res.AlarmID), payload); err != nil {
		r.logger.Warn("failed to store reminder payload", "alarm", res.AlarmID, "error", err)
	} else {
		res.PayloadStored = true
	}
	return res, nil
}

// List returns the normalized notes. A missing or malformed sequence is empty.
func (r *Repository) List(ctx context.Context) ([]core.Note, error) {
	items, err := r.svc.Get(ctx, core.KeyNotes)
	if err != nil {
		return nil, err
	}
	return r.Decode(items[core.KeyNotes]), nil
}

// Decode normalizes a raw "notes" value. Elements that are neither strings nor
// objects become empty notes so positions stay aligned with the stored sequence.
func (r *Repository) Decode(raw json.RawMessage) []core.Note {
	list := decodeList(raw)
	notes := make([]core.Note, len(list))
	for i, el := range list {
		if err := json.Unmarshal(el, &notes[i]); err != nil {
			r.logger.Debug("unreadable note element", "index", i, "error", err)
			notes[i] = core.Note{}
		}
	}
	return notes
}

// DeleteNoteAt removes the note at index. Out of range leaves the sequence
// untouched and performs no write.
func (r *Repository) DeleteNoteAt(ctx context.Context, index int) error {
	return r.mutate(ctx, func(list []json.RawMessage) ([]json.RawMessage, bool) {
		if index < 0 || index >= len(list) {
			return list, false
		}
		return append(list[:index:index], list[index+1:]...), true
	})
}

// EditNoteAt replaces title and text at index and keeps every other field.
// Legacy string notes become structured notes with a fresh createdAt.
func (r *Repository) EditNoteAt(ctx context.Context, index int, title, text string) error {
	var encodeErr error
	err := r.mutate(ctx, func(list []json.RawMessage) ([]json.RawMessage, bool) {
		if index < 0 || index >= len(list) {
			return list, false
		}
		el, err := r.editElement(list[index], title, text)
		if err != nil {
			encodeErr = err
			return list, false
		}
		out := append([]json.RawMessage(nil), list...)
		out[index] = el
		return out, true
	})
	if err != nil {
		return err
	}
	return encodeErr
}

func (r *Repository) editElement(el json.RawMessage, title, text string) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(el, &fields); err != nil || fields == nil {
		return json.Marshal(core.Note{
			Title:     title,
			Text:      text,
			CreatedAt: core.Millis(r.clock().UnixMilli()),
		})
	}
	t, _ := json.Marshal(title)
	x, _ := json.Marshal(text)
	fields["title"] = t
	fields["text"] = x
	return json.Marshal(fields)
}

// mutate runs one read-modify-write cycle of the sequence. fn reports whether
// anything changed; unchanged cycles perform no write.
func (r *Repository) mutate(ctx context.Context, fn func([]json.RawMessage) ([]json.RawMessage, bool)) error {
	v, versioned := r.svc.Versioned()
	if r.mode != ConcurrencyOptimistic || !versioned {
		items, err := r.svc.Get(ctx, core.KeyNotes)
		if err != nil {
			return err
		}
		next, changed := fn(decodeList(items[core.KeyNotes]))
		if !changed {
			return nil
		}
		return r.svc.SetValue(ctx, core.KeyNotes, next)
	}

	for attempt := 0; ; attempt++ {
		rev, err := v.Revision(ctx, core.KeyNotes)
		if err != nil {
			return fmt.Errorf("read notes revision: %w", err)
		}
		items, err := r.svc.Get(ctx, core.KeyNotes)
		if err != nil {
			return err
		}
		next, changed := fn(decodeList(items[core.KeyNotes]))
		if !changed {
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode notes: %w", err)
		}
		err = r.svc.CompareAndSet(ctx, core.KeyNotes, rev, data)
		if err == nil {
			return nil
		}
		if !errors.Is(err, core.ErrConflict) || attempt >= r.retries {
			return err
		}
		r.logger.Debug("notes changed concurrently, retrying", "attempt", attempt+1)
	}
}

func decodeList(raw json.RawMessage) []json.RawMessage {
	if raw == nil {
		return []json.RawMessage{}
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil || list == nil {
		return []json.RawMessage{}
	}
	return list
}
