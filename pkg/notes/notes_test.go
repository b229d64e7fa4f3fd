package notes_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notely/pkg/adapters/memory"
	"github.com/aretw0/notely/pkg/core"
	"github.com/aretw0/notely/pkg/notes"
)

var epoch = time.UnixMilli(1_700_000_000_000)

func fixedClock() time.Time { return epoch }

type recordingSink struct {
	mu    sync.Mutex
	shown []core.Notification
	err   error
}

func (s *recordingSink) Present(_ context.Context, n core.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, n)
	return s.err
}

func (s *recordingSink) all() []core.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Notification(nil), s.shown...)
}

func TestAddNote_RoundTrip(t *testing.T) {
	store := memory.NewStore()
	repo := notes.NewRepository(core.NewService(store, "content"), notes.WithClock(fixedClock))
	ctx := context.Background()

	res, err := repo.AddNote(ctx, core.Note{Title: "Buy milk", Text: "2L", Type: core.NoteTodo}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)
	assert.Empty(t, res.AlarmID)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Buy milk", list[0].Title)
	assert.Equal(t, "2L", list[0].Text)
	assert.Equal(t, core.NoteTodo, list[0].Type)
	assert.Equal(t, epoch.UnixMilli(), list[0].CreatedAtMillis())
}

func TestAddNote_NonArrayIsReplaced(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{core.KeyNotes: json.RawMessage(`{"oops":1}`)}))

	repo := notes.NewRepository(core.NewService(store, "content"))
	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = repo.AddNote(ctx, core.Note{Text: "x"}, 0)
	require.NoError(t, err)
	list, _ = repo.List(ctx)
	assert.Len(t, list, 1)
}

func TestReminder_Lifecycle(t *testing.T) {
	store := memory.NewStore()
	sched := memory.NewScheduler()
	sink := &recordingSink{}
	ctx := context.Background()

	content := notes.NewRepository(core.NewService(store, "content"),
		notes.WithScheduler(sched), notes.WithClock(fixedClock))
	reminders := notes.NewReminders(core.NewService(store, "background"), sink, nil)
	sched.OnAlarm(reminders.HandleAlarm)

	res, err := content.AddNote(ctx, core.Note{Title: "Stand up", Text: "stretch", Type: core.NoteNotification}, 5)
	require.NoError(t, err)
	assert.Equal(t, "notely_1700000000000", res.AlarmID)
	assert.True(t, res.Armed)
	assert.True(t, res.PayloadStored)

	pending := sched.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, epoch.Add(5*time.Minute), pending[0].ScheduledAt)

	got, err := store.Get(ctx, core.PayloadKey(res.AlarmID))
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Stand up","text":"stretch"}`, string(got[core.PayloadKey(res.AlarmID)]))

	assert.Empty(t, sched.FireDue(ctx, epoch.Add(4*time.Minute)))
	fired := sched.FireDue(ctx, epoch.Add(time.Hour))
	require.Len(t, fired, 1)

	shown := sink.all()
	require.Len(t, shown, 1)
	assert.Equal(t, core.Notification{ID: res.AlarmID, Title: "Stand up", Message: "stretch", Priority: 2}, shown[0])

	got, _ = store.Get(ctx, core.PayloadKey(res.AlarmID))
	assert.Empty(t, got, "payload cleared after firing")

	list, _ := content.List(ctx)
	assert.Len(t, list, 1, "the note itself stays")
}

func TestReminder_NotArmedWithoutMinutes(t *testing.T) {
	store := memory.NewStore()
	sched := memory.NewScheduler()
	repo := notes.NewRepository(core.NewService(store, "content"), notes.WithScheduler(sched))
	ctx := context.Background()

	for _, minutes := range []int{0, -3} {
		res, err := repo.AddNote(ctx, core.Note{Text: "x", Type: core.NoteNotification}, minutes)
		require.NoError(t, err)
		assert.False(t, res.Armed)
	}
	res, err := repo.AddNote(ctx, core.Note{Text: "x", Type: core.NoteJournal}, 10)
	require.NoError(t, err)
	assert.False(t, res.Armed)

	assert.Empty(t, sched.Pending())
	keys, _ := store.Keys(ctx)
	assert.Equal(t, []string{core.KeyNotes}, keys)
}

// A delay past the range of time.Duration is clamped instead of wrapping into the past.
func TestReminder_HugeDelayStaysInFuture(t *testing.T) {
	sched := memory.NewScheduler()
	repo := notes.NewRepository(core.NewService(memory.NewStore(), "content"),
		notes.WithScheduler(sched), notes.WithClock(fixedClock))
	ctx := context.Background()

	res, err := repo.AddNote(ctx, core.Note{Text: "someday", Type: core.NoteNotification}, math.MaxInt)
	require.NoError(t, err)
	require.True(t, res.Armed)

	pending := sched.Pending()
	require.Len(t, pending, 1)
	assert.True(t, pending[0].ScheduledAt.After(epoch.Add(100*365*24*time.Hour)))
	assert.Empty(t, sched.FireDue(ctx, epoch.Add(time.Hour)))
}

func TestReminder_DoubleFireUsesFallback(t *testing.T) {
	store := memory.NewStore()
	sched := memory.NewScheduler()
	sink := &recordingSink{}
	ctx := context.Background()

	repo := notes.NewRepository(core.NewService(store, "content"), notes.WithScheduler(sched), notes.WithClock(fixedClock))
	sched.OnAlarm(notes.NewReminders(core.NewService(store, "background"), sink, nil).HandleAlarm)

	res, err := repo.AddNote(ctx, core.Note{Title: "T", Text: "B", Type: core.NoteNotification}, 1)
	require.NoError(t, err)

	sched.Fire(ctx, res.AlarmID)
	sched.Fire(ctx, res.AlarmID)

	shown := sink.all()
	require.Len(t, shown, 2)
	assert.Equal(t, "T", shown[0].Title)
	assert.Equal(t, "B", shown[0].Message)
	assert.Equal(t, notes.FallbackTitle, shown[1].Title)
	assert.Equal(t, notes.FallbackMessage, shown[1].Message)
}

func TestReminder_IgnoresForeignAlarms(t *testing.T) {
	store := memory.NewStore()
	sink := &recordingSink{}
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{"alarm_other": json.RawMessage(`{"title":"x"}`)}))

	r := notes.NewReminders(core.NewService(store, "background"), sink, nil)
	r.HandleAlarm(ctx, core.Alarm{ID: "other"})
	r.HandleAlarm(ctx, core.Alarm{ID: "notely_"})

	assert.Empty(t, sink.all())
	got, _ := store.Get(ctx, "alarm_other")
	assert.Len(t, got, 1)
}

func TestReminder_SinkFailureStillClears(t *testing.T) {
	store := memory.NewStore()
	sink := &recordingSink{err: core.ErrSinkUnavailable}
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{"alarm_notely_1": json.RawMessage(`{"title":"","text":""}`)}))

	notes.NewReminders(core.NewService(store, "background"), sink, nil).HandleAlarm(ctx, core.Alarm{ID: "notely_1"})

	shown := sink.all()
	require.Len(t, shown, 1)
	assert.Equal(t, notes.FallbackTitle, shown[0].Title, "empty strings fall back")
	got, _ := store.Get(ctx, "alarm_notely_1")
	assert.Empty(t, got)
}

func TestReminder_Orphans(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{
		"alarm_notely_1": json.RawMessage(`{}`),
		"alarm_notely_2": json.RawMessage(`{}`),
		"alarm_custom":   json.RawMessage(`{}`),
		core.KeyNotes:    json.RawMessage(`[]`),
	}))

	r := notes.NewReminders(core.NewService(store, "background"), nil, nil)
	orphans, err := r.Orphans(ctx, []core.Alarm{{ID: "notely_2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"notely_1"}, orphans)
}

func TestAddNote_PartialFailure(t *testing.T) {
	store := memory.NewStore()
	sched := memory.NewScheduler(memory.WithSchedulerUnavailable(core.ErrSchedulerUnavailable))
	repo := notes.NewRepository(core.NewService(store, "content"), notes.WithScheduler(sched))

	res, err := repo.AddNote(context.Background(), core.Note{Text: "x", Type: core.NoteNotification}, 2)
	require.NoError(t, err, "reminder failures are not fatal")
	assert.False(t, res.Armed)
	assert.True(t, res.PayloadStored)
}

func TestAddNote_StoreUnavailableSkipsReminder(t *testing.T) {
	sched := memory.NewScheduler()
	svc := core.NewService(memory.NewStore(), "content", core.WithAvailability(false))
	repo := notes.NewRepository(svc, notes.WithScheduler(sched))

	_, err := repo.AddNote(context.Background(), core.Note{Text: "x", Type: core.NoteNotification}, 2)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Empty(t, sched.Pending())
}

func TestDeleteNoteAt(t *testing.T) {
	store := memory.NewStore()
	repo := notes.NewRepository(core.NewService(store, "popup"))
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{core.KeyNotes: json.RawMessage(`["a",{"title":"b","text":"B"},"c"]`)}))

	rev, _ := store.Revision(ctx, core.KeyNotes)
	require.NoError(t, repo.DeleteNoteAt(ctx, 3))
	require.NoError(t, repo.DeleteNoteAt(ctx, -1))
	after, _ := store.Revision(ctx, core.KeyNotes)
	assert.Equal(t, rev, after, "out of range performs no write")

	require.NoError(t, repo.DeleteNoteAt(ctx, 1))
	got, _ := store.Get(ctx, core.KeyNotes)
	assert.JSONEq(t, `["a","c"]`, string(got[core.KeyNotes]))
}

func TestEditNoteAt(t *testing.T) {
	store := memory.NewStore()
	repo := notes.NewRepository(core.NewService(store, "popup"), notes.WithClock(fixedClock))
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{
		core.KeyNotes: json.RawMessage(`["legacy",{"title":"t","content":"old","type":"todo","createdAt":5,"pinned":true}]`),
	}))

	require.NoError(t, repo.EditNoteAt(ctx, 0, "New", "body"))
	require.NoError(t, repo.EditNoteAt(ctx, 1, "t2", "new text"))
	require.NoError(t, repo.EditNoteAt(ctx, 9, "x", "y"))

	got, _ := store.Get(ctx, core.KeyNotes)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(got[core.KeyNotes], &raw))
	require.Len(t, raw, 2)

	assert.Equal(t, "New", raw[0]["title"])
	assert.Equal(t, "body", raw[0]["text"])
	assert.EqualValues(t, epoch.UnixMilli(), raw[0]["createdAt"])

	assert.Equal(t, "t2", raw[1]["title"])
	assert.Equal(t, "new text", raw[1]["text"])
	assert.Equal(t, "todo", raw[1]["type"])
	assert.EqualValues(t, 5, raw[1]["createdAt"])
	assert.Equal(t, true, raw[1]["pinned"])
}

func TestList_LegacyShapes(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{
		core.KeyNotes: json.RawMessage(`["plain",{"content":"older"},42]`),
	}))

	list, err := notes.NewRepository(core.NewService(store, "popup")).List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].Legacy)
	assert.Equal(t, "plain", list[0].Text)
	assert.Nil(t, list[0].CreatedAt)
	assert.Equal(t, "older", list[1].Text)
	assert.Equal(t, core.Note{}, list[2])
}

// barrierStore reads "notes" and then holds the first n readers until all of
// them arrived, so concurrent writers start from the same snapshot.
type barrierStore struct {
	*memory.Store
	arrived atomic.Int32
	wg      sync.WaitGroup
	n       int32
}

func newBarrierStore(n int) *barrierStore {
	b := &barrierStore{Store: memory.NewStore(), n: int32(n)}
	b.wg.Add(n)
	return b
}

func (b *barrierStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	items, err := b.Store.Get(ctx, keys...)
	if len(keys) == 1 && keys[0] == core.KeyNotes && b.arrived.Add(1) <= b.n {
		// Hand out the value read before the others arrive.
		b.wg.Done()
		b.wg.Wait()
	}
	return items, err
}

func addConcurrently(t *testing.T, store core.Store, opts ...notes.Option) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, name := range []string{"content", "popup"} {
		repo := notes.NewRepository(core.NewService(store, name), opts...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AddNote(context.Background(), core.Note{Title: name}, 0)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestAddNote_LostUpdate(t *testing.T) {
	store := newBarrierStore(2)
	addConcurrently(t, store)

	list, err := notes.NewRepository(core.NewService(store.Store, "check")).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1, "racy mode keeps only one of two concurrent appends")
}

func TestAddNote_OptimisticKeepsBoth(t *testing.T) {
	store := newBarrierStore(2)
	addConcurrently(t, store, notes.WithOptimisticConcurrency(3))

	list, err := notes.NewRepository(core.NewService(store.Store, "check")).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.ElementsMatch(t, []string{"content", "popup"}, []string{list[0].Title, list[1].Title})
}

type plainStore struct {
	core.Store
}

func TestMode_FallsBackWithoutRevisions(t *testing.T) {
	repo := notes.NewRepository(core.NewService(plainStore{memory.NewStore()}, "popup"), notes.WithOptimisticConcurrency(1))
	assert.Equal(t, notes.ConcurrencyRacy, repo.Mode())

	_, err := repo.AddNote(context.Background(), core.Note{Text: "x"}, 0)
	require.NoError(t, err)

	repo = notes.NewRepository(core.NewService(memory.NewStore(), "popup"), notes.WithOptimisticConcurrency(1))
	assert.Equal(t, notes.ConcurrencyOptimistic, repo.Mode())
}

func TestOptimistic_GivesUpAfterRetries(t *testing.T) {
	store := &conflictStore{Store: memory.NewStore()}
	repo := notes.NewRepository(core.NewService(store, "popup"), notes.WithOptimisticConcurrency(2))

	_, err := repo.AddNote(context.Background(), core.Note{Text: "x"}, 0)
	assert.True(t, errors.Is(err, core.ErrConflict))
	assert.EqualValues(t, 3, store.attempts.Load())
}

type conflictStore struct {
	*memory.Store
	attempts atomic.Int32
}

func (c *conflictStore) CompareAndSet(ctx context.Context, key string, rev uint64, value json.RawMessage) error {
	c.attempts.Add(1)
	return core.ErrConflict
}
