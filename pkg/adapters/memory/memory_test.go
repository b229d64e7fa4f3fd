package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notely/pkg/adapters/memory"
	"github.com/aretw0/notely/pkg/core"
)

func TestStore_SetGetRemove(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string]json.RawMessage{
		core.KeyNotes:  json.RawMessage(`[]`),
		core.KeyFabPos: json.RawMessage(`{"bottom":1,"right":2}`),
	}))

	got, err := s.Get(ctx, core.KeyNotes, core.KeyFabPos, "missing")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.JSONEq(t, `[]`, string(got[core.KeyNotes]))

	require.NoError(t, s.Remove(ctx, core.KeyNotes, "missing"))
	got, err = s.Get(ctx, core.KeyNotes)
	require.NoError(t, err)
	assert.Empty(t, got)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{core.KeyFabPos}, keys)
}

func TestStore_WatchDeliversOldAndNew(t *testing.T) {
	s := memory.NewStore(memory.WithClock(func() time.Time { return time.UnixMilli(1000) }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.Watch(ctx, "notes")
	require.NoError(t, err)

	writer := core.WithOrigin(ctx, "content")
	require.NoError(t, s.Set(writer, map[string]json.RawMessage{core.KeyNotes: json.RawMessage(`["a"]`)}))
	require.NoError(t, s.Set(writer, map[string]json.RawMessage{core.KeyFabPos: json.RawMessage(`{}`)}))
	require.NoError(t, s.Set(writer, map[string]json.RawMessage{core.KeyNotes: json.RawMessage(`["a","b"]`)}))

	first := <-events
	assert.Equal(t, "content", first.Origin)
	assert.Equal(t, core.AreaLocal, first.Area)
	assert.Equal(t, int64(1000), first.Timestamp)
	assert.Nil(t, first.Changes[core.KeyNotes].Old)
	assert.JSONEq(t, `["a"]`, string(first.Changes[core.KeyNotes].New))

	second := <-events
	assert.Equal(t, []string{core.KeyNotes}, second.Keys(), "fabPos must be filtered out")
	assert.JSONEq(t, `["a"]`, string(second.Changes[core.KeyNotes].Old))
	assert.JSONEq(t, `["a","b"]`, string(second.Changes[core.KeyNotes].New))

	require.NoError(t, s.Remove(writer, core.KeyNotes))
	third := <-events
	assert.True(t, third.Changes[core.KeyNotes].Removed())
}

func TestStore_WatchClosesOnCancel(t *testing.T) {
	s := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	events, err := s.Watch(ctx, "*")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}

func TestStore_UnchangedWriteIsSilent(t *testing.T) {
	s := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Set(ctx, map[string]json.RawMessage{core.KeyOptions: json.RawMessage(`{}`)}))
	events, err := s.Watch(ctx, "*")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, map[string]json.RawMessage{core.KeyOptions: json.RawMessage(`{}`)}))
	select {
	case cs := <-events:
		t.Fatalf("unexpected change %s", cs)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStore_CompareAndSet(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	rev, err := s.Revision(ctx, core.KeyNotes)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rev)

	require.NoError(t, s.CompareAndSet(ctx, core.KeyNotes, 0, json.RawMessage(`["a"]`)))
	assert.ErrorIs(t, s.CompareAndSet(ctx, core.KeyNotes, 0, json.RawMessage(`["b"]`)), core.ErrConflict)

	rev, err = s.Revision(ctx, core.KeyNotes)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)
	require.NoError(t, s.CompareAndSet(ctx, core.KeyNotes, 1, json.RawMessage(`["a","b"]`)))

	got, err := s.Get(ctx, core.KeyNotes)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(got[core.KeyNotes]))
}

// A writer holding a revision from before a remove and recreate must not win.
func TestStore_RevisionSurvivesRemove(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, s.CompareAndSet(ctx, core.KeyNotes, 0, json.RawMessage(`["a"]`)))
	require.NoError(t, s.Remove(ctx, core.KeyNotes))

	rev, err := s.Revision(ctx, core.KeyNotes)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rev, "removal is a revision")
	assert.ErrorIs(t, s.CompareAndSet(ctx, core.KeyNotes, 1, json.RawMessage(`["stale"]`)), core.ErrConflict)

	require.NoError(t, s.Set(ctx, map[string]json.RawMessage{core.KeyNotes: json.RawMessage(`["b"]`)}))
	rev, err = s.Revision(ctx, core.KeyNotes)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rev)
	assert.ErrorIs(t, s.CompareAndSet(ctx, core.KeyNotes, 0, json.RawMessage(`["stale"]`)), core.ErrConflict)

	got, err := s.Get(ctx, core.KeyNotes)
	require.NoError(t, err)
	assert.JSONEq(t, `["b"]`, string(got[core.KeyNotes]))
}

func TestStore_Unavailable(t *testing.T) {
	down := errors.New("no storage permission")
	s := memory.NewStore(memory.WithUnavailable(down))
	ctx := context.Background()

	assert.ErrorIs(t, s.Available(ctx), down)
	_, err := s.Get(ctx, core.KeyNotes)
	assert.ErrorIs(t, err, down)
	assert.ErrorIs(t, s.Set(ctx, map[string]json.RawMessage{}), down)
}

func TestStore_SharedBetweenServices(t *testing.T) {
	s := memory.NewStore()
	popup := core.NewService(s, "popup")
	content := core.NewService(s, "content")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := popup.Watch(ctx, core.KeyNotes)
	require.NoError(t, err)

	require.NoError(t, content.SetValue(ctx, core.KeyNotes, []core.Note{{Title: "x"}}))
	select {
	case cs := <-events:
		assert.Equal(t, "content", cs.Origin)
	case <-time.After(time.Second):
		t.Fatal("no change delivered to the other context")
	}
}

func TestScheduler_FireDue(t *testing.T) {
	s := memory.NewScheduler()
	ctx := context.Background()
	base := time.UnixMilli(1_000_000)

	var fired []string
	s.OnAlarm(func(ctx context.Context, a core.Alarm) {
		fired = append(fired, a.ID)
	})

	require.NoError(t, s.Arm(ctx, "b", base.Add(2*time.Minute)))
	require.NoError(t, s.Arm(ctx, "a", base.Add(time.Minute)))
	require.NoError(t, s.Arm(ctx, "c", base.Add(10*time.Minute)))

	assert.Empty(t, s.FireDue(ctx, base))
	s.FireDue(ctx, base.Add(5*time.Minute))
	assert.Equal(t, []string{"a", "b"}, fired)

	// Already fired ids never fire again.
	s.FireDue(ctx, base.Add(5*time.Minute))
	assert.Equal(t, []string{"a", "b"}, fired)

	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].ID)
}

func TestScheduler_RearmOverwrites(t *testing.T) {
	s := memory.NewScheduler()
	ctx := context.Background()
	base := time.UnixMilli(0)

	require.NoError(t, s.Arm(ctx, "x", base.Add(time.Minute)))
	require.NoError(t, s.Arm(ctx, "x", base.Add(time.Hour)))

	assert.Empty(t, s.FireDue(ctx, base.Add(2*time.Minute)))
	assert.Len(t, s.FireDue(ctx, base.Add(2*time.Hour)), 1)
}

func TestScheduler_LastHandlerWins(t *testing.T) {
	s := memory.NewScheduler()
	var first, second int
	s.OnAlarm(func(context.Context, core.Alarm) { first++ })
	s.OnAlarm(func(context.Context, core.Alarm) { second++ })

	s.Fire(context.Background(), "notely_1")
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestScheduler_Unavailable(t *testing.T) {
	s := memory.NewScheduler(memory.WithSchedulerUnavailable(core.ErrSchedulerUnavailable))
	err := s.Arm(context.Background(), "x", time.Now())
	assert.ErrorIs(t, err, core.ErrSchedulerUnavailable)
}

func TestScheduler_TickerFiresUnattended(t *testing.T) {
	s := memory.NewScheduler()
	fired := make(chan string, 1)
	s.OnAlarm(func(_ context.Context, a core.Alarm) { fired <- a.ID })
	assert.NoError(t, s.Available(context.Background()))

	w := s.NewTicker(10*time.Millisecond, nil)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	require.NoError(t, s.Arm(context.Background(), "notely_tick", time.Now().Add(20*time.Millisecond)))
	select {
	case id := <-fired:
		assert.Equal(t, "notely_tick", id)
	case <-time.After(2 * time.Second):
		t.Fatal("ticker did not fire")
	}
	assert.Empty(t, s.Pending())
}
