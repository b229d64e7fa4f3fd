package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notely/pkg/adapters/schedule"
	"github.com/aretw0/notely/pkg/core"
)

type recorder struct {
	mu    sync.Mutex
	fired []string
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 16)}
}

func (r *recorder) handle(ctx context.Context, a core.Alarm) {
	r.mu.Lock()
	r.fired = append(r.fired, a.ID)
	r.mu.Unlock()
	r.ch <- a.ID
}

func (r *recorder) wait(t *testing.T) string {
	t.Helper()
	select {
	case id := <-r.ch:
		return id
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for alarm")
		return ""
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func startWorker(t *testing.T, s *schedule.Scheduler) {
	t.Helper()
	w := s.NewWorker()
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
}

func TestScheduler_FiresOnce(t *testing.T) {
	s := schedule.New(schedule.Config{Path: t.TempDir()})
	require.NoError(t, s.Initialize(context.Background()))
	rec := newRecorder()
	s.OnAlarm(rec.handle)
	startWorker(t, s)

	require.NoError(t, s.Arm(context.Background(), "notely_1", time.Now().Add(50*time.Millisecond)))
	assert.Equal(t, "notely_1", rec.wait(t))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count())

	pending, err := s.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestScheduler_RearmOverwrites(t *testing.T) {
	s := schedule.New(schedule.Config{Path: t.TempDir()})
	require.NoError(t, s.Initialize(context.Background()))
	ctx := context.Background()

	require.NoError(t, s.Arm(ctx, "notely_2", time.Now().Add(time.Hour)))
	require.NoError(t, s.Arm(ctx, "notely_2", time.Now().Add(2*time.Hour)))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].ScheduledAt.After(time.Now().Add(90*time.Minute)))
}

func TestScheduler_SurvivesRestart(t *testing.T) {
	path := t.TempDir()

	// Arm-only process: nobody runs the worker.
	armer := schedule.New(schedule.Config{Path: path})
	require.NoError(t, armer.Initialize(context.Background()))
	require.NoError(t, armer.Arm(context.Background(), "notely_overdue", time.Now().Add(-time.Minute)))
	require.NoError(t, armer.Arm(context.Background(), "notely_soon", time.Now().Add(100*time.Millisecond)))

	host := schedule.New(schedule.Config{Path: path})
	rec := newRecorder()
	host.OnAlarm(rec.handle)
	startWorker(t, host)

	assert.Equal(t, "notely_overdue", rec.wait(t), "overdue alarms fire on start")
	assert.Equal(t, "notely_soon", rec.wait(t))
}

func TestScheduler_PicksUpForeignArm(t *testing.T) {
	path := t.TempDir()
	host := schedule.New(schedule.Config{Path: path})
	rec := newRecorder()
	host.OnAlarm(rec.handle)
	startWorker(t, host)

	other := schedule.New(schedule.Config{Path: path})
	require.NoError(t, other.Arm(context.Background(), "notely_3", time.Now().Add(20*time.Millisecond)))

	assert.Equal(t, "notely_3", rec.wait(t))
}

func TestScheduler_TwoHostsFireOnce(t *testing.T) {
	path := t.TempDir()
	rec := newRecorder()

	a := schedule.New(schedule.Config{Path: path})
	a.OnAlarm(rec.handle)
	b := schedule.New(schedule.Config{Path: path})
	b.OnAlarm(rec.handle)
	startWorker(t, a)
	startWorker(t, b)

	for _, id := range []string{"notely_a", "notely_b", "notely_c"} {
		require.NoError(t, a.Arm(context.Background(), id, time.Now().Add(30*time.Millisecond)))
	}
	for i := 0; i < 3; i++ {
		rec.wait(t)
	}
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 3, rec.count())
}

func TestScheduler_InvalidID(t *testing.T) {
	s := schedule.New(schedule.Config{Path: t.TempDir()})
	assert.Error(t, s.Arm(context.Background(), "../escape", time.Now()))
}

func TestScheduler_Supervised(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := schedule.New(schedule.Config{Path: t.TempDir()})
	rec := newRecorder()
	s.OnAlarm(rec.handle)

	sup := supervisor.New("alarms", supervisor.StrategyOneForOne, supervisor.Spec{
		Name: "alarm-scheduler",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return s.NewWorker(), nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      1,
			ResetDuration:   50 * time.Millisecond,
			MaxRestarts:     2,
			MaxDuration:     200 * time.Millisecond,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	})
	require.NoError(t, sup.Start(ctx))

	require.NoError(t, s.Arm(ctx, "notely_sup", time.Now().Add(20*time.Millisecond)))
	assert.Equal(t, "notely_sup", rec.wait(t))

	state, ok := s.State().(schedule.SchedulerState)
	require.True(t, ok)
	assert.True(t, state.Running)
	assert.Equal(t, 1, state.Fired)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, sup.Stop(stopCtx))
}
