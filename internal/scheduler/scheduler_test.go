package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"code-indexer/internal/adapter/messaging"
	"code-indexer/internal/core/capability"
	"code-indexer/internal/core/events"
	"code-indexer/internal/pkg/lock"
	"code-indexer/internal/scheduler"
	pkgErrors "code-indexer/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(tasks []scheduler.Task) (*scheduler.SchedulingService, *messaging.MemoryBus, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	bus := messaging.NewMemoryBus()
	throttle := lock.NewThrottle(lock.NewMemoryLocker().WithClock(clock.Now))
	return scheduler.NewSchedulingService(tasks, throttle, bus, zap.NewNop()), bus, clock
}

func TestExecute_UnknownTask(t *testing.T) {
	svc, _, _ := newService(nil)

	err := svc.Execute(context.Background(), "nope")
	var argErr *pkgErrors.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Contains(t, argErr.Message, "nope")
}

func TestExecute_DispatchThrottledPerPeriod(t *testing.T) {
	svc, bus, clock := newService([]scheduler.Task{
		{Name: "sweep", Period: time.Hour, Dispatch: events.CreateEnabledNamespace},
	})
	ctx := context.Background()

	require.NoError(t, svc.Execute(ctx, "sweep"))
	require.NoError(t, svc.Execute(ctx, "sweep"))
	require.Len(t, bus.PublishedEvents(), 1)
	assert.Equal(t, events.New(events.CreateEnabledNamespace), bus.PublishedEvents()[0])

	clock.Advance(30 * time.Minute)
	require.NoError(t, svc.Execute(ctx, "sweep"))
	assert.Len(t, bus.PublishedEvents(), 1)

	clock.Advance(31 * time.Minute)
	require.NoError(t, svc.Execute(ctx, "sweep"))
	assert.Len(t, bus.PublishedEvents(), 2)
}

func TestExecute_NoPeriodRunsEveryCall(t *testing.T) {
	calls := 0
	svc, _, _ := newService([]scheduler.Task{
		{Name: "direct", Execute: func(context.Context) error { calls++; return nil }},
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Execute(context.Background(), "direct"))
	}
	assert.Equal(t, 3, calls)
	assert.Nil(t, svc.CachePeriod("direct"))
}

func TestExecute_IfFalseDoesNothing(t *testing.T) {
	calls := 0
	svc, bus, _ := newService([]scheduler.Task{
		{Name: "guarded", Period: time.Minute, If: func(context.Context) bool { return false }, Execute: func(context.Context) error { calls++; return nil }},
		{Name: "guarded-dispatch", If: func(context.Context) bool { return false }, Dispatch: events.CreateEnabledNamespace},
	})

	require.NoError(t, svc.Execute(context.Background(), "guarded"))
	require.NoError(t, svc.Execute(context.Background(), "guarded-dispatch"))
	assert.Zero(t, calls)
	assert.Empty(t, bus.PublishedEvents())
}

func TestExecute_NotImplemented(t *testing.T) {
	svc, _, _ := newService([]scheduler.Task{{Name: "empty", Period: time.Minute}})

	err := svc.Execute(context.Background(), "empty")
	var notImpl *pkgErrors.NotImplementedError
	assert.ErrorAs(t, err, &notImpl)
}

func TestExecute_FailureReleasesPeriod(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	svc, _, _ := newService([]scheduler.Task{
		{Name: "flaky", Period: time.Hour, Execute: func(context.Context) error {
			calls++
			if calls == 1 {
				return boom
			}
			return nil
		}},
	})
	ctx := context.Background()

	assert.ErrorIs(t, svc.Execute(ctx, "flaky"), boom)
	require.NoError(t, svc.Execute(ctx, "flaky"))
	require.NoError(t, svc.Execute(ctx, "flaky"))
	assert.Equal(t, 2, calls)
}

func TestExecuteAll_ContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	svc, bus, _ := newService([]scheduler.Task{
		{Name: "broken", Execute: func(context.Context) error { return boom }},
		{Name: "sweep", Period: time.Hour, Dispatch: events.MarkRepositoryAsPendingDeletion},
		{Name: "direct", Execute: func(context.Context) error { ran = true; return nil }},
	})

	err := svc.ExecuteAll(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran)
	assert.Len(t, bus.PublishedEvents(), 1)
	assert.Equal(t, []string{"broken", "sweep", "direct"}, svc.TaskNames())
}

type fakeSync struct{ calls int }

func (s *fakeSync) Run(context.Context) (int, error) {
	s.calls++
	return 1, nil
}

type fakeDispatcher struct{ index, ready, deletion int }

func (d *fakeDispatcher) EnqueuePendingJobs(context.Context) (int, error) {
	d.index++
	return 0, nil
}

func (d *fakeDispatcher) EnqueueReadyJobs(context.Context) (int, error) {
	d.ready++
	return 0, nil
}

func (d *fakeDispatcher) EnqueuePendingDeletionJobs(context.Context) (int, error) {
	d.deletion++
	return 0, nil
}

func TestDefaultTasks(t *testing.T) {
	syncer := &fakeSync{}
	dispatcher := &fakeDispatcher{}
	tasks := scheduler.DefaultTasks(scheduler.TaskDependencies{
		Capability: capability.Static(true),
		Sync:       syncer,
		Dispatcher: dispatcher,
		Log:        zap.NewNop(),
	})
	svc, bus, _ := newService(tasks)

	periods := map[string]time.Duration{
		scheduler.TaskCreateEnabledNamespace:          30 * time.Minute,
		scheduler.TaskProcessInvalidEnabledNamespace:  time.Hour,
		scheduler.TaskMarkRepositoryAsPendingDeletion: time.Hour,
		scheduler.TaskCreatePendingRepositories:       10 * time.Minute,
		scheduler.TaskIndexRepository:                 time.Minute,
		scheduler.TaskIndexReadyRepositories:          30 * time.Minute,
		scheduler.TaskDeleteRepository:                5 * time.Minute,
	}
	for name, period := range periods {
		got := svc.CachePeriod(name)
		require.NotNil(t, got, name)
		assert.Equal(t, period, *got, name)
	}

	require.NoError(t, svc.ExecuteAll(context.Background()))
	assert.ElementsMatch(t, []events.Event{
		events.New(events.CreateEnabledNamespace),
		events.New(events.ProcessInvalidEnabledNamespace),
		events.New(events.MarkRepositoryAsPendingDeletion),
	}, bus.PublishedEvents())
	assert.Equal(t, 1, syncer.calls)
	assert.Equal(t, 1, dispatcher.index)
	assert.Equal(t, 1, dispatcher.ready)
	assert.Equal(t, 1, dispatcher.deletion)

	// 同一周期内再次 tick 不会重复执行
	require.NoError(t, svc.ExecuteAll(context.Background()))
	assert.Len(t, bus.PublishedEvents(), 3)
	assert.Equal(t, 1, syncer.calls)
}

func TestDefaultTasks_CapabilityDisabled(t *testing.T) {
	syncer := &fakeSync{}
	dispatcher := &fakeDispatcher{}
	svc, bus, _ := newService(scheduler.DefaultTasks(scheduler.TaskDependencies{
		Capability: capability.Static(false),
		Sync:       syncer,
		Dispatcher: dispatcher,
		Log:        zap.NewNop(),
	}))

	require.NoError(t, svc.ExecuteAll(context.Background()))
	assert.Zero(t, syncer.calls)
	assert.Zero(t, dispatcher.index)
	assert.Zero(t, dispatcher.ready)
	assert.Zero(t, dispatcher.deletion)
	// 扫描事件照常发布, 由 worker 自己检查开关
	assert.Len(t, bus.PublishedEvents(), 3)
}

func TestScheduler_StartRejectsInvalidCron(t *testing.T) {
	svc, _, _ := newService(nil)
	s := scheduler.NewScheduler(svc, zap.NewNop())
	assert.Error(t, s.Start("not a cron"))
}

func TestScheduler_Trigger(t *testing.T) {
	var calls atomic.Int32
	svc, _, _ := newService([]scheduler.Task{
		{Name: "direct", Execute: func(context.Context) error { calls.Add(1); return nil }},
	})
	s := scheduler.NewScheduler(svc, zap.NewNop())

	require.NoError(t, s.Start(""))
	t.Cleanup(s.Stop)

	require.NoError(t, s.Trigger(context.Background(), "direct"))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestScheduler_StartTwice(t *testing.T) {
	svc, _, _ := newService(nil)
	s := scheduler.NewScheduler(svc, zap.NewNop())

	require.NoError(t, s.Start("0 0 * * * *"))
	t.Cleanup(s.Stop)
	assert.Error(t, s.Start("0 0 * * * *"))
}

func TestExecute_DispatchAndExecuteBothRun(t *testing.T) {
	executed := false
	svc, bus, _ := newService([]scheduler.Task{
		{
			Name:     "sweep_and_sync",
			Period:   time.Hour,
			Dispatch: events.CreateEnabledNamespace,
			Execute:  func(context.Context) error { executed = true; return nil },
		},
	})

	require.NoError(t, svc.Execute(context.Background(), "sweep_and_sync"))
	assert.Len(t, bus.PublishedEvents(), 1)
	assert.True(t, executed)
}
