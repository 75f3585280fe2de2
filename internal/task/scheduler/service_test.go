package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "jokebot/pkg/logx"
)

func noop(context.Context) error { return nil }

func TestPartition(t *testing.T) {
	groups := Partition([]Task{
		{Name: "mentions", Interval: 60 * time.Second, Run: noop},
		{Name: "reply", Interval: 10 * time.Second, Run: noop},
		{Name: "trello", Interval: 60 * time.Second, Run: noop},
		{Name: "io", Interval: 10 * time.Second, Run: noop},
		{Name: "uptime", Interval: 3600 * time.Second, Run: noop},
	})
	require.Len(t, groups, 3)
	assert.Equal(t, 10*time.Second, groups[0].Interval)
	assert.Equal(t, []string{"reply", "io"}, groups[0].Names())
	assert.Equal(t, []string{"mentions", "trello"}, groups[1].Names())
	assert.Equal(t, []string{"uptime"}, groups[2].Names())
}

func TestNewRejectsBadTasks(t *testing.T) {
	_, err := New(Config{}, []Task{
		{Name: "a", Interval: time.Second, Run: noop},
		{Name: "a", Interval: time.Second, Run: noop},
		{Name: "b", Interval: 0, Run: noop},
		{Name: "c", Interval: time.Second},
		{Name: " ", Interval: time.Second, Run: noop},
	}, logx.Nop())
	require.Error(t, err)
	for _, want := range []string{`"a": duplicate`, `"b": interval`, `"c": run func`, "task[4]: name"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestNextRunUsesCronForWholeSeconds(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 500, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 11, 0, time.UTC), nextRun(10*time.Second, now))
	assert.Equal(t, now.Add(5*time.Millisecond), nextRun(5*time.Millisecond, now))

	exact := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, exact.Add(10*time.Second), nextRun(10*time.Second, exact))
}

func TestNextRunNeverShortensInterval(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, frac := range []time.Duration{0, time.Nanosecond, 250 * time.Millisecond, 999 * time.Millisecond} {
		for _, iv := range []time.Duration{time.Second, 10 * time.Second, 90 * time.Second} {
			now := base.Add(frac)
			next := nextRun(iv, now)
			assert.False(t, next.Before(now.Add(iv)), "interval %s at +%s: %s", iv, frac, next)
			assert.Less(t, next.Sub(now), iv+time.Second)
			assert.Zero(t, next.Nanosecond())
		}
	}
}

func TestGroupRunsTasksInOrderAndSleepsAfterBatch(t *testing.T) {
	var mu sync.Mutex
	var order []string
	var batchEnds []time.Time
	rec := func(name string, d time.Duration) func(context.Context) error {
		return func(context.Context) error {
			time.Sleep(d)
			mu.Lock()
			order = append(order, name)
			if name == "second" {
				batchEnds = append(batchEnds, time.Now())
			}
			mu.Unlock()
			return nil
		}
	}
	const interval = 30 * time.Millisecond
	s, err := New(Config{}, []Task{
		{Name: "first", Interval: interval, Run: rec("first", 20*time.Millisecond)},
		{Name: "second", Interval: interval, Run: rec("second", 0)},
	}, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batchEnds) >= 3
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, s.Wait(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i+1 < len(order); i += 2 {
		assert.Equal(t, []string{"first", "second"}, order[i:i+2])
	}
	// the sleep starts after the batch, so consecutive batch ends are at
	// least interval + duration of the batch apart
	for i := 1; i < len(batchEnds); i++ {
		assert.GreaterOrEqual(t, batchEnds[i].Sub(batchEnds[i-1]), interval+20*time.Millisecond)
	}
}

func TestTaskFailureAndPanicAreIsolated(t *testing.T) {
	var after atomic.Int32
	s, err := New(Config{}, []Task{
		{Name: "panics", Interval: 10 * time.Millisecond, Run: func(context.Context) error { panic("kaboom") }},
		{Name: "fails", Interval: 10 * time.Millisecond, Run: func(context.Context) error { return errors.New("nope") }},
		{Name: "after", Interval: 10 * time.Millisecond, Run: func(context.Context) error { after.Add(1); return nil }},
	}, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool { return after.Load() >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, s.Wait(context.Background()))

	snap := s.Snapshot()
	byName := map[string]TaskInfo{}
	for _, ti := range snap.Tasks {
		byName[ti.Name] = ti
	}
	assert.GreaterOrEqual(t, byName["panics"].Panics, uint64(2))
	assert.Equal(t, byName["panics"].Runs, byName["panics"].Failures)
	assert.Contains(t, byName["panics"].LastError, "kaboom")
	assert.Contains(t, byName["fails"].LastError, "nope")
	assert.NotEmpty(t, byName["fails"].LastRunID)
	assert.Zero(t, byName["after"].Failures)
	assert.False(t, snap.Running)
}

func TestGroupsRunIndependently(t *testing.T) {
	var fast atomic.Int32
	release := make(chan struct{})
	s, err := New(Config{}, []Task{
		{Name: "slow", Interval: 10 * time.Millisecond, Run: func(ctx context.Context) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		}},
		{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context) error { fast.Add(1); return nil }},
	}, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	require.Eventually(t, func() bool { return fast.Load() >= 5 }, 5*time.Second, 5*time.Millisecond)
	close(release)
	cancel()
	require.NoError(t, s.Wait(context.Background()))
}

func TestTaskTimeout(t *testing.T) {
	done := make(chan error, 1)
	s, err := New(Config{DefaultTimeout: 20 * time.Millisecond}, []Task{
		{Name: "hang", Interval: time.Hour, Run: func(ctx context.Context) error {
			<-ctx.Done()
			done <- ctx.Err()
			return ctx.Err()
		}},
	}, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout not applied")
	}
	require.Eventually(t, func() bool { return s.Snapshot().Tasks[0].Failures == 1 }, 5*time.Second, 5*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	cancel()
	require.NoError(t, s.Stop(stopCtx))
}

func TestStopWithoutStart(t *testing.T) {
	s, err := New(Config{}, nil, logx.Nop())
	require.NoError(t, err)
	assert.NoError(t, s.Stop(context.Background()))
	assert.Empty(t, s.Groups())
}
