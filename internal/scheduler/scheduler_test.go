package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 10, day, hour, minute, 0, 0, time.UTC)
}

func counting(name string, p Period, n *atomic.Int32) Task {
	return Task{Name: name, Period: p, Run: func(context.Context, time.Time) error {
		n.Add(1)
		return nil
	}}
}

func TestPeriod_Slot(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	assert.Equal(t, "2026-10-20", Daily.Slot(at(20, 9, 0), time.UTC))
	assert.Equal(t, "2026-10-20T09", Hourly.Slot(at(20, 9, 59), time.UTC))
	// 22:30 UTC is already the next day in EAT.
	assert.Equal(t, "2026-10-21", Daily.Slot(at(20, 22, 30), loc))
}

func TestRunDue_FiresOncePerSlot(t *testing.T) {
	var daily, hourly atomic.Int32
	r := NewRunner(time.UTC, nil, counting("daily", Daily, &daily), counting("hourly", Hourly, &hourly))
	ctx := context.Background()

	for _, ts := range []time.Time{at(20, 0, 0), at(20, 0, 1), at(20, 0, 59), at(20, 1, 0), at(20, 1, 30), at(21, 0, 0)} {
		require.NoError(t, r.RunDue(ctx, ts))
	}

	assert.Equal(t, int32(2), daily.Load())
	assert.Equal(t, int32(3), hourly.Load())
}

func TestRunDue_SharedLeaseRunsOnlyOnce(t *testing.T) {
	var n atomic.Int32
	lease := NewMemoryLease()
	a := NewRunner(time.UTC, lease, counting("renew-daily", Daily, &n))
	b := NewRunner(time.UTC, lease, counting("renew-daily", Daily, &n))

	require.NoError(t, a.RunDue(context.Background(), at(20, 0, 0)))
	require.NoError(t, b.RunDue(context.Background(), at(20, 0, 0)))

	assert.Equal(t, int32(1), n.Load())
}

func TestRunDue_FailedTaskRetriesNextTick(t *testing.T) {
	calls := 0
	task := Task{Name: "flaky", Period: Hourly, Run: func(context.Context, time.Time) error {
		calls++
		if calls == 1 {
			return errors.New("store down")
		}
		return nil
	}}
	r := NewRunner(time.UTC, NewMemoryLease(), task)

	err := r.RunDue(context.Background(), at(20, 9, 0))
	assert.Error(t, err)
	require.NoError(t, r.RunDue(context.Background(), at(20, 9, 1)))
	require.NoError(t, r.RunDue(context.Background(), at(20, 9, 2)))

	assert.Equal(t, 2, calls)
}

type brokenLease struct{}

func (brokenLease) Acquire(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis unreachable")
}
func (brokenLease) Release(context.Context, string) error { return nil }

func TestRunDue_LeaseOutageStillRuns(t *testing.T) {
	var n atomic.Int32
	r := NewRunner(time.UTC, brokenLease{}, counting("renew-hourly", Hourly, &n))

	require.NoError(t, r.RunDue(context.Background(), at(20, 9, 0)))
	assert.Equal(t, int32(1), n.Load())
}

func TestMemoryLease_Expires(t *testing.T) {
	l := NewMemoryLease()
	now := at(20, 9, 0)
	l.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.Acquire(ctx, "k", time.Hour)
	assert.False(t, ok)

	now = now.Add(time.Hour)
	ok, _ = l.Acquire(ctx, "k", time.Hour)
	assert.True(t, ok)
}

type tickRecorder struct{ n atomic.Int32 }

func (r *tickRecorder) RunDue(context.Context, time.Time) error {
	r.n.Add(1)
	return nil
}

func TestRedisLease_KeyLayout(t *testing.T) {
	slot := "renew-daily:" + Daily.Slot(at(20, 7, 0), time.UTC)
	for _, prefix := range []string{"campusops:lease", "campusops:lease:"} {
		assert.Equal(t, "campusops:lease:"+slot, NewRedisLease(nil, prefix).key(slot), prefix)
	}
	assert.Equal(t, "campusops:sched:"+slot, NewRedisLease(nil, "").key(slot))
}

func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	rec := &tickRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	Start(ctx, rec, 5*time.Millisecond, time.Now)

	assert.Eventually(t, func() bool { return rec.n.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
}
