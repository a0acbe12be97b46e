package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iscoin/purchase/internal/shared/logger"
)

type countingJob struct {
	calls    atomic.Int32
	err      error
	panicNow bool
	sawDL    atomic.Bool
}

func (j *countingJob) Execute(ctx context.Context) (int, error) {
	j.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		j.sawDL.Store(true)
	}
	if j.panicNow {
		panic("boom")
	}
	return 1, j.err
}

func newTestManager(t *testing.T) *SchedulerManager {
	t.Helper()
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func TestSchedulerManager_RunsJobRepeatedly(t *testing.T) {
	m := newTestManager(t)
	job := &countingJob{}

	require.NoError(t, m.RegisterReconcileJob(job, 50*time.Millisecond, time.Second))
	m.Start()

	assert.True(t, m.IsStarted())
	assert.Eventually(t, func() bool { return job.calls.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, job.sawDL.Load(), "each run gets a deadline")
}

func TestSchedulerManager_KeepsRunningAfterFailures(t *testing.T) {
	m := newTestManager(t)
	failing := &countingJob{err: errors.New("ledger down")}
	panicking := &countingJob{panicNow: true}

	require.NoError(t, m.RegisterReconcileJob(failing, 50*time.Millisecond, time.Second))
	require.NoError(t, m.RegisterReconcileJob(panicking, 50*time.Millisecond, time.Second))
	m.Start()

	assert.Eventually(t, func() bool {
		return failing.calls.Load() >= 2 && panicking.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerManager_StopIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	job := &countingJob{}
	require.NoError(t, m.RegisterReconcileJob(job, time.Hour, 0))

	assert.NoError(t, m.Stop())
	m.Start()
	m.Start()
	assert.Eventually(t, func() bool { return job.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.NoError(t, m.Stop())
	assert.NoError(t, m.Stop())
	assert.False(t, m.IsStarted())
}

type slowJob struct {
	running atomic.Int32
	overlap atomic.Bool
	calls   atomic.Int32
}

func (j *slowJob) Execute(ctx context.Context) (int, error) {
	if j.running.Add(1) > 1 {
		j.overlap.Store(true)
	}
	defer j.running.Add(-1)
	j.calls.Add(1)
	time.Sleep(120 * time.Millisecond)
	return 0, nil
}

// A run longer than the interval is never overlapped by the next one.
func TestSchedulerManager_RunsDoNotOverlap(t *testing.T) {
	m := newTestManager(t)
	job := &slowJob{}

	require.NoError(t, m.RegisterReconcileJob(job, 20*time.Millisecond, time.Second))
	m.Start()
	require.Len(t, m.Jobs(), 1)

	assert.Eventually(t, func() bool { return job.calls.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)
	assert.False(t, job.overlap.Load())
}

func TestSchedulerManager_InvalidInterval(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.RegisterReconcileJob(&countingJob{}, 0, time.Second))
}
