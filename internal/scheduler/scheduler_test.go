package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-allocator/pkg/logger"
)

// stubJob fails the first failures runs, then succeeds
type stubJob struct {
	name     string
	schedule string
	failures int32
	calls    atomic.Int32
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }
func (j *stubJob) Run(ctx context.Context) error {
	if j.calls.Add(1) <= j.failures {
		return errors.New("boom")
	}
	return nil
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(logger.Nop())

	require.NoError(t, s.AddJob(&stubJob{name: "a", schedule: "@every 1h"}))
	assert.Error(t, s.AddJob(&stubJob{name: "a", schedule: "@every 1h"}), "duplicate name")
	assert.Error(t, s.AddJob(&stubJob{name: "b", schedule: "not a schedule"}))
}

func TestScheduler_RunNowRetries(t *testing.T) {
	s := New(logger.Nop()).WithRetry(2, 0)
	job := &stubJob{name: "flaky", schedule: "@every 1h", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunNow(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Empty(t, result.Error)
}

func TestScheduler_RunNowGivesUp(t *testing.T) {
	s := New(logger.Nop()).WithRetry(1, 0)
	require.NoError(t, s.AddJob(&stubJob{name: "broken", schedule: "@every 1h", failures: 100}))

	result, err := s.RunNow(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, "boom", result.Error)

	stats := s.Stats()["broken"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Equal(t, "boom", stats.LastError)
	assert.NotNil(t, stats.LastRun)
}

func TestScheduler_RetryStopsOnCancel(t *testing.T) {
	s := New(logger.Nop()).WithRetry(5, time.Hour)
	require.NoError(t, s.AddJob(&stubJob{name: "slow", schedule: "@every 1h", failures: 100}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := s.RunNow(ctx, "slow")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestScheduler_UnknownJob(t *testing.T) {
	s := New(logger.Nop())

	_, err := s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = s.History("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_CronFires(t *testing.T) {
	s := New(logger.Nop())
	job := &stubJob{name: "tick", schedule: "@every 1s"}
	require.NoError(t, s.AddJob(job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	history, err := s.History("tick")
	require.NoError(t, err)
	assert.NotEmpty(t, history)
}

func TestJobHistory_Bounded(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < historyLimit+10; i++ {
		h.AddResult(JobResult{JobName: "x", Success: i%2 == 0})
	}

	assert.Len(t, h.Results, historyLimit)
	assert.InDelta(t, 0.5, h.SuccessRate(), 1e-9)

	_, ok := (&JobHistory{}).Latest()
	assert.False(t, ok)
}
