package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsSweep(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler("test", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, runs.Load())
}

func TestSchedulerStopBeforeStart(t *testing.T) {
	s := NewScheduler("idle", time.Minute, func(context.Context) error { return nil }, nil)
	s.Stop()
}

func TestQueueDispatchesJobs(t *testing.T) {
	var handled atomic.Int32
	q := NewQueue("test", func(_ context.Context, job Job) error {
		handled.Add(1)
		return nil
	}, QueueConfig{Workers: 2})

	q.Start(context.Background())
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "noop"}))
	}
	require.Eventually(t, func() bool { return handled.Load() == 5 }, time.Second, 5*time.Millisecond)
	q.Stop()
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("cold", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "job"}))
}
