package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeJob struct {
	status string
	delay  time.Duration
}

func (f fakeJob) Run(ctx context.Context) JobResult {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	return JobResult{Status: f.status}
}

func TestPool_RunsAllJobsSequentiallyWithOneWorker(t *testing.T) {
	jobs := []Job{fakeJob{status: "a"}, fakeJob{status: "b"}, fakeJob{status: "c"}}
	var mu sync.Mutex
	var order []string

	pool := Pool{Workers: 1}
	started, cancelled := pool.Run(context.Background(), jobs, func(_ int, r JobResult) {
		mu.Lock()
		order = append(order, r.Status)
		mu.Unlock()
	})

	if started != 3 {
		t.Fatalf("started = %d, want 3", started)
	}
	if len(cancelled) != 0 {
		t.Fatalf("cancelled = %v, want none", cancelled)
	}
	if len(order) != 3 {
		t.Fatalf("collected %d results, want 3", len(order))
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	var current int32
	var maxSeen int32
	jobs := make([]Job, 10)
	for i := range jobs {
		jobs[i] = concurrencyProbeJob{current: &current, maxSeen: &maxSeen}
	}

	pool := Pool{Workers: 3}
	pool.Run(context.Background(), jobs, func(int, JobResult) {})

	if atomic.LoadInt32(&maxSeen) > 3 {
		t.Fatalf("observed concurrency %d, want <= 3", maxSeen)
	}
}

type concurrencyProbeJob struct {
	current *int32
	maxSeen *int32
}

func (j concurrencyProbeJob) Run(ctx context.Context) JobResult {
	n := atomic.AddInt32(j.current, 1)
	for {
		seen := atomic.LoadInt32(j.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(j.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(j.current, -1)
	return JobResult{Status: "ok"}
}

func TestPool_StopsStartingNewJobsAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	jobs := make([]Job, 5)
	for i := range jobs {
		jobs[i] = fakeJob{status: "ok", delay: 20 * time.Millisecond}
	}
	cancel()

	pool := Pool{Workers: 1}
	started, cancelled := pool.Run(ctx, jobs, func(int, JobResult) {})
	if started >= len(jobs) {
		t.Fatalf("started = %d, expected fewer than %d after pre-cancelled context", started, len(jobs))
	}
	if started+len(cancelled) != len(jobs) {
		t.Fatalf("started(%d)+cancelled(%d) = %d, want %d", started, len(cancelled), started+len(cancelled), len(jobs))
	}
}
