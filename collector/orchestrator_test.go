package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenario-sim/scenario-collector/notify"
)

func makeJobs(n int) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = Job{Town: "Town01", Weather: fmt.Sprintf("w%d", i), Behavior: "normal", NavigationType: "straight"}
	}
	return jobs
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(kind string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestOrchestrator_NeverExceedsConcurrency(t *testing.T) {
	for _, c := range []int{1, 2, 5} {
		for _, n := range []int{0, 1, 7, 20} {
			t.Run(fmt.Sprintf("c=%d/n=%d", c, n), func(t *testing.T) {
				// GIVEN a runner that tracks how many jobs run at once
				var active, peak, ran atomic.Int32
				runner := JobRunnerFunc(func(ctx context.Context, w Worker, job Job) (EpisodeResult, error) {
					cur := active.Add(1)
					for {
						p := peak.Load()
						if cur <= p || peak.CompareAndSwap(p, cur) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					active.Add(-1)
					ran.Add(1)
					return EpisodeResult{Job: job}, nil
				})
				td := &countingTeardown{}
				o, err := NewOrchestrator(c, runner, OrchestratorOptions{Teardown: td})
				require.NoError(t, err)

				// WHEN n jobs run
				report, err := o.Run(context.Background(), makeJobs(n))

				// THEN the bound holds, every job ran once, teardown ran once
				require.NoError(t, err)
				assert.LessOrEqual(t, peak.Load(), int32(c))
				assert.Equal(t, int32(n), ran.Load())
				assert.Equal(t, n, report.Count(StatusSucceeded))
				assert.Equal(t, int32(1), td.calls.Load())
			})
		}
	}
}

func TestOrchestrator_WorkerIDsUniqueAmongRunning(t *testing.T) {
	var mu sync.Mutex
	inUse := map[int]bool{}
	var clash atomic.Bool
	runner := JobRunnerFunc(func(ctx context.Context, w Worker, job Job) (EpisodeResult, error) {
		mu.Lock()
		if inUse[w.ID] {
			clash.Store(true)
		}
		inUse[w.ID] = true
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		delete(inUse, w.ID)
		mu.Unlock()
		return EpisodeResult{}, nil
	})
	o, err := NewOrchestrator(3, runner, OrchestratorOptions{})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), makeJobs(12))

	require.NoError(t, err)
	assert.False(t, clash.Load())
}

func TestOrchestrator_FailuresDoNotAbortSiblings(t *testing.T) {
	// GIVEN every other job failing
	runner := JobRunnerFunc(func(ctx context.Context, w Worker, job Job) (EpisodeResult, error) {
		if job.Weather == "w1" || job.Weather == "w3" {
			return EpisodeResult{Job: job}, fmt.Errorf("job %s: %w", job, errBoom)
		}
		return EpisodeResult{Job: job, Records: 2}, nil
	})
	td := &countingTeardown{}
	pub := &recordingPublisher{}
	o, err := NewOrchestrator(2, runner, OrchestratorOptions{Teardown: td, Publisher: pub})
	require.NoError(t, err)

	// WHEN the run completes
	report, err := o.Run(context.Background(), makeJobs(5))

	// THEN failures are joined, the rest succeed, teardown ran once
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, report.Count(StatusFailed))
	assert.Equal(t, 3, report.Count(StatusSucceeded))
	assert.Equal(t, 6, report.Records())
	assert.False(t, report.Interrupted)
	assert.Equal(t, int32(1), td.calls.Load())
	assert.Equal(t, 5, pub.count(notify.EventStarted))
	assert.Equal(t, 2, pub.count(notify.EventFailed))
	assert.Equal(t, 3, pub.count(notify.EventSucceeded))
}

func TestOrchestrator_PanicReleasesSlot(t *testing.T) {
	// GIVEN concurrency 1 and a first job that panics
	runner := JobRunnerFunc(func(ctx context.Context, w Worker, job Job) (EpisodeResult, error) {
		if job.Weather == "w0" {
			panic("simulator exploded")
		}
		return EpisodeResult{Job: job}, nil
	})
	o, err := NewOrchestrator(1, runner, OrchestratorOptions{})
	require.NoError(t, err)

	// WHEN the run completes
	done := make(chan struct{})
	var report *Report
	go func() {
		defer close(done)
		report, err = o.Run(context.Background(), makeJobs(3))
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator hung after worker panic")
	}

	// THEN the panic is a job failure and later jobs still ran
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulator exploded")
	assert.Equal(t, StatusFailed, report.Jobs[0].Status)
	assert.Equal(t, 2, report.Count(StatusSucceeded))
}

func TestOrchestrator_TeardownOnceWithZeroJobs(t *testing.T) {
	td := &countingTeardown{}
	o, err := NewOrchestrator(4, JobRunnerFunc(func(context.Context, Worker, Job) (EpisodeResult, error) {
		return EpisodeResult{}, nil
	}), OrchestratorOptions{Teardown: td})
	require.NoError(t, err)

	report, err := o.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, report.Jobs)
	assert.Equal(t, int32(1), td.calls.Load())
}

func TestOrchestrator_TeardownErrorIsReturned(t *testing.T) {
	td := &countingTeardown{err: errBoom}
	o, err := NewOrchestrator(1, JobRunnerFunc(func(context.Context, Worker, Job) (EpisodeResult, error) {
		return EpisodeResult{}, nil
	}), OrchestratorOptions{Teardown: td})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), makeJobs(2))

	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "global teardown")
	assert.Equal(t, int32(1), td.calls.Load())
}

func TestOrchestrator_InterruptDrainsAndSkips(t *testing.T) {
	// GIVEN concurrency 2 and workers that run until canceled
	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32
	runner := JobRunnerFunc(func(ctx context.Context, w Worker, job Job) (EpisodeResult, error) {
		if started.Add(1) == 2 {
			cancel()
		}
		<-ctx.Done()
		return EpisodeResult{Job: job, Canceled: true}, nil
	})
	td := &countingTeardown{}
	o, err := NewOrchestrator(2, runner, OrchestratorOptions{Teardown: td, DrainTimeout: 5 * time.Second})
	require.NoError(t, err)

	// WHEN an interrupt arrives while both slots are busy
	report, err := o.Run(ctx, makeJobs(6))

	// THEN running jobs end canceled, queued jobs are skipped, and the
	// interruption is not an error
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.False(t, report.DrainTimedOut)
	assert.Equal(t, 2, report.Count(StatusCanceled))
	assert.Equal(t, 4, report.Count(StatusSkipped))
	assert.Equal(t, int32(1), td.calls.Load())
}

func TestOrchestrator_DrainTimeout(t *testing.T) {
	// GIVEN a worker that ignores cancellation
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)
	runner := JobRunnerFunc(func(context.Context, Worker, Job) (EpisodeResult, error) {
		cancel()
		<-release
		return EpisodeResult{}, nil
	})
	td := &countingTeardown{}
	o, err := NewOrchestrator(1, runner, OrchestratorOptions{Teardown: td, DrainTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	// WHEN the run is interrupted
	report, err := o.Run(ctx, makeJobs(1))

	// THEN teardown proceeds after the drain timeout
	require.NoError(t, err)
	assert.True(t, report.DrainTimedOut)
	assert.Equal(t, StatusCanceled, report.Jobs[0].Status, "still-running job counts as canceled")
	assert.Equal(t, int32(1), td.calls.Load())
}

func TestNewOrchestrator_RejectsBadConcurrency(t *testing.T) {
	_, err := NewOrchestrator(0, JobRunnerFunc(func(context.Context, Worker, Job) (EpisodeResult, error) {
		return EpisodeResult{}, nil
	}), OrchestratorOptions{})
	assert.Error(t, err)
}
