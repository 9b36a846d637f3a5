package collector

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/scenario-sim/scenario-collector/notify"
	"github.com/scenario-sim/scenario-collector/simulator"
)

var tracer = otel.Tracer("github.com/scenario-sim/scenario-collector/collector")

// publishTimeout bounds each job event publish.
const publishTimeout = 5 * time.Second

// Worker identifies the worker a job runs on.
type Worker struct {
	ID    int // admission slot, unique among running workers
	RunID string
}

// JobRunner runs the whole lifecycle of one job.
type JobRunner interface {
	RunJob(ctx context.Context, w Worker, job Job) (EpisodeResult, error)
}

// JobRunnerFunc adapts a function to JobRunner.
type JobRunnerFunc func(ctx context.Context, w Worker, job Job) (EpisodeResult, error)

func (f JobRunnerFunc) RunJob(ctx context.Context, w Worker, job Job) (EpisodeResult, error) {
	return f(ctx, w, job)
}

// OrchestratorOptions are the optional collaborators of an Orchestrator.
type OrchestratorOptions struct {
	Teardown     simulator.Teardown // global kill-all; nil skips teardown
	Publisher    notify.Publisher   // nil publishes nothing
	Metrics      *Metrics
	DrainTimeout time.Duration // default DefaultDrainTimeout
}

// Orchestrator fans jobs out over at most Concurrency workers.
type Orchestrator struct {
	concurrency int
	runner      JobRunner
	opts        OrchestratorOptions
}

// NewOrchestrator validates the concurrency bound.
func NewOrchestrator(concurrency int, runner JobRunner, opts OrchestratorOptions) (*Orchestrator, error) {
	if concurrency < 1 {
		return nil, fmt.Errorf("collector: concurrency must be >= 1, got %d", concurrency)
	}
	if runner == nil {
		return nil, errors.New("collector: nil job runner")
	}
	if opts.Publisher == nil {
		opts.Publisher = notify.Noop{}
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	return &Orchestrator{concurrency: concurrency, runner: runner, opts: opts}, nil
}

// Run executes every job, never more than the concurrency bound at once, and
// tears the simulator down exactly once before returning. The error joins
// every job failure and any teardown failure; an interrupted run is reported
// through Report.Interrupted, not as an error.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) (report *Report, err error) {
	runID := uuid.NewString()
	log := logrus.WithField("run", runID)
	ctx, span := tracer.Start(ctx, "run", oteltrace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("jobs", len(jobs)),
		attribute.Int("concurrency", o.concurrency),
	))
	defer span.End()

	state := &runState{jobs: make([]JobReport, len(jobs))}
	for i, job := range jobs {
		state.jobs[i] = JobReport{Job: job, WorkerID: -1, Status: StatusSkipped}
	}
	report = &Report{RunID: runID, Started: time.Now()}

	var teardownOnce sync.Once
	defer teardownOnce.Do(func() {
		terr := o.teardown(log)
		report.Jobs = state.snapshot()
		report.Finished = time.Now()
		for _, j := range report.Jobs {
			if j.Status == StatusSkipped {
				o.opts.Metrics.jobSkipped()
			}
		}
		errs := state.errors()
		if terr != nil {
			errs = append(errs, terr)
		}
		err = errors.Join(errs...)
		if err != nil {
			span.RecordError(err)
		}
	})

	log.WithFields(logrus.Fields{"jobs": len(jobs), "concurrency": o.concurrency}).Info("starting data collection")
	g := newGate(o.concurrency)
	var wg sync.WaitGroup
	for i, job := range jobs {
		slot, aerr := g.acquire(ctx)
		if aerr != nil {
			log.WithField("remaining", len(jobs)-i).Warn("admission stopped")
			break
		}
		wg.Add(1)
		go func(i int, job Job, slot int) {
			defer wg.Done()
			defer g.release(slot)
			o.runWorker(ctx, log, Worker{ID: slot, RunID: runID}, i, job, state)
		}(i, job, slot)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("interrupt received; draining workers")
		select {
		case <-done:
		case <-time.After(o.opts.DrainTimeout):
			report.DrainTimedOut = true
			log.WithField("timeout", o.opts.DrainTimeout).Error("drain timed out; tearing down with workers still running")
		}
	}
	report.Interrupted = ctx.Err() != nil
	return report, nil
}

func (o *Orchestrator) teardown(log *logrus.Entry) error {
	if o.opts.Teardown == nil {
		return nil
	}
	o.opts.Metrics.teardown()
	if err := o.opts.Teardown.KillAll(context.Background()); err != nil {
		log.WithError(err).Error("global teardown failed")
		return fmt.Errorf("global teardown: %w", err)
	}
	log.Info("global teardown complete")
	return nil
}

// runWorker runs one job and records its outcome. A panic in the job is
// recovered and recorded as a failure.
func (o *Orchestrator) runWorker(ctx context.Context, log *logrus.Entry, w Worker, i int, job Job, state *runState) {
	started := time.Now()
	jr := JobReport{Job: job, WorkerID: w.ID}
	log = log.WithFields(logrus.Fields{"job": job.String(), "worker": w.ID})
	// Until it reports back, a job still running at teardown counts as canceled.
	state.set(i, JobReport{Job: job, WorkerID: w.ID, Status: StatusCanceled})
	o.opts.Metrics.workerStarted()
	o.publish(ctx, log, w, job, notify.EventStarted, EpisodeResult{}, nil)

	defer func() {
		if r := recover(); r != nil {
			jr.Status = StatusFailed
			jr.Err = fmt.Errorf("job %s: panic: %v", job, r)
			log.WithField("stack", string(debug.Stack())).Errorf("worker panicked: %v", r)
		}
		jr.Duration = time.Since(started)
		state.set(i, jr)
		o.opts.Metrics.workerFinished(jr.Status)

		kind := notify.EventSucceeded
		switch jr.Status {
		case StatusFailed:
			kind = notify.EventFailed
		case StatusCanceled:
			kind = notify.EventCanceled
		}
		o.publish(ctx, log, w, job, kind, jr.Result, jr.Err)
	}()

	res, err := o.runner.RunJob(ctx, w, job)
	jr.Result = res
	switch {
	case err != nil:
		jr.Status = StatusFailed
		jr.Err = err
	case res.Canceled:
		jr.Status = StatusCanceled
	default:
		jr.Status = StatusSucceeded
	}
}

func (o *Orchestrator) publish(ctx context.Context, log *logrus.Entry, w Worker, job Job, kind string, res EpisodeResult, jobErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	e := notify.Event{
		RunID:          w.RunID,
		Kind:           kind,
		Job:            job.Name(),
		Town:           job.Town,
		Weather:        job.Weather,
		Behavior:       job.Behavior,
		NavigationType: job.NavigationType,
		Steps:          res.Steps,
		Records:        res.Records,
		Time:           time.Now().UTC(),
	}
	if jobErr != nil {
		e.Error = jobErr.Error()
	}
	if err := o.opts.Publisher.Publish(ctx, e); err != nil {
		log.WithError(err).Warn("publishing job event failed")
	}
}

// runState holds per-job outcomes written by workers. Workers that outlive a
// drain timeout may still write after Run returned; the report holds a copy.
type runState struct {
	mu   sync.Mutex
	jobs []JobReport
}

func (s *runState) set(i int, jr JobReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[i] = jr
}

func (s *runState) snapshot() []JobReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobReport, len(s.jobs))
	copy(out, s.jobs)
	return out
}

func (s *runState) errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, j := range s.jobs {
		if j.Err != nil {
			errs = append(errs, j.Err)
		}
	}
	return errs
}
