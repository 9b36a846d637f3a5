package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/scenario-sim/scenario-collector/notify"
	"github.com/scenario-sim/scenario-collector/simulator"
)

// Collector runs the configured job space against a simulator launcher.
type Collector struct {
	cfg       Config
	launcher  simulator.Launcher
	teardown  simulator.Teardown
	publisher notify.Publisher
	metrics   *Metrics
}

// New validates cfg and returns a Collector. teardown, publisher and metrics
// may be nil.
func New(cfg Config, launcher simulator.Launcher, teardown simulator.Teardown, publisher notify.Publisher, metrics *Metrics) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if launcher == nil {
		return nil, errors.New("collector: nil simulator launcher")
	}
	return &Collector{cfg: cfg, launcher: launcher, teardown: teardown, publisher: publisher, metrics: metrics}, nil
}

// Collect enumerates the jobs and runs them through an Orchestrator.
func (c *Collector) Collect(ctx context.Context) (*Report, error) {
	jobs, err := c.cfg.Jobs()
	if err != nil {
		return nil, err
	}
	o, err := NewOrchestrator(c.cfg.Concurrency, c, OrchestratorOptions{
		Teardown:     c.teardown,
		Publisher:    c.publisher,
		Metrics:      c.metrics,
		DrainTimeout: c.cfg.DrainTimeout,
	})
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, jobs)
}

// RunJob derives the job configuration and runs its episode.
func (c *Collector) RunJob(ctx context.Context, w Worker, job Job) (EpisodeResult, error) {
	jc, err := c.cfg.ForJob(job)
	if err != nil {
		return EpisodeResult{Job: job, State: StateFailed}, err
	}
	runner := NewEpisodeRunner(jc, c.launcher, EpisodeOptions{
		WorkerID: w.ID,
		RunID:    w.RunID,
		Metrics:  c.metrics,
		Log:      logrus.WithField("run", w.RunID),
	})
	return runner.Run(ctx)
}
