package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/scenario-sim/scenario-collector/collector/archive"
	"github.com/scenario-sim/scenario-collector/collector/route"
	"github.com/scenario-sim/scenario-collector/collector/trace"
	"github.com/scenario-sim/scenario-collector/simulator"
)

// EpisodeResult summarises one finished episode.
type EpisodeResult struct {
	Job        Job
	State      EpisodeState
	Steps      int // ticks executed
	Records    int // samples written
	Resets     int
	Collisions int
	Completed  bool // single-scenario route completion ended the episode
	Canceled   bool // the context was canceled before the step budget ran out
	Shards     []string
	Manifest   string
	Trace      *trace.EpisodeTrace
}

// EpisodeOptions carries the run-scoped collaborators of an episode.
type EpisodeOptions struct {
	WorkerID int
	RunID    string
	Metrics  *Metrics
	Log      *logrus.Entry
}

// EpisodeRunner drives one job: one session, one agent, one writer.
// It is single-use and not safe for concurrent use.
type EpisodeRunner struct {
	cfg      JobConfig
	launcher simulator.Launcher
	opts     EpisodeOptions
	log      *logrus.Entry
	rng      *PartitionedRNG
	now      func() time.Time

	state   EpisodeState
	session simulator.Session
	agent   simulator.Agent
	planner *route.Planner
	route   route.Route
	writer  *archive.Writer
	step    int
	result  EpisodeResult
}

// NewEpisodeRunner returns a runner in state INIT.
func NewEpisodeRunner(cfg JobConfig, launcher simulator.Launcher, opts EpisodeOptions) *EpisodeRunner {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{"job": cfg.Job.String(), "worker": opts.WorkerID})
	return &EpisodeRunner{
		cfg:      cfg,
		launcher: launcher,
		opts:     opts,
		log:      log,
		rng:      NewPartitionedRNG(cfg.Seed),
		now:      time.Now,
		state:    StateInit,
		result: EpisodeResult{
			Job:   cfg.Job,
			State: StateInit,
			Trace: trace.NewEpisodeTrace(cfg.TraceLevel),
		},
	}
}

// State returns the current state.
func (e *EpisodeRunner) State() EpisodeState { return e.state }

// Run drives the episode to DONE or FAILED. The writer and session are
// released on every path. Cancellation of ctx is observed at the top of each
// tick and ends the episode in DONE with Canceled set.
func (e *EpisodeRunner) Run(ctx context.Context) (EpisodeResult, error) {
	if e.state != StateInit {
		return e.result, fmt.Errorf("job %s: episode already run", e.cfg.Job)
	}
	ctx, span := tracer.Start(ctx, "episode", oteltrace.WithAttributes(
		attribute.String("job", e.cfg.Job.String()),
		attribute.Int("worker", e.opts.WorkerID),
		attribute.Int("steps", e.cfg.Steps),
	))
	defer span.End()

	start := e.now()
	err := e.run(ctx)
	if rerr := e.release(); rerr != nil {
		err = errors.Join(err, rerr)
	}

	final := StateDone
	if err != nil {
		final = StateFailed
		span.RecordError(err)
	}
	if terr := e.transition(final); terr != nil {
		err = errors.Join(err, terr)
	}
	e.result.State = e.state
	e.result.Steps = e.step
	e.opts.Metrics.episodeDone(e.now().Sub(start))
	span.SetAttributes(
		attribute.Int("records", e.result.Records),
		attribute.Int("resets", e.result.Resets),
		attribute.String("state", string(e.state)),
	)

	if err != nil {
		e.log.WithError(err).Error("episode failed")
		return e.result, fmt.Errorf("job %s: %w", e.cfg.Job, err)
	}
	fields := logrus.Fields{
		"steps":    e.result.Steps,
		"records":  e.result.Records,
		"resets":   e.result.Resets,
		"canceled": e.result.Canceled,
	}
	if sum := trace.Summarize(e.result.Trace); sum.TotalResets > 0 {
		fields["reset_reasons"] = sum.ResetsByReason
		fields["mean_steps_between_resets"] = sum.MeanStepsBetween
	}
	e.log.WithFields(fields).Info("episode done")
	return e.result, nil
}

func (e *EpisodeRunner) run(ctx context.Context) error {
	if ctx.Err() != nil {
		e.result.Canceled = true
		return nil
	}
	if err := e.connect(ctx); err != nil {
		return err
	}
	if err := e.start(ctx); err != nil {
		return err
	}
	return e.loop(ctx)
}

// connect: INIT → CONNECTED.
func (e *EpisodeRunner) connect(ctx context.Context) error {
	job := e.cfg.Job
	session, err := e.launcher.Connect(ctx, simulator.SessionConfig{
		WorkerID:   e.opts.WorkerID,
		Town:       job.Town,
		Weather:    job.Weather,
		Behavior:   job.Behavior,
		Seed:       e.rng.SeedFor(SubsystemSimulator),
		Sync:       e.cfg.Sync,
		FixedDelta: e.cfg.FixedDelta,
	})
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	e.session = session
	if err := session.SetWeather(job.Weather); err != nil {
		return fmt.Errorf("setting weather: %w", err)
	}
	agent, err := session.SpawnAgent(ctx, job.Behavior)
	if err != nil {
		return fmt.Errorf("spawning agent: %w", err)
	}
	e.agent = agent
	return e.transition(StateConnected)
}

// start: CONNECTED → RUNNING.
func (e *EpisodeRunner) start(ctx context.Context) error {
	e.planner = route.NewPlanner(e.cfg.Routes, e.rng.ForSubsystem(SubsystemRoute))
	if err := e.plan(ctx); err != nil {
		return err
	}

	name := e.cfg.Job.Name()
	e.writer = archive.NewWriter(e.cfg.Archive)
	if err := e.writer.Open(name, e.cfg.Dir); err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	manifest, err := archive.WriteManifest(e.cfg.Dir, name, e.cfg.Manifest(e.opts.RunID, e.now()))
	if err != nil {
		return err
	}
	e.result.Manifest = manifest
	return e.transition(StateRunning)
}

// plan picks a route, moves the hero to its start and hands it to the agent.
func (e *EpisodeRunner) plan(ctx context.Context) error {
	r, err := e.planner.Next(e.session.SpawnPoints())
	if err != nil {
		return fmt.Errorf("planning route: %w", err)
	}
	if err := e.session.Respawn(context.WithoutCancel(ctx), r.Start()); err != nil {
		return fmt.Errorf("respawning hero: %w", err)
	}
	if err := e.agent.SetDestination(r); err != nil {
		return fmt.Errorf("setting destination: %w", err)
	}
	e.route = r
	return nil
}

// replan runs RUNNING → RESETTING → RUNNING for the same agent and writer.
func (e *EpisodeRunner) replan(ctx context.Context, reason trace.ResetReason) error {
	if err := e.transition(StateResetting); err != nil {
		return err
	}
	if err := e.plan(ctx); err != nil {
		return err
	}
	end := e.route.End()
	e.result.Resets++
	e.result.Trace.RecordReset(trace.ResetRecord{
		Step:        e.step,
		Reason:      reason,
		Destination: [3]float64{end.X, end.Y, end.Z},
	})
	e.opts.Metrics.reset(string(reason))
	e.log.WithFields(logrus.Fields{"step": e.step, "reason": reason}).Debug("re-planned route")
	return e.transition(StateRunning)
}

func (e *EpisodeRunner) loop(ctx context.Context) error {
	for e.step = 0; e.step < e.cfg.Steps; e.step++ {
		if ctx.Err() != nil {
			e.result.Canceled = true
			e.log.WithField("step", e.step).Info("episode interrupted")
			return nil
		}
		if e.agent.Done() {
			if stop, err := e.routeCompleted(ctx); stop || err != nil {
				return err
			}
		}

		control, err := e.agent.RunStep()
		if err != nil {
			return fmt.Errorf("agent step %d: %w", e.step, err)
		}
		// A started tick always completes; cancellation is seen next iteration.
		obs, err := e.session.Tick(context.WithoutCancel(ctx), control)
		e.opts.Metrics.step()
		switch {
		case errors.Is(err, simulator.ErrCollision):
			if err := e.collided(ctx); err != nil {
				return err
			}
			continue
		case errors.Is(err, simulator.ErrRouteCompleted):
			if stop, err := e.routeCompleted(ctx); stop || err != nil {
				e.step++
				return err
			}
			continue
		case err != nil:
			return fmt.Errorf("tick %d: %w", e.step, err)
		}

		rec := StepRecord{
			Sensor:        obs.Sensors,
			Waypoint:      e.agent.WaypointTelemetry(),
			Traffic:       e.agent.TrafficTelemetry(),
			Vehicle:       e.agent.VehicleTelemetry(control),
			CollisionData: e.agent.CollisionTelemetry(),
			Collision:     obs.Collision,
			Obstacle:      obs.Obstacle,
		}
		fields, err := rec.Fields()
		if err != nil {
			return fmt.Errorf("step %d: %w", e.step, err)
		}
		if e.step%e.cfg.WriteFreq == 0 {
			if err := e.writer.Write(fields, e.step); err != nil {
				return fmt.Errorf("writing step %d: %w", e.step, err)
			}
			e.result.Records++
			e.opts.Metrics.record()
		}
		if obs.Collision {
			if err := e.collided(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *EpisodeRunner) collided(ctx context.Context) error {
	e.result.Collisions++
	e.log.WithField("step", e.step).Debug("collision")
	return e.replan(ctx, trace.ResetCollision)
}

// routeCompleted ends a single-scenario episode or re-plans. stop reports
// whether the loop must end.
func (e *EpisodeRunner) routeCompleted(ctx context.Context) (stop bool, err error) {
	if e.cfg.SingleScenario {
		e.result.Completed = true
		e.log.WithField("step", e.step).Info("route completed")
		return true, nil
	}
	return false, e.replan(ctx, trace.ResetRouteCompleted)
}

// release closes the writer, then the session.
func (e *EpisodeRunner) release() error {
	var errs []error
	if e.writer != nil {
		if err := e.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing archive: %w", err))
		}
		e.result.Shards = e.writer.Shards()
	}
	if e.session != nil {
		if err := e.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing session: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (e *EpisodeRunner) transition(to EpisodeState) error {
	if err := ValidateTransition(e.state, to); err != nil {
		return err
	}
	e.result.Trace.RecordTransition(trace.TransitionRecord{Step: e.step, From: string(e.state), To: string(to)})
	e.log.WithFields(logrus.Fields{"from": e.state, "to": to, "step": e.step}).Debug("episode transition")
	e.state = to
	return nil
}
