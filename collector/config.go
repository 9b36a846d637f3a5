package collector

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scenario-sim/scenario-collector/collector/archive"
	"github.com/scenario-sim/scenario-collector/collector/route"
	"github.com/scenario-sim/scenario-collector/collector/trace"
)

// DefaultDrainTimeout bounds how long an interrupted run waits for workers.
const DefaultDrainTimeout = 30 * time.Second

// Config is the run-wide collection configuration.
type Config struct {
	Town            string   // map every job runs on
	Weathers        []string // weather preset identifiers
	Behaviors       []string // driver behavior profiles
	NavigationTypes []string // route types, one output directory each

	Concurrency       int            // max simultaneously running jobs (>= 1)
	Steps             int            // step budget per episode (>= 1)
	StepsByNavigation map[string]int // per navigation type override of Steps
	DataWriteFreq     int            // write every N ticks (>= 1)
	SingleScenario    bool           // stop on route completion instead of re-planning

	ShardWrite    bool   // roll over shards every ShardMaxCount samples
	ShardMaxCount int    // samples per shard when ShardWrite is set
	ShardCompress bool   // gzip shard streams
	ImageField    string // record field stored as the image payload
	DataWritePath string // root output directory

	RouteDir     string // directory with <town>_<navigation_type>.xml files; empty = spawn-point routes
	SmoothDegree int    // Bézier degree for route smoothing; 0 disables

	Seed       int64   // master seed
	Sync       bool    // synchronous simulator mode
	FixedDelta float64 // seconds per tick in synchronous mode

	DrainTimeout time.Duration
	TraceLevel   string
}

// Validate fails fast on unusable configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Town == "" {
		errs = append(errs, errors.New("town is required"))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency))
	}
	if c.Steps < 1 {
		errs = append(errs, fmt.Errorf("steps must be >= 1, got %d", c.Steps))
	}
	for nav, n := range c.StepsByNavigation {
		if n < 1 {
			errs = append(errs, fmt.Errorf("steps for navigation type %q must be >= 1, got %d", nav, n))
		}
	}
	if c.DataWriteFreq < 1 {
		errs = append(errs, fmt.Errorf("data_write_freq must be >= 1, got %d", c.DataWriteFreq))
	}
	if c.ShardWrite && c.ShardMaxCount < 1 {
		errs = append(errs, fmt.Errorf("shard_maxcount must be >= 1 when shard_write is set, got %d", c.ShardMaxCount))
	}
	if c.DataWritePath == "" {
		errs = append(errs, errors.New("data_write_path is required"))
	}
	if c.SmoothDegree < 0 {
		errs = append(errs, fmt.Errorf("smooth_degree must be >= 0, got %d", c.SmoothDegree))
	}
	if c.FixedDelta < 0 {
		errs = append(errs, fmt.Errorf("fixed_delta must be >= 0, got %g", c.FixedDelta))
	}
	if !trace.IsValidTraceLevel(c.TraceLevel) {
		errs = append(errs, fmt.Errorf("unknown trace level %q", c.TraceLevel))
	}
	for dim, ids := range map[string][]string{
		"weather":         c.Weathers,
		"behavior":        c.Behaviors,
		"navigation_type": c.NavigationTypes,
	} {
		if err := checkUnique(dim, ids); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Jobs enumerates the configured job space.
func (c Config) Jobs() ([]Job, error) {
	return EnumerateJobs(c.Town, c.Weathers, c.Behaviors, c.NavigationTypes)
}

// JobConfig is the configuration of one job, derived once from Config and
// never modified afterwards.
type JobConfig struct {
	Job            Job
	Steps          int
	WriteFreq      int
	SingleScenario bool
	Archive        archive.Options
	Seed           int64
	Dir            string
	Routes         []route.Route
	Sync           bool
	FixedDelta     float64
	TraceLevel     trace.TraceLevel
}

// ForJob derives the configuration of job, loading and smoothing its routes.
func (c Config) ForJob(job Job) (JobConfig, error) {
	steps := c.Steps
	if n, ok := c.StepsByNavigation[job.NavigationType]; ok {
		steps = n
	}
	jc := JobConfig{
		Job:            job,
		Steps:          steps,
		WriteFreq:      c.DataWriteFreq,
		SingleScenario: c.SingleScenario,
		Archive: archive.Options{
			Compress:   c.ShardCompress,
			ImageField: c.ImageField,
		},
		Seed:       JobSeed(c.Seed, job),
		Dir:        filepath.Join(c.DataWritePath, job.NavigationType),
		Sync:       c.Sync,
		FixedDelta: c.FixedDelta,
		TraceLevel: trace.TraceLevel(c.TraceLevel),
	}
	if c.ShardWrite {
		jc.Archive.MaxCount = c.ShardMaxCount
	}

	routes, err := c.loadRoutes(job)
	if err != nil {
		return JobConfig{}, fmt.Errorf("job %s: %w", job, err)
	}
	jc.Routes = routes
	return jc, nil
}

func (c Config) loadRoutes(job Job) ([]route.Route, error) {
	if c.RouteDir == "" {
		return nil, nil
	}
	path := route.FilePath(c.RouteDir, job.Town, job.NavigationType)
	routes, err := route.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if c.SmoothDegree == 0 {
		return routes, nil
	}
	smoothed := make([]route.Route, len(routes))
	for i, r := range routes {
		s, err := route.Smooth(r, c.SmoothDegree)
		if err != nil {
			return nil, fmt.Errorf("smoothing route %d of %s: %w", i, path, err)
		}
		smoothed[i] = s
	}
	logrus.Debugf("smoothed %d routes from %s with degree %d", len(smoothed), path, c.SmoothDegree)
	return smoothed, nil
}

// Manifest is the JSON document written next to a job's shards.
type Manifest struct {
	RunID          string  `json:"run_id"`
	Town           string  `json:"town"`
	Weather        string  `json:"weather"`
	Behavior       string  `json:"behavior"`
	NavigationType string  `json:"navigation_type"`
	Steps          int     `json:"steps"`
	DataWriteFreq  int     `json:"data_write_freq"`
	SingleScenario bool    `json:"single_scenario"`
	ShardMaxCount  int     `json:"shard_maxcount"`
	ShardCompress  bool    `json:"shard_compress"`
	Seed           int64   `json:"seed"`
	Sync           bool    `json:"synchronous_mode"`
	FixedDelta     float64 `json:"fixed_delta_seconds"`
	Routes         int     `json:"routes"`
	CreatedAt      string  `json:"created_at"`
}

// Manifest describes jc for the manifest file.
func (jc JobConfig) Manifest(runID string, createdAt time.Time) Manifest {
	return Manifest{
		RunID:          runID,
		Town:           jc.Job.Town,
		Weather:        jc.Job.Weather,
		Behavior:       jc.Job.Behavior,
		NavigationType: jc.Job.NavigationType,
		Steps:          jc.Steps,
		DataWriteFreq:  jc.WriteFreq,
		SingleScenario: jc.SingleScenario,
		ShardMaxCount:  jc.Archive.MaxCount,
		ShardCompress:  jc.Archive.Compress,
		Seed:           jc.Seed,
		Sync:           jc.Sync,
		FixedDelta:     jc.FixedDelta,
		Routes:         len(jc.Routes),
		CreatedAt:      createdAt.UTC().Format(time.RFC3339),
	}
}
