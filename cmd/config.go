package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/scenario-sim/scenario-collector/collector"
	"github.com/scenario-sim/scenario-collector/notify"
	"github.com/scenario-sim/scenario-collector/simulator"
)

// Environment variables read after .env loading.
const (
	envSimulatorRoot = "SIMULATOR_ROOT"   // working directory of simulator servers
	envConfigPath    = "COLLECTOR_CONFIG" // default for --config
)

// FileConfig represents the full collection YAML file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type FileConfig struct {
	Collector  CollectorSection  `yaml:"collector"`
	DataWriter DataWriterSection `yaml:"data_writer"`
	Experiment ExperimentSection `yaml:"experiment"`
	Vehicle    VehicleSection    `yaml:"vehicle"`
	Simulator  SimulatorSection  `yaml:"simulator"`
	Telemetry  TelemetrySection  `yaml:"telemetry"`
}

// CollectorSection configures job dispatch.
type CollectorSection struct {
	Town              string         `yaml:"town"`
	Concurrency       int            `yaml:"concurrency"`
	Steps             int            `yaml:"steps"`
	StepsByNavigation map[string]int `yaml:"steps_by_navigation"`
	SingleScenario    bool           `yaml:"single_scenario"`
	DrainTimeout      time.Duration  `yaml:"drain_timeout"`
	TraceLevel        string         `yaml:"trace_level"`
}

// DataWriterSection configures the archive.
type DataWriterSection struct {
	DataWritePath string `yaml:"data_write_path"`
	DataWriteFreq int    `yaml:"data_write_freq"`
	ShardWrite    bool   `yaml:"shard_write"`
	ShardMaxCount int    `yaml:"shard_maxcount"`
	ShardCompress bool   `yaml:"shard_compress"`
	ImageField    string `yaml:"image_field"`
}

// ExperimentSection defines the job space.
type ExperimentSection struct {
	Weather        []string `yaml:"weather"`
	Behavior       []string `yaml:"behavior"`
	NavigationType []string `yaml:"navigation_type"`
	Seed           int64    `yaml:"seed"`
	RouteDir       string   `yaml:"route_dir"`
	SmoothDegree   int      `yaml:"smooth_degree"`
}

// VehicleSection configures the hero's sensors.
type VehicleSection struct {
	CameraSize    int     `yaml:"camera_size"`
	CollisionRate float64 `yaml:"collision_rate"`
}

// SimulatorSection configures the simulator backend and its servers.
type SimulatorSection struct {
	Backend           string        `yaml:"backend"`
	SynchronousMode   bool          `yaml:"synchronous_mode"`
	FixedDeltaSeconds float64       `yaml:"fixed_delta_seconds"`
	ServerCommand     string        `yaml:"server_command"`
	ServerArgs        []string      `yaml:"server_args"`
	ServerDir         string        `yaml:"server_dir"`
	BasePort          int           `yaml:"base_port"`
	KillCommand       []string      `yaml:"kill_command"`
	KillGrace         time.Duration `yaml:"kill_grace"`
	SpawnGrid         int           `yaml:"spawn_grid"`
	SpawnSpacing      float64       `yaml:"spawn_spacing"`
}

// TelemetrySection configures metrics, tracing and job events.
type TelemetrySection struct {
	MetricsAddr string            `yaml:"metrics_addr"`
	Tracing     bool              `yaml:"tracing"`
	MQTT        notify.MQTTConfig `yaml:"mqtt"`
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Collector: CollectorSection{
			Town:         "Town01",
			Concurrency:  1,
			Steps:        1000,
			DrainTimeout: collector.DefaultDrainTimeout,
			TraceLevel:   "none",
		},
		DataWriter: DataWriterSection{
			DataWritePath: "data",
			DataWriteFreq: 1,
			ShardMaxCount: 1000,
		},
		Experiment: ExperimentSection{
			Weather:        []string{"ClearNoon"},
			Behavior:       []string{"normal"},
			NavigationType: []string{"straight"},
			Seed:           42,
		},
		Simulator: SimulatorSection{
			Backend:           "kinematic",
			SynchronousMode:   true,
			FixedDeltaSeconds: 0.1,
			BasePort:          2000,
			KillGrace:         simulator.DefaultGrace,
		},
	}
}

// loadFileConfig parses the YAML file at path over the defaults.
// Uses strict field checking: typos must cause errors.
func loadFileConfig(path string) (FileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if root := os.Getenv(envSimulatorRoot); root != "" && cfg.Simulator.ServerDir == "" {
		cfg.Simulator.ServerDir = root
	}
	return cfg, nil
}

// loadEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	logrus.Debugf("loaded environment from %s", path)
	return nil
}

// CollectorConfig maps the file sections onto the collector configuration.
func (f FileConfig) CollectorConfig() collector.Config {
	return collector.Config{
		Town:              f.Collector.Town,
		Weathers:          f.Experiment.Weather,
		Behaviors:         f.Experiment.Behavior,
		NavigationTypes:   f.Experiment.NavigationType,
		Concurrency:       f.Collector.Concurrency,
		Steps:             f.Collector.Steps,
		StepsByNavigation: f.Collector.StepsByNavigation,
		DataWriteFreq:     f.DataWriter.DataWriteFreq,
		SingleScenario:    f.Collector.SingleScenario,
		ShardWrite:        f.DataWriter.ShardWrite,
		ShardMaxCount:     f.DataWriter.ShardMaxCount,
		ShardCompress:     f.DataWriter.ShardCompress,
		ImageField:        f.DataWriter.ImageField,
		DataWritePath:     f.DataWriter.DataWritePath,
		RouteDir:          f.Experiment.RouteDir,
		SmoothDegree:      f.Experiment.SmoothDegree,
		Seed:              f.Experiment.Seed,
		Sync:              f.Simulator.SynchronousMode,
		FixedDelta:        f.Simulator.FixedDeltaSeconds,
		DrainTimeout:      f.Collector.DrainTimeout,
		TraceLevel:        f.Collector.TraceLevel,
	}
}

// KinematicConfig maps the simulator and vehicle sections onto the
// kinematic backend.
func (f FileConfig) KinematicConfig() simulator.KinematicConfig {
	return simulator.KinematicConfig{
		FixedDelta:    f.Simulator.FixedDeltaSeconds,
		CollisionRate: f.Vehicle.CollisionRate,
		ImageSize:     f.Vehicle.CameraSize,
		SpawnGrid:     f.Simulator.SpawnGrid,
		SpawnSpacing:  f.Simulator.SpawnSpacing,
		ServerCommand: f.Simulator.ServerCommand,
		ServerArgs:    f.Simulator.ServerArgs,
		ServerDir:     f.Simulator.ServerDir,
		BasePort:      f.Simulator.BasePort,
	}
}
