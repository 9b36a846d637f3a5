package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/scenario-sim/scenario-collector/collector"
	"github.com/scenario-sim/scenario-collector/notify"
	"github.com/scenario-sim/scenario-collector/simulator"
)

var (
	// CLI flags for the collect command
	configPath  string // YAML configuration file
	envFile     string // .env file loaded before the configuration
	logLevel    string // Log verbosity level
	concurrency int    // Overrides collector.concurrency when > 0
	metricsAddr string // Overrides telemetry.metrics_addr when set
	tracing     bool   // Enables stdout span export
	dryRun      bool   // Print the job space and exit
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "scenario-collector",
	Short: "Parallel driving-scenario data collection against a vehicle simulator",
}

// collectCmd runs every configured job and writes the archive
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run the data collection",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel(logLevel)
		if err := loadEnv(envFile); err != nil {
			logrus.Fatalf("Failed to load environment: %v", err)
		}
		if configPath == "" {
			configPath = os.Getenv(envConfigPath)
		}
		fileCfg, err := loadFileConfig(configPath)
		if err != nil {
			logrus.Fatalf("Failed to load configuration: %v", err)
		}
		if concurrency > 0 {
			fileCfg.Collector.Concurrency = concurrency
		}
		if metricsAddr != "" {
			fileCfg.Telemetry.MetricsAddr = metricsAddr
		}
		if tracing {
			fileCfg.Telemetry.Tracing = true
		}

		if dryRun {
			if err := printJobs(cmd.OutOrStdout(), fileCfg); err != nil {
				logrus.Fatalf("Invalid configuration: %v", err)
			}
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := runCollect(ctx, fileCfg)
		if report != nil {
			report.Print(cmd.OutOrStdout())
		}
		if err != nil {
			logrus.Errorf("Data collection finished with errors: %v", err)
			stop()
			os.Exit(1)
		}
		logrus.Info("Data collection complete.")
	},
}

func setLogLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", level)
	}
	logrus.SetLevel(lvl)
}

// runCollect wires the backend, telemetry and collector for one run. A nil
// report means the run never started.
func runCollect(ctx context.Context, fileCfg FileConfig) (*collector.Report, error) {
	cfg := fileCfg.CollectorConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	shutdownTracing, err := initTracing(fileCfg.Telemetry.Tracing, os.Stdout)
	if err != nil {
		return nil, err
	}
	defer shutdownWithTimeout(shutdownTracing)

	reg := prometheus.NewRegistry()
	metrics, err := collector.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	if srv := serveMetrics(fileCfg.Telemetry.MetricsAddr, reg); srv != nil {
		defer shutdownWithTimeout(srv.Shutdown)
	}

	var publisher notify.Publisher = notify.Noop{}
	if fileCfg.Telemetry.MQTT.Broker != "" {
		p, err := notify.NewMQTTPublisher(fileCfg.Telemetry.MQTT)
		if err != nil {
			return nil, err
		}
		publisher = p
		logrus.Infof("Publishing job events to %s", fileCfg.Telemetry.MQTT.Broker)
	}
	defer publisher.Close()

	supervisor := simulator.NewSupervisor(fileCfg.Simulator.KillCommand)
	if fileCfg.Simulator.KillGrace > 0 {
		supervisor.Grace = fileCfg.Simulator.KillGrace
	}
	launcher, err := newLauncher(fileCfg, supervisor)
	if err != nil {
		return nil, err
	}

	c, err := collector.New(cfg, launcher, supervisor, publisher, metrics)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Starting data collection: town=%s concurrency=%d steps=%d output=%s",
		cfg.Town, cfg.Concurrency, cfg.Steps, cfg.DataWritePath)
	return c.Collect(ctx)
}

func newLauncher(fileCfg FileConfig, supervisor *simulator.Supervisor) (simulator.Launcher, error) {
	switch fileCfg.Simulator.Backend {
	case "", "kinematic":
		return simulator.NewKinematicLauncher(fileCfg.KinematicConfig(), supervisor), nil
	default:
		return nil, fmt.Errorf("unknown simulator backend %q", fileCfg.Simulator.Backend)
	}
}

func printJobs(w io.Writer, fileCfg FileConfig) error {
	cfg := fileCfg.CollectorConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	jobs, err := cfg.Jobs()
	if err != nil {
		return err
	}
	for _, j := range jobs {
		jc, err := cfg.ForJob(j)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s steps=%d routes=%d dir=%s\n", j, jc.Steps, len(jc.Routes), jc.Dir)
	}
	fmt.Fprintf(w, "%d jobs\n", len(jobs))
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	collectCmd.Flags().StringVar(&configPath, "config", "", "Path to the collection YAML (default $COLLECTOR_CONFIG)")
	collectCmd.Flags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the configuration")
	collectCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum simultaneous episodes (overrides collector.concurrency)")
	collectCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	collectCmd.Flags().BoolVar(&tracing, "trace", false, "Export OpenTelemetry spans to stdout")
	collectCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the job space and exit")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(inspectCmd)
}
