package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenario-sim/scenario-collector/collector"
	"github.com/scenario-sim/scenario-collector/collector/archive"
)

func smallRun(t *testing.T) FileConfig {
	t.Helper()
	cfg := defaultFileConfig()
	cfg.Collector.Concurrency = 2
	cfg.Collector.Steps = 10
	cfg.DataWriter.DataWritePath = t.TempDir()
	cfg.DataWriter.DataWriteFreq = 2
	cfg.Experiment.Weather = []string{"ClearNoon", "CloudyNoon"}
	cfg.Vehicle.CameraSize = 8
	return cfg
}

func TestRunCollect_WritesArchive(t *testing.T) {
	// GIVEN a two-job kinematic run
	cfg := smallRun(t)

	// WHEN it runs
	report, err := runCollect(context.Background(), cfg)

	// THEN both jobs succeed and every second step is archived
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Count(collector.StatusSucceeded))
	assert.Equal(t, 10, report.Records())
	shards, err := archive.FindShards(filepath.Join(cfg.DataWriter.DataWritePath, "straight"), "Town01_")
	require.NoError(t, err)
	assert.Len(t, shards, 2)
}

func TestRunCollect_InterruptedBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runCollect(ctx, smallRun(t))

	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.Equal(t, 2, report.Count(collector.StatusSkipped))
	var buf bytes.Buffer
	report.Print(&buf)
	assert.Contains(t, buf.String(), "Data collection interrupted")
}

func TestRunCollect_InvalidConfig(t *testing.T) {
	cfg := smallRun(t)
	cfg.DataWriter.DataWriteFreq = 0

	report, err := runCollect(context.Background(), cfg)

	assert.Nil(t, report)
	assert.ErrorContains(t, err, "data_write_freq")
}

func TestRunCollect_UnknownBackend(t *testing.T) {
	cfg := smallRun(t)
	cfg.Simulator.Backend = "unreal"

	_, err := runCollect(context.Background(), cfg)

	assert.ErrorContains(t, err, "unknown simulator backend")
}

func TestPrintJobs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJobs(&buf, smallRun(t)))

	assert.Contains(t, buf.String(), "straight/Town01_ClearNoon_normal steps=10")
	assert.Contains(t, buf.String(), "2 jobs")
}
