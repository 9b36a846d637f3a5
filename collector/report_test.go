package collector

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReport_Print(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &Report{
		RunID:       "run-1",
		Started:     start,
		Finished:    start.Add(90 * time.Second),
		Interrupted: true,
		Jobs: []JobReport{
			{Job: Job{Town: "Town01", Weather: "ClearNoon", Behavior: "normal", NavigationType: "straight"},
				Status: StatusCanceled, Result: EpisodeResult{Steps: 12, Records: 3}},
			{Job: Job{Town: "Town01", Weather: "WetNoon", Behavior: "normal", NavigationType: "straight"},
				Status: StatusSkipped},
		},
	}

	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "Data collection interrupted")
	assert.Contains(t, out, "Duration         : 1m30s")
	assert.Contains(t, out, "Records Written  : 3")
	assert.Contains(t, out, "canceled   straight/Town01_ClearNoon_normal steps=12 records=3")
}

func TestReport_PrintNotInterrupted(t *testing.T) {
	var buf bytes.Buffer
	(&Report{}).Print(&buf)

	assert.NotContains(t, buf.String(), "interrupted")
}
