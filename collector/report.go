package collector

import (
	"fmt"
	"io"
	"time"
)

// JobStatus is the final status of one job in a run.
type JobStatus string

const (
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusCanceled  JobStatus = "canceled"
	StatusSkipped   JobStatus = "skipped" // never admitted
)

// JobReport is the outcome of one job.
type JobReport struct {
	Job      Job
	WorkerID int
	Status   JobStatus
	Result   EpisodeResult
	Err      error
	Duration time.Duration
}

// Report aggregates a run for final reporting.
type Report struct {
	RunID         string
	Started       time.Time
	Finished      time.Time
	Interrupted   bool // the run context was canceled
	DrainTimedOut bool // teardown ran with workers still draining
	Jobs          []JobReport
}

// Count returns the number of jobs with status s.
func (r *Report) Count(s JobStatus) int {
	n := 0
	for _, j := range r.Jobs {
		if j.Status == s {
			n++
		}
	}
	return n
}

// Records returns the number of samples written across all jobs.
func (r *Report) Records() int {
	n := 0
	for _, j := range r.Jobs {
		n += j.Result.Records
	}
	return n
}

// Print writes the run summary and one line per job.
func (r *Report) Print(w io.Writer) {
	if r.Interrupted {
		fmt.Fprintln(w, "Data collection interrupted")
	}
	fmt.Fprintln(w, "=== Collection Report ===")
	fmt.Fprintf(w, "Run ID           : %s\n", r.RunID)
	fmt.Fprintf(w, "Duration         : %s\n", r.Finished.Sub(r.Started).Round(time.Millisecond))
	fmt.Fprintf(w, "Jobs             : %d\n", len(r.Jobs))
	fmt.Fprintf(w, "  succeeded      : %d\n", r.Count(StatusSucceeded))
	fmt.Fprintf(w, "  failed         : %d\n", r.Count(StatusFailed))
	fmt.Fprintf(w, "  canceled       : %d\n", r.Count(StatusCanceled))
	fmt.Fprintf(w, "  skipped        : %d\n", r.Count(StatusSkipped))
	fmt.Fprintf(w, "Records Written  : %d\n", r.Records())
	for _, j := range r.Jobs {
		line := fmt.Sprintf("%-10s %s steps=%d records=%d resets=%d shards=%d",
			j.Status, j.Job, j.Result.Steps, j.Result.Records, j.Result.Resets, len(j.Result.Shards))
		if j.Err != nil {
			line += " error=" + j.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
}
