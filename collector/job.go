package collector

import (
	"errors"
	"fmt"
)

// ErrDuplicateIdentifier is returned when a job dimension lists the same
// identifier twice.
var ErrDuplicateIdentifier = errors.New("collector: duplicate identifier")

// Job is one (weather, behavior, navigation type) combination for a town.
type Job struct {
	Town           string
	Weather        string
	Behavior       string
	NavigationType string
}

// Name identifies the job's output files within its navigation directory.
func (j Job) Name() string {
	return fmt.Sprintf("%s_%s_%s", j.Town, j.Weather, j.Behavior)
}

func (j Job) String() string {
	return j.NavigationType + "/" + j.Name()
}

// EnumerateJobs returns the Cartesian product of the three dimensions in
// navigation, weather, behavior order. An empty dimension yields no jobs.
func EnumerateJobs(town string, weathers, behaviors, navigationTypes []string) ([]Job, error) {
	for dim, ids := range map[string][]string{
		"weather":         weathers,
		"behavior":        behaviors,
		"navigation_type": navigationTypes,
	} {
		if err := checkUnique(dim, ids); err != nil {
			return nil, err
		}
	}
	jobs := make([]Job, 0, len(weathers)*len(behaviors)*len(navigationTypes))
	for _, nav := range navigationTypes {
		for _, w := range weathers {
			for _, b := range behaviors {
				jobs = append(jobs, Job{Town: town, Weather: w, Behavior: b, NavigationType: nav})
			}
		}
	}
	return jobs, nil
}

func checkUnique(dim string, ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("collector: empty %s identifier", dim)
		}
		if seen[id] {
			return fmt.Errorf("%w: %s %q", ErrDuplicateIdentifier, dim, id)
		}
		seen[id] = true
	}
	return nil
}
