package collector

import (
	"fmt"
	"sort"
)

// Telemetry categories of a step record.
const (
	CategorySensor    = "sensor"
	CategoryWaypoint  = "waypoint"
	CategoryTraffic   = "traffic"
	CategoryVehicle   = "vehicle"
	CategoryCollision = "collision"
	CategoryEvent     = "event"
)

// StepRecord is the telemetry of one tick, kept apart by category until it
// is flattened for the archive.
type StepRecord struct {
	Sensor        map[string]any
	Waypoint      map[string]any
	Traffic       map[string]any
	Vehicle       map[string]any
	CollisionData map[string]any

	Collision bool
	Obstacle  bool
}

// FieldConflictError reports a key produced by two telemetry categories.
type FieldConflictError struct {
	Key    string
	First  string
	Second string
}

func (e *FieldConflictError) Error() string {
	return fmt.Sprintf("step record field %q is produced by both %s and %s telemetry", e.Key, e.First, e.Second)
}

// Fields flattens the record into one map. A key present in more than one
// category is a *FieldConflictError; no value is overwritten.
func (r StepRecord) Fields() (map[string]any, error) {
	n := len(r.Sensor) + len(r.Waypoint) + len(r.Traffic) + len(r.Vehicle) + len(r.CollisionData) + 2
	out := make(map[string]any, n)
	owner := make(map[string]string, n)
	merge := func(category string, m map[string]any) error {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if prev, ok := owner[k]; ok {
				return &FieldConflictError{Key: k, First: prev, Second: category}
			}
			owner[k] = category
			out[k] = m[k]
		}
		return nil
	}
	for _, c := range []struct {
		name string
		m    map[string]any
	}{
		{CategorySensor, r.Sensor},
		{CategoryWaypoint, r.Waypoint},
		{CategoryTraffic, r.Traffic},
		{CategoryVehicle, r.Vehicle},
		{CategoryCollision, r.CollisionData},
		{CategoryEvent, map[string]any{"collision": r.Collision, "obstacle": r.Obstacle}},
	} {
		if err := merge(c.name, c.m); err != nil {
			return nil, err
		}
	}
	return out, nil
}
