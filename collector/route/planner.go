package route

import (
	"errors"
	"math/rand"
)

// ErrNoSpawnPoints is returned when a random route is requested from a world
// with fewer than two distinct spawn points.
var ErrNoSpawnPoints = errors.New("route: need at least two distinct spawn points")

// Planner hands out the route for each (re)plan of an episode. With a fixed
// route set it picks one at random; without one it joins two random spawn
// points.
type Planner struct {
	routes []Route
	rng    *rand.Rand
}

// NewPlanner returns a planner over routes drawing from rng.
func NewPlanner(routes []Route, rng *rand.Rand) *Planner {
	return &Planner{routes: routes, rng: rng}
}

// Next returns the next route to drive.
func (p *Planner) Next(spawnPoints []Waypoint) (Route, error) {
	if len(p.routes) > 0 {
		return p.routes[p.rng.Intn(len(p.routes))], nil
	}
	if len(spawnPoints) < 2 {
		return Route{}, ErrNoSpawnPoints
	}
	start := spawnPoints[p.rng.Intn(len(spawnPoints))]
	// Retries are bounded; identical spawn points end in ErrNoSpawnPoints.
	for attempt := 0; attempt < 8*len(spawnPoints); attempt++ {
		end := spawnPoints[p.rng.Intn(len(spawnPoints))]
		if start.DistanceTo(end) < minSeparation {
			continue
		}
		pts, err := WithHeadings([]Waypoint{start, end})
		if err != nil {
			return Route{}, err
		}
		return New(pts)
	}
	return Route{}, ErrNoSpawnPoints
}
