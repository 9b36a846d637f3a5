package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/scenario-sim/scenario-collector/collector/route"
	"github.com/scenario-sim/scenario-collector/simulator"
)

// fakeWorld scripts what fake sessions and agents report. Tick indexes count
// ticks of one session from zero.
type fakeWorld struct {
	connectErr error
	collideAt  map[int]bool  // ticks reporting Observation.Collision
	tickErrAt  map[int]error // ticks returning an error
	doneAfter  int           // ticks after SetDestination until Done; 0 = never
	onTick     func(tick int)
	traffic    map[string]any
	vehicle    map[string]any

	mu       sync.Mutex
	sessions []*fakeSession
}

func (w *fakeWorld) Connect(_ context.Context, cfg simulator.SessionConfig) (simulator.Session, error) {
	if w.connectErr != nil {
		return nil, w.connectErr
	}
	s := &fakeSession{world: w, cfg: cfg}
	w.mu.Lock()
	w.sessions = append(w.sessions, s)
	w.mu.Unlock()
	return s, nil
}

func (w *fakeWorld) session(i int) *fakeSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessions[i]
}

type fakeSession struct {
	world    *fakeWorld
	cfg      simulator.SessionConfig
	weather  string
	agent    *fakeAgent
	ticks    int
	respawns []route.Waypoint
	closed   int
}

func (s *fakeSession) SetWeather(w string) error {
	s.weather = w
	return nil
}

func (s *fakeSession) SpawnPoints() []route.Waypoint {
	return []route.Waypoint{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 100}, {X: 100, Y: 100}}
}

func (s *fakeSession) SpawnAgent(context.Context, string) (simulator.Agent, error) {
	s.agent = &fakeAgent{s: s}
	return s.agent, nil
}

func (s *fakeSession) Respawn(_ context.Context, at route.Waypoint) error {
	s.respawns = append(s.respawns, at)
	return nil
}

func (s *fakeSession) Tick(_ context.Context, _ simulator.Control) (simulator.Observation, error) {
	tick := s.ticks
	s.ticks++
	if s.world.onTick != nil {
		s.world.onTick(tick)
	}
	if err := s.world.tickErrAt[tick]; err != nil {
		return simulator.Observation{}, err
	}
	return simulator.Observation{
		Sensors:   map[string]any{"rgb": []byte{0xff, 0xd8, 0xff}, "frame": tick},
		Collision: s.world.collideAt[tick],
	}, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeAgent struct {
	s         *fakeSession
	destTick  int
	dests     []route.Route
	collision int
}

func (a *fakeAgent) RunStep() (simulator.Control, error) {
	return simulator.Control{Throttle: 0.5}, nil
}

func (a *fakeAgent) SetDestination(r route.Route) error {
	a.destTick = a.s.ticks
	a.dests = append(a.dests, r)
	return nil
}

func (a *fakeAgent) Done() bool {
	n := a.s.world.doneAfter
	return n > 0 && a.s.ticks-a.destTick >= n
}

func (a *fakeAgent) VehicleTelemetry(c simulator.Control) map[string]any {
	if a.s.world.vehicle != nil {
		return a.s.world.vehicle
	}
	return map[string]any{"speed": 5.0, "throttle": c.Throttle}
}

func (a *fakeAgent) TrafficTelemetry() map[string]any {
	if a.s.world.traffic != nil {
		return a.s.world.traffic
	}
	return map[string]any{"traffic_light_state": "green"}
}

func (a *fakeAgent) WaypointTelemetry() map[string]any {
	return map[string]any{"distance_to_goal": 10.0}
}

func (a *fakeAgent) CollisionTelemetry() map[string]any {
	return map[string]any{"n_collisions": a.collision}
}

// countingTeardown counts KillAll calls.
type countingTeardown struct {
	calls atomic.Int32
	err   error
}

func (t *countingTeardown) KillAll(context.Context) error {
	t.calls.Add(1)
	return t.err
}

var errBoom = errors.New("boom")

func testJobConfig(dir string, steps, freq int) JobConfig {
	return JobConfig{
		Job:       Job{Town: "Town01", Weather: "ClearNoon", Behavior: "normal", NavigationType: "straight"},
		Steps:     steps,
		WriteFreq: freq,
		Seed:      7,
		Dir:       dir,
	}
}
