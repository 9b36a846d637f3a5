// Package simulator defines the boundary to the vehicle/world simulator that
// episodes drive: a Launcher opens one Session per worker, a Session ticks
// the world and hands out the driving Agent.
//
// The kinematic backend in this package implements the boundary in-process;
// external simulators plug in by implementing Launcher. Simulator server
// processes are started and torn down through a Supervisor.
package simulator

import (
	"context"
	"errors"
	"sort"

	"github.com/scenario-sim/scenario-collector/collector/route"
)

var (
	// ErrCollision may be returned by Session.Tick when the tick ended in a
	// collision the backend could not report through Observation.
	ErrCollision = errors.New("simulator: collision during tick")
	// ErrRouteCompleted may be returned by Session.Tick when the backend ended
	// the tick because the hero reached its destination.
	ErrRouteCompleted = errors.New("simulator: route completed during tick")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("simulator: session closed")
	// ErrUnknownWeather is returned for weather identifiers with no preset.
	ErrUnknownWeather = errors.New("simulator: unknown weather preset")
	// ErrUnknownBehavior is returned for unknown driver behavior profiles.
	ErrUnknownBehavior = errors.New("simulator: unknown behavior profile")
)

// Control is one actuation command for the hero vehicle.
type Control struct {
	Throttle  float64 `json:"throttle"`
	Steer     float64 `json:"steer"`
	Brake     float64 `json:"brake"`
	HandBrake bool    `json:"hand_brake"`
}

// Observation is the raw output of one tick.
type Observation struct {
	// Sensors maps sensor names to their readings; the camera image is a
	// []byte under "rgb".
	Sensors   map[string]any
	Collision bool
	Obstacle  bool
}

// SessionConfig selects what a session simulates.
type SessionConfig struct {
	WorkerID   int
	Town       string
	Weather    string
	Behavior   string
	Seed       int64
	Sync       bool
	FixedDelta float64
}

// Launcher opens simulator sessions. Implementations must be safe for
// concurrent use; each returned Session belongs to a single worker.
type Launcher interface {
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is one worker's connection to a simulated world.
type Session interface {
	SetWeather(weather string) error
	SpawnPoints() []route.Waypoint
	// SpawnAgent creates the hero vehicle and its driving agent.
	SpawnAgent(ctx context.Context, behavior string) (Agent, error)
	// Respawn moves the hero to at and zeroes its motion.
	Respawn(ctx context.Context, at route.Waypoint) error
	// Tick applies control and advances the world by one step.
	Tick(ctx context.Context, control Control) (Observation, error)
	Close() error
}

// Agent turns the hero's state and destination into controls and exposes
// the telemetry recorded with every step.
type Agent interface {
	RunStep() (Control, error)
	SetDestination(r route.Route) error
	Done() bool
	VehicleTelemetry(control Control) map[string]any
	TrafficTelemetry() map[string]any
	WaypointTelemetry() map[string]any
	CollisionTelemetry() map[string]any
}

// Teardown releases every simulator resource started during a run.
type Teardown interface {
	KillAll(ctx context.Context) error
}

// weatherPresets are the recognised weather identifiers.
var weatherPresets = map[string]struct{}{
	"Default": {}, "ClearNoon": {}, "CloudyNoon": {}, "WetNoon": {}, "WetCloudyNoon": {},
	"SoftRainNoon": {}, "MidRainyNoon": {}, "HardRainNoon": {}, "ClearSunset": {},
	"CloudySunset": {}, "WetSunset": {}, "WetCloudySunset": {}, "SoftRainSunset": {},
	"MidRainSunset": {}, "HardRainSunset": {},
}

// ValidWeather reports whether name is a known weather preset.
func ValidWeather(name string) bool {
	_, ok := weatherPresets[name]
	return ok
}

// WeatherPresets returns the known weather identifiers, sorted.
func WeatherPresets() []string {
	out := make([]string, 0, len(weatherPresets))
	for k := range weatherPresets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BehaviorProfile parameterises how an agent drives.
type BehaviorProfile struct {
	MaxSpeed      float64 // m/s
	Throttle      float64 // throttle applied below target speed
	SafetyMargin  float64 // m kept to the destination before braking
	BrakeStrength float64
}

// behaviorProfiles holds the supported driver profiles.
var behaviorProfiles = map[string]BehaviorProfile{
	"cautious":   {MaxSpeed: 25 / 3.6, Throttle: 0.5, SafetyMargin: 6, BrakeStrength: 0.5},
	"normal":     {MaxSpeed: 40 / 3.6, Throttle: 0.7, SafetyMargin: 4, BrakeStrength: 0.7},
	"aggressive": {MaxSpeed: 60 / 3.6, Throttle: 1.0, SafetyMargin: 2, BrakeStrength: 1.0},
}

// Behavior returns the named profile.
func Behavior(name string) (BehaviorProfile, bool) {
	p, ok := behaviorProfiles[name]
	return p, ok
}
