package simulator

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/scenario-sim/scenario-collector/collector/route"
)

// Vehicle constants for the kinematic bicycle model.
const (
	wheelBase     = 2.9 // m
	maxSteerAngle = 0.6 // rad
	maxAccel      = 3.0 // m/s^2
	maxDecel      = 8.0 // m/s^2
	reachRadius   = 2.5 // m, a waypoint counts as passed inside this radius
	lookahead     = 5   // waypoints reported in telemetry
)

// KinematicConfig configures the in-process backend.
type KinematicConfig struct {
	FixedDelta    float64 // seconds per tick, default 0.1
	CollisionRate float64 // per-tick probability of a collision event
	ImageSize     int     // camera image edge in pixels, default 32
	SpawnGrid     int     // spawn points per grid edge, default 6
	SpawnSpacing  float64 // m between spawn points, default 40

	// ServerCommand, when set, is started once per session through the
	// supervisor. "{port}" in ServerArgs is replaced by BasePort+2*WorkerID.
	ServerCommand string
	ServerArgs    []string
	ServerDir     string
	BasePort      int
}

func (c KinematicConfig) withDefaults() KinematicConfig {
	if c.FixedDelta <= 0 {
		c.FixedDelta = 0.1
	}
	if c.ImageSize <= 0 {
		c.ImageSize = 32
	}
	if c.SpawnGrid < 2 {
		c.SpawnGrid = 6
	}
	if c.SpawnSpacing <= 0 {
		c.SpawnSpacing = 40
	}
	if c.BasePort == 0 {
		c.BasePort = 2000
	}
	return c
}

// KinematicLauncher opens in-process sessions that move the hero with a
// kinematic bicycle model.
type KinematicLauncher struct {
	cfg        KinematicConfig
	supervisor *Supervisor
}

// NewKinematicLauncher returns a launcher. supervisor may be nil when no
// server process is configured.
func NewKinematicLauncher(cfg KinematicConfig, supervisor *Supervisor) *KinematicLauncher {
	return &KinematicLauncher{cfg: cfg.withDefaults(), supervisor: supervisor}
}

// Connect opens a session for one worker.
func (l *KinematicLauncher) Connect(ctx context.Context, sc SessionConfig) (Session, error) {
	if sc.Town == "" {
		return nil, fmt.Errorf("connect worker %d: town is required", sc.WorkerID)
	}
	cfg := l.cfg
	if sc.FixedDelta > 0 {
		cfg.FixedDelta = sc.FixedDelta
	}
	s := &kinematicSession{
		cfg:        cfg,
		sc:         sc,
		rng:        rand.New(rand.NewSource(sc.Seed)),
		supervisor: l.supervisor,
		log: logrus.WithFields(logrus.Fields{
			"worker": sc.WorkerID,
			"town":   sc.Town,
		}),
	}
	s.spawn = gridSpawnPoints(cfg.SpawnGrid, cfg.SpawnSpacing)

	if cfg.ServerCommand != "" {
		if l.supervisor == nil {
			return nil, fmt.Errorf("connect worker %d: server command needs a supervisor", sc.WorkerID)
		}
		port := strconv.Itoa(cfg.BasePort + 2*sc.WorkerID)
		args := make([]string, len(cfg.ServerArgs))
		for i, a := range cfg.ServerArgs {
			args[i] = strings.ReplaceAll(a, "{port}", port)
		}
		proc, err := l.supervisor.Start(ctx, cfg.ServerCommand, args, cfg.ServerDir)
		if err != nil {
			return nil, fmt.Errorf("connect worker %d: %w", sc.WorkerID, err)
		}
		s.proc = proc
		s.log.WithField("port", port).Debug("simulator server started")
	}
	return s, nil
}

// gridSpawnPoints lays spawn points on an n x n grid facing +X.
func gridSpawnPoints(n int, spacing float64) []route.Waypoint {
	pts := make([]route.Waypoint, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			pts = append(pts, route.Waypoint{X: float64(i) * spacing, Y: float64(j) * spacing})
		}
	}
	return pts
}

type heroState struct {
	pos   r2.Vec
	z     float64
	yaw   float64 // rad
	speed float64 // m/s
}

type kinematicSession struct {
	cfg        KinematicConfig
	sc         SessionConfig
	rng        *rand.Rand
	spawn      []route.Waypoint
	supervisor *Supervisor
	proc       *Process
	log        *logrus.Entry

	mu         sync.Mutex
	weather    string
	hero       heroState
	agent      *kinematicAgent
	frame      int
	collisions int
	closed     bool
}

func (s *kinematicSession) SetWeather(weather string) error {
	if !ValidWeather(weather) {
		return fmt.Errorf("%w: %q (known: %s)", ErrUnknownWeather, weather, strings.Join(WeatherPresets(), ", "))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.weather = weather
	return nil
}

func (s *kinematicSession) SpawnPoints() []route.Waypoint {
	out := make([]route.Waypoint, len(s.spawn))
	copy(out, s.spawn)
	return out
}

func (s *kinematicSession) SpawnAgent(_ context.Context, behavior string) (Agent, error) {
	profile, ok := Behavior(behavior)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBehavior, behavior)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	start := s.spawn[0]
	s.hero = heroState{pos: start.Vec(), z: start.Z, yaw: start.Yaw * math.Pi / 180}
	s.agent = &kinematicAgent{s: s, profile: profile}
	return s.agent, nil
}

func (s *kinematicSession) Respawn(_ context.Context, at route.Waypoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.hero = heroState{pos: at.Vec(), z: at.Z, yaw: at.Yaw * math.Pi / 180}
	return nil
}

func (s *kinematicSession) Tick(ctx context.Context, c Control) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Observation{}, ErrSessionClosed
	}

	dt := s.cfg.FixedDelta
	h := &s.hero
	accel := clamp(c.Throttle, 0, 1)*maxAccel - clamp(c.Brake, 0, 1)*maxDecel
	if c.HandBrake {
		accel = -maxDecel
	}
	h.speed = math.Max(0, h.speed+accel*dt)
	if s.agent != nil {
		h.speed = math.Min(h.speed, s.agent.profile.MaxSpeed)
	}
	delta := clamp(c.Steer, -1, 1) * maxSteerAngle
	h.yaw = wrapAngle(h.yaw + h.speed/wheelBase*math.Tan(delta)*dt)
	sin, cos := math.Sincos(h.yaw)
	h.pos = r2.Add(h.pos, r2.Vec{X: cos * h.speed * dt, Y: sin * h.speed * dt})
	s.frame++

	collided := s.cfg.CollisionRate > 0 && s.rng.Float64() < s.cfg.CollisionRate
	if collided {
		h.speed = 0
		s.collisions++
	}

	img, err := s.render()
	if err != nil {
		return Observation{}, fmt.Errorf("rendering frame %d: %w", s.frame, err)
	}
	return Observation{
		Sensors: map[string]any{
			"rgb":       img,
			"frame":     s.frame,
			"timestamp": float64(s.frame) * dt,
			"gnss":      map[string]any{"values": []float64{h.pos.X, h.pos.Y, h.z}},
			"weather":   s.weather,
		},
		Collision: collided,
		Obstacle:  collided,
	}, nil
}

// render draws a small gradient image keyed to the hero pose.
func (s *kinematicSession) render() ([]byte, error) {
	n := s.cfg.ImageSize
	img := image.NewGray(image.Rect(0, 0, n, n))
	base := int(math.Abs(s.hero.pos.X+s.hero.pos.Y)) + s.frame
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((base + x*4 + y*2) % 256)})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *kinematicSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	proc := s.proc
	s.mu.Unlock()

	if proc != nil {
		s.supervisor.Stop(proc)
		s.log.Debug("simulator server stopped")
	}
	return nil
}

// kinematicAgent follows its route waypoint by waypoint.
type kinematicAgent struct {
	s       *kinematicSession
	profile BehaviorProfile
	route   route.Route
	next    int
}

func (a *kinematicAgent) SetDestination(r route.Route) error {
	if r.Len() < 2 {
		return route.ErrTooShort
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.route = r
	a.next = 1
	return nil
}

// Done reports whether the hero is within reach of the destination.
func (a *kinematicAgent) Done() bool {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.doneLocked()
}

func (a *kinematicAgent) doneLocked() bool {
	if a.route.Len() == 0 {
		return false
	}
	return r2.Norm(r2.Sub(a.route.End().Vec(), a.s.hero.pos)) < reachRadius
}

func (a *kinematicAgent) RunStep() (Control, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if a.s.closed {
		return Control{}, ErrSessionClosed
	}
	if a.route.Len() == 0 || a.doneLocked() {
		return Control{Brake: a.profile.BrakeStrength}, nil
	}
	h := a.s.hero
	for a.next < a.route.Len()-1 && r2.Norm(r2.Sub(a.route.Waypoints[a.next].Vec(), h.pos)) < reachRadius {
		a.next++
	}
	target := a.route.Waypoints[a.next].Vec()
	to := r2.Sub(target, h.pos)
	heading := wrapAngle(math.Atan2(to.Y, to.X) - h.yaw)

	c := Control{Steer: clamp(heading/maxSteerAngle, -1, 1)}
	remaining := r2.Norm(r2.Sub(a.route.End().Vec(), h.pos))
	switch {
	case remaining < a.profile.SafetyMargin && h.speed > remaining:
		c.Brake = a.profile.BrakeStrength
	case math.Abs(heading) > 0.6:
		c.Throttle = 0.2
	case h.speed < a.profile.MaxSpeed:
		c.Throttle = a.profile.Throttle
	}
	return c, nil
}

func (a *kinematicAgent) VehicleTelemetry(c Control) map[string]any {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	h := a.s.hero
	sin, cos := math.Sincos(h.yaw)
	return map[string]any{
		"speed":            h.speed,
		"throttle":         c.Throttle,
		"steer":            c.Steer,
		"brake":            c.Brake,
		"location":         []float64{h.pos.X, h.pos.Y, h.z},
		"rotation_yaw":     h.yaw * 180 / math.Pi,
		"moving_direction": []float64{cos, sin, 0},
	}
}

func (a *kinematicAgent) TrafficTelemetry() map[string]any {
	return map[string]any{
		"traffic_light_state":    "off",
		"vehicles_nearby":        0,
		"front_vehicle_distance": -1.0,
	}
}

func (a *kinematicAgent) WaypointTelemetry() map[string]any {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	h := a.s.hero
	wps := make([][]float64, 0, lookahead)
	for i := a.next; i < a.route.Len() && len(wps) < lookahead; i++ {
		w := a.route.Waypoints[i]
		wps = append(wps, []float64{w.X, w.Y, w.Yaw})
	}
	// Pad with the hero pose when the route runs out.
	for len(wps) < lookahead {
		wps = append(wps, []float64{h.pos.X, h.pos.Y, h.yaw * 180 / math.Pi})
	}
	dist := 0.0
	if a.route.Len() > 0 {
		dist = r2.Norm(r2.Sub(a.route.End().Vec(), h.pos))
	}
	return map[string]any{
		"waypoints":        wps,
		"distance_to_goal": dist,
		"route_index":      a.next,
	}
}

func (a *kinematicAgent) CollisionTelemetry() map[string]any {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return map[string]any{"n_collisions": a.s.collisions}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
