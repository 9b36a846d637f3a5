// Package route defines the waypoint routes episodes drive along, how they are
// loaded from route files, smoothed, and re-planned after a reset.
package route

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/scenario-sim/scenario-collector/collector/geometry"
)

var (
	// ErrTooShort is returned for routes with fewer than two waypoints.
	ErrTooShort = errors.New("route: at least two waypoints are required")
	// ErrDegenerate is returned when consecutive waypoints coincide.
	ErrDegenerate = errors.New("route: consecutive waypoints coincide")
)

// minSeparation is the distance (m) below which two waypoints count as coincident.
const minSeparation = 1e-6

// Waypoint is a world position plus heading. Yaw is in degrees, measured from
// +X towards +Y.
type Waypoint struct {
	X   float64 `json:"x" xml:"x,attr"`
	Y   float64 `json:"y" xml:"y,attr"`
	Z   float64 `json:"z" xml:"z,attr"`
	Yaw float64 `json:"yaw" xml:"yaw,attr"`
}

// Vec returns the planar position of the waypoint.
func (w Waypoint) Vec() r2.Vec { return r2.Vec{X: w.X, Y: w.Y} }

// DistanceTo returns the planar distance between two waypoints.
func (w Waypoint) DistanceTo(o Waypoint) float64 {
	return r2.Norm(r2.Sub(o.Vec(), w.Vec()))
}

// Route is an ordered, validated list of waypoints.
type Route struct {
	Waypoints []Waypoint `json:"waypoints"`
}

// New validates points and returns them as a Route. The slice is copied.
func New(points []Waypoint) (Route, error) {
	if len(points) < 2 {
		return Route{}, fmt.Errorf("%w: got %d", ErrTooShort, len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i-1].DistanceTo(points[i]) < minSeparation {
			return Route{}, fmt.Errorf("%w: index %d and %d", ErrDegenerate, i-1, i)
		}
	}
	cp := make([]Waypoint, len(points))
	copy(cp, points)
	return Route{Waypoints: cp}, nil
}

// Start returns the first waypoint.
func (r Route) Start() Waypoint { return r.Waypoints[0] }

// End returns the destination waypoint.
func (r Route) End() Waypoint { return r.Waypoints[len(r.Waypoints)-1] }

// Len returns the number of waypoints.
func (r Route) Len() int { return len(r.Waypoints) }

// Length returns the planar path length in metres.
func (r Route) Length() float64 {
	total := 0.0
	for i := 1; i < len(r.Waypoints); i++ {
		total += r.Waypoints[i-1].DistanceTo(r.Waypoints[i])
	}
	return total
}

// WithHeadings returns a copy of points whose yaw is the direction of travel
// towards the next waypoint; the last waypoint keeps the heading of the final
// segment.
func WithHeadings(points []Waypoint) ([]Waypoint, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooShort, len(points))
	}
	out := make([]Waypoint, len(points))
	copy(out, points)
	for i := 0; i < len(out)-1; i++ {
		d := r2.Sub(out[i+1].Vec(), out[i].Vec())
		if r2.Norm(d) < minSeparation {
			return nil, fmt.Errorf("%w: index %d and %d", ErrDegenerate, i, i+1)
		}
		out[i].Yaw = math.Atan2(d.Y, d.X) * 180 / math.Pi
	}
	out[len(out)-1].Yaw = out[len(out)-2].Yaw
	return out, nil
}

// Smooth fits a Bézier curve of the given degree through the route and
// resamples it with the same number of waypoints (at least degree+1). Heights
// are interpolated linearly between the endpoints.
func Smooth(r Route, degree int) (Route, error) {
	pts := make([]r2.Vec, r.Len())
	for i, w := range r.Waypoints {
		pts[i] = w.Vec()
	}
	ctrl, err := geometry.FitBezier(pts, degree)
	if err != nil {
		return Route{}, err
	}

	n := r.Len()
	samples := geometry.SampleBezier(ctrl, n)
	start, end := r.Start(), r.End()
	smoothed := make([]Waypoint, n)
	for i, p := range samples {
		frac := float64(i) / float64(n-1)
		smoothed[i] = Waypoint{X: p.X, Y: p.Y, Z: start.Z + (end.Z-start.Z)*frac}
	}
	withYaw, err := WithHeadings(smoothed)
	if err != nil {
		return Route{}, err
	}
	return New(withYaw)
}
