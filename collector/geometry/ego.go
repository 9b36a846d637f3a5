package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// forward is the canonical ego-frame axis the moving direction is mapped onto.
var forward = r2.Vec{X: 0, Y: 1}

// AngleBetween returns the signed angle (radians) that rotates v onto w,
// computed as atan2 of the 2D cross and dot products.
func AngleBetween(v, w r2.Vec) float64 {
	return math.Atan2(r2.Cross(v, w), r2.Dot(v, w))
}

// rotate applies the rotation matrix for angle to p.
func rotate(p r2.Vec, angle float64) r2.Vec {
	sin, cos := math.Sincos(angle)
	return r2.Vec{
		X: cos*p.X - sin*p.Y,
		Y: sin*p.X + cos*p.Y,
	}
}

// ToEgoFrame translates points so that origin becomes (0, 0) and rotates them
// so that direction points along +Y. The ego x axis is mirrored so that points
// to the right of the vehicle have positive x.
func ToEgoFrame(points []r2.Vec, direction, origin r2.Vec) []r2.Vec {
	theta := AngleBetween(direction, forward)
	out := make([]r2.Vec, len(points))
	for i, p := range points {
		q := rotate(r2.Sub(p, origin), theta)
		q.X = -q.X
		out[i] = q
	}
	return out
}

// ToWorldFrame is the exact inverse of ToEgoFrame for the same direction and
// origin.
func ToWorldFrame(points []r2.Vec, direction, origin r2.Vec) []r2.Vec {
	theta := AngleBetween(direction, forward)
	out := make([]r2.Vec, len(points))
	for i, p := range points {
		p.X = -p.X
		out[i] = r2.Add(rotate(p, -theta), origin)
	}
	return out
}
