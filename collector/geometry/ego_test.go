package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r2"
)

const tol = 1e-9

func TestAngleBetween_QuarterTurns(t *testing.T) {
	tests := []struct {
		name string
		v, w r2.Vec
		want float64
	}{
		{"same direction", r2.Vec{X: 0, Y: 1}, r2.Vec{X: 0, Y: 1}, 0},
		{"x onto y is +90", r2.Vec{X: 1, Y: 0}, r2.Vec{X: 0, Y: 1}, math.Pi / 2},
		{"-x onto y is -90", r2.Vec{X: -1, Y: 0}, r2.Vec{X: 0, Y: 1}, -math.Pi / 2},
		{"opposite", r2.Vec{X: 0, Y: -1}, r2.Vec{X: 0, Y: 1}, math.Pi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AngleBetween(tt.v, tt.w), tol)
		})
	}
}

func TestToEgoFrame_DirectionMapsToPositiveY(t *testing.T) {
	// GIVEN a vehicle at (10, 5) moving along +X
	origin := r2.Vec{X: 10, Y: 5}
	dir := r2.Vec{X: 1, Y: 0}

	// WHEN a point 3 m ahead is projected
	got := ToEgoFrame([]r2.Vec{{X: 13, Y: 5}}, dir, origin)

	// THEN it lies on the ego +Y axis
	assert.InDelta(t, 0, got[0].X, tol)
	assert.InDelta(t, 3, got[0].Y, tol)
}

func TestToEgoFrame_OriginMapsToZero(t *testing.T) {
	origin := r2.Vec{X: -4, Y: 7}
	got := ToEgoFrame([]r2.Vec{origin}, r2.Vec{X: 0.3, Y: -0.8}, origin)
	assert.InDelta(t, 0, got[0].X, tol)
	assert.InDelta(t, 0, got[0].Y, tol)
}

func TestEgoWorldRoundTrip(t *testing.T) {
	// GIVEN random directions, origins and points
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		dir := r2.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64()}
		if r2.Norm(dir) < 1e-6 {
			continue
		}
		origin := r2.Vec{X: rng.Float64()*400 - 200, Y: rng.Float64()*400 - 200}
		pts := make([]r2.Vec, 5)
		for j := range pts {
			pts[j] = r2.Vec{X: rng.Float64()*400 - 200, Y: rng.Float64()*400 - 200}
		}

		// WHEN projecting to ego frame and back
		back := ToWorldFrame(ToEgoFrame(pts, dir, origin), dir, origin)

		// THEN the original points are reproduced
		for j := range pts {
			assert.InDelta(t, pts[j].X, back[j].X, 1e-7)
			assert.InDelta(t, pts[j].Y, back[j].Y, 1e-7)
		}
	}
}

func TestToEgoFrame_EmptyInput(t *testing.T) {
	assert.Empty(t, ToEgoFrame(nil, r2.Vec{X: 1}, r2.Vec{}))
	assert.Empty(t, ToWorldFrame(nil, r2.Vec{X: 1}, r2.Vec{}))
}
