package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat/combin"
)

var (
	// ErrDegree is returned when a curve degree below 1 is requested.
	ErrDegree = errors.New("geometry: bezier degree must be 1 or greater")
	// ErrTooFewPoints is returned when fewer than degree+1 points are supplied.
	ErrTooFewPoints = errors.New("geometry: too few points for bezier degree")
)

// rcond is the relative singular value cutoff used when ranking the Bernstein matrix.
const rcond = 1e-12

// bernstein evaluates the k-th Bernstein basis polynomial of degree n at t.
func bernstein(n, k int, t float64) float64 {
	return float64(combin.Binomial(n, k)) * math.Pow(t, float64(k)) * math.Pow(1-t, float64(n-k))
}

// bernsteinMatrix builds the len(ts) x (degree+1) basis matrix.
func bernsteinMatrix(degree int, ts []float64) *mat.Dense {
	m := mat.NewDense(len(ts), degree+1, nil)
	for i, t := range ts {
		for k := 0; k <= degree; k++ {
			m.Set(i, k, bernstein(degree, k, t))
		}
	}
	return m
}

// FitBezier fits a Bézier curve of the given degree to points by least
// squares, using the pseudo-inverse of the Bernstein matrix sampled at evenly
// spaced parameters. It returns degree+1 control points. The first and last
// control points are pinned to the first and last input points.
func FitBezier(points []r2.Vec, degree int) ([]r2.Vec, error) {
	if degree < 1 {
		return nil, ErrDegree
	}
	if len(points) < degree+1 {
		return nil, fmt.Errorf("%w: degree %d needs at least %d points, got %d",
			ErrTooFewPoints, degree, degree+1, len(points))
	}

	n := len(points)
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = float64(i) / float64(n-1)
	}
	m := bernsteinMatrix(degree, ts)

	target := mat.NewDense(n, 2, nil)
	for i, p := range points {
		target.Set(i, 0, p.X)
		target.Set(i, 1, p.Y)
	}

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, errors.New("geometry: bernstein matrix factorization failed")
	}
	var ctrl mat.Dense
	svd.SolveTo(&ctrl, target, svd.Rank(rcond))

	out := make([]r2.Vec, degree+1)
	for k := range out {
		out[k] = r2.Vec{X: ctrl.At(k, 0), Y: ctrl.At(k, 1)}
	}
	out[0] = points[0]
	out[degree] = points[n-1]
	return out, nil
}

// EvalBezier evaluates the curve defined by ctrl at parameter t in [0, 1].
func EvalBezier(ctrl []r2.Vec, t float64) r2.Vec {
	degree := len(ctrl) - 1
	var p r2.Vec
	for k, c := range ctrl {
		p = r2.Add(p, r2.Scale(bernstein(degree, k, t), c))
	}
	return p
}

// SampleBezier returns n points evenly spaced in parameter space along the
// curve, including both endpoints.
func SampleBezier(ctrl []r2.Vec, n int) []r2.Vec {
	if n < 2 || len(ctrl) == 0 {
		return nil
	}
	out := make([]r2.Vec, n)
	for i := range out {
		out[i] = EvalBezier(ctrl, float64(i)/float64(n-1))
	}
	// Endpoints are exact, not basis sums.
	out[0] = ctrl[0]
	out[n-1] = ctrl[len(ctrl)-1]
	return out
}
