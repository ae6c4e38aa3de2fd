// Package spline implements the curve engine behind the spline endpoints and
// the live broadcast stream: Catmull-Rom, cubic and linear interpolation over
// control points, and short-horizon extrapolation.
package spline

import (
	"math"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// Point is an (x, y) sample. Serialized as a two-element array to match the
// wire shape the dashboard consumes.
type Point [2]float64

// Methods accepted by Render.
const (
	MethodCatmullRom  = "catmull-rom"
	MethodCubic       = "cubic"
	MethodLinear      = "linear"
	MethodExtrapolate = "extrapolate"
)

// Engine renders spline paths. Stateless; safe for concurrent use.
type Engine struct{}

// NewEngine returns a spline engine.
func NewEngine() *Engine { return &Engine{} }

// Render samples a path of `samples` points through the control points using
// the named method.
func (e *Engine) Render(method string, control []Point, samples int) ([]Point, error) {
	if len(control) < 2 {
		return nil, errors.New("need at least 2 control points")
	}
	if samples < 2 {
		return nil, errors.Newf("samples must be >= 2, got %d", samples)
	}

	switch method {
	case MethodCatmullRom:
		return e.CatmullRom(control, samples), nil
	case MethodCubic:
		return e.Cubic(control, samples), nil
	case MethodLinear:
		return e.Linear(control, samples), nil
	case MethodExtrapolate:
		return e.Extrapolate(control, samples), nil
	default:
		return nil, errors.Newf("unknown spline method %q", method)
	}
}

// CatmullRom samples a uniform Catmull-Rom path through the control
// points. Endpoints are duplicated so the path passes through all controls.
func (e *Engine) CatmullRom(control []Point, samples int) []Point {
	padded := make([]Point, 0, len(control)+2)
	padded = append(padded, control[0])
	padded = append(padded, control...)
	padded = append(padded, control[len(control)-1])

	out := make([]Point, 0, samples)
	segments := len(control) - 1
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(samples-1) * float64(segments)
		seg := int(t)
		if seg >= segments {
			seg = segments - 1
		}
		u := t - float64(seg)

		p0, p1, p2, p3 := padded[seg], padded[seg+1], padded[seg+2], padded[seg+3]
		out = append(out, Point{
			catmullRom1D(p0[0], p1[0], p2[0], p3[0], u),
			catmullRom1D(p0[1], p1[1], p2[1], p3[1], u),
		})
	}
	return out
}

func catmullRom1D(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return 0.5 * ((2 * p1) +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}

// Cubic samples a natural cubic interpolation of y over x. Control points
// must be sorted by x.
func (e *Engine) Cubic(control []Point, samples int) []Point {
	n := len(control)
	// Second derivatives via the tridiagonal natural-spline solve
	y2 := make([]float64, n)
	u := make([]float64, n)
	for i := 1; i < n-1; i++ {
		sig := (control[i][0] - control[i-1][0]) / (control[i+1][0] - control[i-1][0])
		p := sig*y2[i-1] + 2
		y2[i] = (sig - 1) / p
		u[i] = (control[i+1][1]-control[i][1])/(control[i+1][0]-control[i][0]) -
			(control[i][1]-control[i-1][1])/(control[i][0]-control[i-1][0])
		u[i] = (6*u[i]/(control[i+1][0]-control[i-1][0]) - sig*u[i-1]) / p
	}
	for i := n - 2; i >= 0; i-- {
		y2[i] = y2[i]*y2[i+1] + u[i]
	}

	x0, x1 := control[0][0], control[n-1][0]
	out := make([]Point, 0, samples)
	for i := 0; i < samples; i++ {
		x := x0 + (x1-x0)*float64(i)/float64(samples-1)
		out = append(out, Point{x, cubicEval(control, y2, x)})
	}
	return out
}

func cubicEval(control []Point, y2 []float64, x float64) float64 {
	lo, hi := 0, len(control)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if control[mid][0] > x {
			hi = mid
		} else {
			lo = mid
		}
	}
	h := control[hi][0] - control[lo][0]
	if h == 0 {
		return control[lo][1]
	}
	a := (control[hi][0] - x) / h
	b := (x - control[lo][0]) / h
	return a*control[lo][1] + b*control[hi][1] +
		((a*a*a-a)*y2[lo]+(b*b*b-b)*y2[hi])*(h*h)/6
}

// Linear samples straight segments between control points.
func (e *Engine) Linear(control []Point, samples int) []Point {
	segments := len(control) - 1
	out := make([]Point, 0, samples)
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(samples-1) * float64(segments)
		seg := int(t)
		if seg >= segments {
			seg = segments - 1
		}
		u := t - float64(seg)
		a, b := control[seg], control[seg+1]
		out = append(out, Point{
			a[0] + (b[0]-a[0])*u,
			a[1] + (b[1]-a[1])*u,
		})
	}
	return out
}

// Extrapolate continues the trend of the final segment for `samples` points,
// spaced like the trailing control spacing.
func (e *Engine) Extrapolate(control []Point, samples int) []Point {
	n := len(control)
	last, prev := control[n-1], control[n-2]
	dx := last[0] - prev[0]
	dy := last[1] - prev[1]

	out := make([]Point, 0, samples)
	for i := 1; i <= samples; i++ {
		out = append(out, Point{
			last[0] + dx*float64(i),
			last[1] + dy*float64(i),
		})
	}
	return out
}

// Predict returns `horizon` extrapolated points after a Catmull-Rom smooth of
// the input. Used by the predict endpoint.
func (e *Engine) Predict(control []Point, horizon int) ([]Point, error) {
	if len(control) < 2 {
		return nil, errors.New("need at least 2 control points")
	}
	if horizon < 1 {
		return nil, errors.Newf("horizon must be >= 1, got %d", horizon)
	}
	smooth := e.CatmullRom(control, len(control)*2)
	return e.Extrapolate(smooth, horizon), nil
}

// Synthetic builds an n-point synthetic wave used by warmup and the live
// broadcast loop. Deterministic in phase.
func Synthetic(n int, phase float64) []Point {
	out := make([]Point, n)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)
		out[i] = Point{
			x,
			0.5 + 0.35*math.Sin(2*math.Pi*x+phase) + 0.1*math.Sin(6*math.Pi*x+phase*1.7),
		}
	}
	return out
}
